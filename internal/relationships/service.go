// Package relationships implements the social graph between accounts: pending
// friend requests, symmetric friendships and directional blocks.
//
// Every mutating operation runs as one transaction opened by Service and passed
// to the managers as an explicit db.Querier.
package relationships

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/commenter/backend/internal/db"
	"github.com/commenter/backend/internal/logging"
	"github.com/commenter/backend/internal/models"
	"github.com/commenter/backend/internal/repositories"
)

// AccountDirectory is the read-only view of accounts the graph needs.
// Get and IsDisabled report missing accounts with repositories.ErrNotFound.
type AccountDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (models.User, error)
	IsDisabled(ctx context.Context, id string) (bool, error)
}

// RequestWithAccount pairs a pending request with the account on the other side.
type RequestWithAccount struct {
	Request models.FriendRequest
	Account models.User
}

// Service is the entry point used by the API layer. It enforces who may act on
// which pair and delegates the state change to the managers.
type Service struct {
	tx          db.TxRunner
	accounts    AccountDirectory
	requests    RequestStore
	friendships FriendshipStore
	blocks      BlockStore
}

// NewService composes a Service from its collaborators.
func NewService(tx db.TxRunner, accounts AccountDirectory, requests RequestStore, friendships FriendshipStore, blocks BlockStore) *Service {
	return &Service{
		tx:          tx,
		accounts:    accounts,
		requests:    requests,
		friendships: friendships,
		blocks:      blocks,
	}
}

// NewPostgresService wires the PostgreSQL managers behind a Service.
func NewPostgresService(pool db.Pool, accounts AccountDirectory) *Service {
	friendships := NewFriendshipManager()
	requests := NewRequestManager(friendships)
	blocks := NewBlockManager(requests, friendships)
	return NewService(db.NewTxRunner(pool), accounts, requests, friendships, blocks)
}

// SendRequest proposes a friendship from -> to on behalf of uid.
func (s *Service) SendRequest(ctx context.Context, uid, from, to string) (SendResult, error) {
	ctx, span := logging.StartSpan(ctx, "relationships.send_request")
	defer span.End()

	if err := s.authorize(ctx, uid, from, to); err != nil {
		return SendResult{}, span.Fail(err)
	}

	var result SendResult
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		blockedByTarget, err := s.blocks.IsBlocked(ctx, q, to, from)
		if err != nil {
			return err
		}
		if blockedByTarget {
			return fmt.Errorf("%w: blocked by the other account", ErrForbidden)
		}

		blockedTarget, err := s.blocks.IsBlocked(ctx, q, from, to)
		if err != nil {
			return err
		}
		if blockedTarget {
			return fmt.Errorf("%w: you have blocked the other account", ErrForbidden)
		}

		friends, err := s.friendships.AreFriends(ctx, q, from, to)
		if err != nil {
			return err
		}
		if friends {
			return fmt.Errorf("%w: already friends", ErrForbidden)
		}

		result, err = s.requests.Send(ctx, q, from, to)
		return err
	})
	if err != nil {
		return SendResult{}, span.Fail(err)
	}

	logging.FromContext(ctx).Info("friend request sent", "from", from, "to", to, "outcome", string(result.Outcome))
	return result, nil
}

// AcceptRequest turns the pending request from -> to into a friendship. Only the
// recipient may accept.
func (s *Service) AcceptRequest(ctx context.Context, uid, from, to string) (models.Friendship, error) {
	ctx, span := logging.StartSpan(ctx, "relationships.accept_request")
	defer span.End()

	if err := s.authorize(ctx, uid, to, from); err != nil {
		return models.Friendship{}, span.Fail(err)
	}

	var friendship models.Friendship
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		var err error
		friendship, err = s.requests.Accept(ctx, q, from, to)
		return err
	})
	if err != nil {
		return models.Friendship{}, span.Fail(err)
	}

	logging.FromContext(ctx).Info("friend request accepted", "from", from, "to", to, "friendshipId", friendship.ID)
	return friendship, nil
}

// RejectRequest discards the pending request from -> to. Only the recipient may
// reject. It reports whether a request was removed.
func (s *Service) RejectRequest(ctx context.Context, uid, from, to string) (bool, error) {
	ctx, span := logging.StartSpan(ctx, "relationships.reject_request")
	defer span.End()

	if err := s.authorize(ctx, uid, to, from); err != nil {
		return false, span.Fail(err)
	}
	removed, err := s.deleteRequest(ctx, from, to)
	return removed, span.Fail(err)
}

// WithdrawRequest cancels the pending request from -> to. Only the sender may
// withdraw. It reports whether a request was removed.
func (s *Service) WithdrawRequest(ctx context.Context, uid, from, to string) (bool, error) {
	ctx, span := logging.StartSpan(ctx, "relationships.withdraw_request")
	defer span.End()

	if err := s.authorize(ctx, uid, from, to); err != nil {
		return false, span.Fail(err)
	}
	removed, err := s.deleteRequest(ctx, from, to)
	return removed, span.Fail(err)
}

func (s *Service) deleteRequest(ctx context.Context, from, to string) (bool, error) {
	var removed bool
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		var err error
		removed, err = s.requests.Delete(ctx, q, from, to)
		return err
	})
	if err != nil {
		return false, err
	}
	logging.FromContext(ctx).Info("friend request removed", "from", from, "to", to, "removed", removed)
	return removed, nil
}

// Block records that from blocks to, evicting pending requests and any friendship.
// It reports whether the block is new.
func (s *Service) Block(ctx context.Context, uid, from, to string) (bool, error) {
	ctx, span := logging.StartSpan(ctx, "relationships.block")
	defer span.End()

	if err := s.authorize(ctx, uid, from, to); err != nil {
		return false, span.Fail(err)
	}

	var created bool
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		var err error
		created, err = s.blocks.Block(ctx, q, from, to)
		return err
	})
	if err != nil {
		return false, span.Fail(err)
	}

	logging.FromContext(ctx).Info("account blocked", "from", from, "to", to, "created", created)
	return created, nil
}

// Unblock lifts the block from -> to and reports whether one existed.
func (s *Service) Unblock(ctx context.Context, uid, from, to string) (bool, error) {
	ctx, span := logging.StartSpan(ctx, "relationships.unblock")
	defer span.End()

	if err := s.authorize(ctx, uid, from, to); err != nil {
		return false, span.Fail(err)
	}

	var removed bool
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		var err error
		removed, err = s.blocks.Unblock(ctx, q, from, to)
		return err
	})
	if err != nil {
		return false, span.Fail(err)
	}

	logging.FromContext(ctx).Info("account unblocked", "from", from, "to", to, "removed", removed)
	return removed, nil
}

// DissolveFriendship ends the friendship between from and to. Either member may
// dissolve it; a missing friendship yields ErrNotFound.
func (s *Service) DissolveFriendship(ctx context.Context, uid, from, to string) error {
	ctx, span := logging.StartSpan(ctx, "relationships.dissolve_friendship")
	defer span.End()

	if err := s.authorize(ctx, uid, from, to); err != nil {
		return span.Fail(err)
	}

	err := s.tx.InTx(ctx, func(q db.Querier) error {
		dissolved, err := s.friendships.Dissolve(ctx, q, from, to)
		if err != nil {
			return err
		}
		if !dissolved {
			return fmt.Errorf("%w: not friends", ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return span.Fail(err)
	}

	logging.FromContext(ctx).Info("friendship dissolved", "from", from, "to", to)
	return nil
}

// ListFriends returns the accounts uid is friends with.
func (s *Service) ListFriends(ctx context.Context, uid string) ([]models.User, error) {
	ctx, span := logging.StartSpan(ctx, "relationships.list_friends")
	defer span.End()

	if err := s.ensureActive(ctx, uid); err != nil {
		return nil, span.Fail(err)
	}

	var ids []string
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		var err error
		ids, err = s.friendships.List(ctx, q, uid)
		return err
	})
	if err != nil {
		return nil, span.Fail(err)
	}
	return s.hydrate(ctx, ids)
}

// ListBlocked returns the accounts uid has blocked.
func (s *Service) ListBlocked(ctx context.Context, uid string) ([]models.User, error) {
	ctx, span := logging.StartSpan(ctx, "relationships.list_blocked")
	defer span.End()

	if err := s.ensureActive(ctx, uid); err != nil {
		return nil, span.Fail(err)
	}

	var ids []string
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		var err error
		ids, err = s.blocks.ListBlockedBy(ctx, q, uid)
		return err
	})
	if err != nil {
		return nil, span.Fail(err)
	}
	return s.hydrate(ctx, ids)
}

// ListIncoming returns the pending requests addressed to uid with their senders.
func (s *Service) ListIncoming(ctx context.Context, uid string) ([]RequestWithAccount, error) {
	ctx, span := logging.StartSpan(ctx, "relationships.list_incoming")
	defer span.End()

	if err := s.ensureActive(ctx, uid); err != nil {
		return nil, span.Fail(err)
	}

	var requests []models.FriendRequest
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		var err error
		requests, err = s.requests.ListIncoming(ctx, q, uid)
		return err
	})
	if err != nil {
		return nil, span.Fail(err)
	}
	return s.hydrateRequests(ctx, requests, func(r models.FriendRequest) string { return r.FromID })
}

// ListOutgoing returns the pending requests sent by uid with their recipients.
func (s *Service) ListOutgoing(ctx context.Context, uid string) ([]RequestWithAccount, error) {
	ctx, span := logging.StartSpan(ctx, "relationships.list_outgoing")
	defer span.End()

	if err := s.ensureActive(ctx, uid); err != nil {
		return nil, span.Fail(err)
	}

	var requests []models.FriendRequest
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		var err error
		requests, err = s.requests.ListOutgoing(ctx, q, uid)
		return err
	})
	if err != nil {
		return nil, span.Fail(err)
	}
	return s.hydrateRequests(ctx, requests, func(r models.FriendRequest) string { return r.ToID })
}

// authorize applies the checks shared by every mutating operation, in order:
// the subject is the caller, the caller is active, the pair is two distinct
// accounts and the counterpart exists.
func (s *Service) authorize(ctx context.Context, uid, subject, counterpart string) error {
	if uid == "" || subject != uid {
		return fmt.Errorf("%w: cannot act on behalf of another account", ErrForbidden)
	}
	if err := s.ensureActive(ctx, uid); err != nil {
		return err
	}
	if subject == counterpart {
		return fmt.Errorf("%w: an account cannot target itself", ErrInvalidArgument)
	}

	exists, err := s.accounts.Exists(ctx, counterpart)
	if err != nil {
		return fmt.Errorf("look up account: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: account does not exist", ErrNotFound)
	}
	return nil
}

func (s *Service) ensureActive(ctx context.Context, uid string) error {
	disabled, err := s.accounts.IsDisabled(ctx, uid)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: account does not exist", ErrForbidden)
		}
		return fmt.Errorf("look up account: %w", err)
	}
	if disabled {
		return fmt.Errorf("%w: this account is disabled", ErrForbidden)
	}
	return nil
}

// hydrate resolves ids to accounts, skipping accounts deleted since the ids were read.
func (s *Service) hydrate(ctx context.Context, ids []string) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		user, err := s.accounts.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				logging.FromContext(ctx).Debug("skipping vanished account", slog.String("accountId", id))
				continue
			}
			return nil, fmt.Errorf("load account: %w", err)
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *Service) hydrateRequests(ctx context.Context, requests []models.FriendRequest, other func(models.FriendRequest) string) ([]RequestWithAccount, error) {
	out := make([]RequestWithAccount, 0, len(requests))
	for _, request := range requests {
		user, err := s.accounts.Get(ctx, other(request))
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load account: %w", err)
		}
		out = append(out, RequestWithAccount{Request: request, Account: user})
	}
	return out, nil
}
