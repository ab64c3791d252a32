package relationships

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commenter/backend/internal/db"
	"github.com/commenter/backend/internal/models"
	"github.com/commenter/backend/internal/repositories"
)

const (
	alice = "0f6f2a51-0000-4000-8000-000000001a01"
	bob   = "0f6f2a51-0000-4000-8000-000000001a02"
	carol = "0f6f2a51-0000-4000-8000-000000001a03"
	ghost = "0f6f2a51-0000-4000-8000-0000000000ff"
)

type inlineTx struct {
	calls int
}

func (r *inlineTx) InTx(_ context.Context, fn func(q db.Querier) error) error {
	r.calls++
	return fn(nil)
}

type fakeDirectory struct {
	users map[string]models.User
}

func newFakeDirectory(ids ...string) *fakeDirectory {
	d := &fakeDirectory{users: make(map[string]models.User)}
	for _, id := range ids {
		d.users[id] = models.User{ID: id, DisplayName: id[len(id)-4:]}
	}
	return d
}

func (d *fakeDirectory) Exists(_ context.Context, id string) (bool, error) {
	_, ok := d.users[id]
	return ok, nil
}

func (d *fakeDirectory) Get(_ context.Context, id string) (models.User, error) {
	user, ok := d.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (d *fakeDirectory) IsDisabled(_ context.Context, id string) (bool, error) {
	user, ok := d.users[id]
	if !ok {
		return false, repositories.ErrNotFound
	}
	return user.Disabled, nil
}

type pair struct{ from, to string }

// fakeGraph keeps the whole relationship state in maps and implements all three stores.
type fakeGraph struct {
	requests    map[pair]models.FriendRequest
	friendships map[pair]models.Friendship
	blocks      map[pair]time.Time
	nextID      int64
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		requests:    make(map[pair]models.FriendRequest),
		friendships: make(map[pair]models.Friendship),
		blocks:      make(map[pair]time.Time),
	}
}

func unordered(a, b string) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

func (g *fakeGraph) Send(_ context.Context, q db.Querier, from, to string) (SendResult, error) {
	if _, ok := g.requests[pair{to, from}]; ok {
		friendship, err := g.Accept(context.Background(), q, to, from)
		if err != nil {
			return SendResult{}, err
		}
		return SendResult{Outcome: SendAutoAccepted, Friendship: &friendship}, nil
	}
	if existing, ok := g.requests[pair{from, to}]; ok {
		return SendResult{Outcome: SendAlreadyPending, Request: &existing}, nil
	}
	g.nextID++
	request := models.FriendRequest{ID: g.nextID, FromID: from, ToID: to, CreatedAt: time.Now()}
	g.requests[pair{from, to}] = request
	return SendResult{Outcome: SendCreated, Request: &request}, nil
}

func (g *fakeGraph) Accept(_ context.Context, _ db.Querier, from, to string) (models.Friendship, error) {
	if _, ok := g.requests[pair{from, to}]; !ok {
		return models.Friendship{}, ErrNotFound
	}
	delete(g.requests, pair{from, to})
	key := unordered(from, to)
	if _, ok := g.friendships[key]; ok {
		return models.Friendship{}, ErrConflict
	}
	g.nextID++
	friendship := models.Friendship{ID: g.nextID, Members: [2]string{key.from, key.to}, CreatedAt: time.Now()}
	g.friendships[key] = friendship
	return friendship, nil
}

func (g *fakeGraph) Delete(_ context.Context, _ db.Querier, from, to string) (bool, error) {
	if _, ok := g.requests[pair{from, to}]; !ok {
		return false, nil
	}
	delete(g.requests, pair{from, to})
	return true, nil
}

func (g *fakeGraph) ListIncoming(_ context.Context, _ db.Querier, userID string) ([]models.FriendRequest, error) {
	var out []models.FriendRequest
	for key, request := range g.requests {
		if key.to == userID {
			out = append(out, request)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *fakeGraph) ListOutgoing(_ context.Context, _ db.Querier, userID string) ([]models.FriendRequest, error) {
	var out []models.FriendRequest
	for key, request := range g.requests {
		if key.from == userID {
			out = append(out, request)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *fakeGraph) AreFriends(_ context.Context, _ db.Querier, a, b string) (bool, error) {
	_, ok := g.friendships[unordered(a, b)]
	return ok, nil
}

func (g *fakeGraph) List(_ context.Context, _ db.Querier, userID string) ([]string, error) {
	var ids []string
	for key := range g.friendships {
		switch userID {
		case key.from:
			ids = append(ids, key.to)
		case key.to:
			ids = append(ids, key.from)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (g *fakeGraph) Dissolve(_ context.Context, _ db.Querier, a, b string) (bool, error) {
	key := unordered(a, b)
	if _, ok := g.friendships[key]; !ok {
		return false, nil
	}
	delete(g.friendships, key)
	return true, nil
}

func (g *fakeGraph) Block(ctx context.Context, q db.Querier, from, to string) (bool, error) {
	delete(g.requests, pair{from, to})
	delete(g.requests, pair{to, from})
	if _, err := g.Dissolve(ctx, q, from, to); err != nil {
		return false, err
	}
	if _, ok := g.blocks[pair{from, to}]; ok {
		return false, nil
	}
	g.blocks[pair{from, to}] = time.Now()
	return true, nil
}

func (g *fakeGraph) Unblock(_ context.Context, _ db.Querier, from, to string) (bool, error) {
	if _, ok := g.blocks[pair{from, to}]; !ok {
		return false, nil
	}
	delete(g.blocks, pair{from, to})
	return true, nil
}

func (g *fakeGraph) IsBlocked(_ context.Context, _ db.Querier, from, to string) (bool, error) {
	_, ok := g.blocks[pair{from, to}]
	return ok, nil
}

func (g *fakeGraph) ListBlockedBy(_ context.Context, _ db.Querier, from string) ([]string, error) {
	var ids []string
	for key := range g.blocks {
		if key.from == from {
			ids = append(ids, key.to)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func newTestService(t *testing.T) (*Service, *fakeGraph, *fakeDirectory, *inlineTx) {
	t.Helper()
	graph := newFakeGraph()
	directory := newFakeDirectory(alice, bob, carol)
	tx := &inlineTx{}
	return NewService(tx, directory, graph, graph, graph), graph, directory, tx
}

func TestServiceAuthorizationOrder(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		prepare func(d *fakeDirectory)
		uid     string
		from    string
		to      string
		wantErr error
	}{
		{name: "acting for someone else", uid: alice, from: bob, to: carol, wantErr: ErrForbidden},
		{name: "unauthenticated", uid: "", from: "", to: bob, wantErr: ErrForbidden},
		{
			name: "disabled account",
			prepare: func(d *fakeDirectory) {
				u := d.users[alice]
				u.Disabled = true
				d.users[alice] = u
			},
			uid: alice, from: alice, to: bob, wantErr: ErrForbidden,
		},
		{name: "deleted account", prepare: func(d *fakeDirectory) { delete(d.users, alice) }, uid: alice, from: alice, to: bob, wantErr: ErrForbidden},
		{name: "self target", uid: alice, from: alice, to: alice, wantErr: ErrInvalidArgument},
		{name: "missing counterpart", uid: alice, from: alice, to: ghost, wantErr: ErrNotFound},
		{
			name: "disabled beats self target",
			prepare: func(d *fakeDirectory) {
				u := d.users[alice]
				u.Disabled = true
				d.users[alice] = u
			},
			uid: alice, from: alice, to: alice, wantErr: ErrForbidden,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, graph, directory, tx := newTestService(t)
			if tc.prepare != nil {
				tc.prepare(directory)
			}

			_, err := svc.SendRequest(ctx, tc.uid, tc.from, tc.to)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Zero(t, tx.calls, "no transaction should be opened when authorization fails")
			assert.Empty(t, graph.requests)
		})
	}
}

func TestServiceSendRequestRules(t *testing.T) {
	ctx := context.Background()

	t.Run("creates then repeats as pending", func(t *testing.T) {
		svc, graph, _, _ := newTestService(t)

		first, err := svc.SendRequest(ctx, alice, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, SendCreated, first.Outcome)

		second, err := svc.SendRequest(ctx, alice, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, SendAlreadyPending, second.Outcome)
		assert.Len(t, graph.requests, 1)
	})

	t.Run("blocked by target", func(t *testing.T) {
		svc, graph, _, _ := newTestService(t)
		graph.blocks[pair{bob, alice}] = time.Now()

		_, err := svc.SendRequest(ctx, alice, alice, bob)
		require.ErrorIs(t, err, ErrForbidden)
		assert.Empty(t, graph.requests)
	})

	t.Run("sender blocked target", func(t *testing.T) {
		svc, graph, _, _ := newTestService(t)
		graph.blocks[pair{alice, bob}] = time.Now()

		_, err := svc.SendRequest(ctx, alice, alice, bob)
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("already friends", func(t *testing.T) {
		svc, graph, _, _ := newTestService(t)
		graph.friendships[unordered(alice, bob)] = models.Friendship{ID: 1}

		_, err := svc.SendRequest(ctx, alice, alice, bob)
		require.ErrorIs(t, err, ErrForbidden)
		assert.Empty(t, graph.requests)
	})

	t.Run("mutual request becomes friendship", func(t *testing.T) {
		svc, graph, _, _ := newTestService(t)

		_, err := svc.SendRequest(ctx, alice, alice, bob)
		require.NoError(t, err)

		result, err := svc.SendRequest(ctx, bob, bob, alice)
		require.NoError(t, err)
		assert.Equal(t, SendAutoAccepted, result.Outcome)
		require.NotNil(t, result.Friendship)
		assert.Empty(t, graph.requests)
		assert.Len(t, graph.friendships, 1)
	})
}

func TestServiceAcceptRejectWithdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("only recipient may accept", func(t *testing.T) {
		svc, graph, _, _ := newTestService(t)
		_, err := svc.SendRequest(ctx, alice, alice, bob)
		require.NoError(t, err)

		_, err = svc.AcceptRequest(ctx, alice, alice, bob)
		require.ErrorIs(t, err, ErrForbidden)

		friendship, err := svc.AcceptRequest(ctx, bob, alice, bob)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{alice, bob}, friendship.Members[:])
		assert.Empty(t, graph.requests)
	})

	t.Run("accept without request", func(t *testing.T) {
		svc, graph, _, _ := newTestService(t)

		_, err := svc.AcceptRequest(ctx, bob, alice, bob)
		require.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, graph.friendships)
	})

	t.Run("reject reports whether a request existed", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, err := svc.SendRequest(ctx, alice, alice, bob)
		require.NoError(t, err)

		removed, err := svc.RejectRequest(ctx, bob, alice, bob)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = svc.RejectRequest(ctx, bob, alice, bob)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("sender cannot reject", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, err := svc.RejectRequest(ctx, alice, alice, bob)
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("withdraw by sender", func(t *testing.T) {
		svc, graph, _, _ := newTestService(t)
		_, err := svc.SendRequest(ctx, alice, alice, bob)
		require.NoError(t, err)

		_, err = svc.WithdrawRequest(ctx, bob, alice, bob)
		require.ErrorIs(t, err, ErrForbidden)

		removed, err := svc.WithdrawRequest(ctx, alice, alice, bob)
		require.NoError(t, err)
		assert.True(t, removed)
		assert.Empty(t, graph.requests)
	})
}

func TestServiceBlockCascade(t *testing.T) {
	ctx := context.Background()
	svc, graph, _, _ := newTestService(t)

	_, err := svc.SendRequest(ctx, alice, alice, bob)
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, bob, alice, bob)
	require.NoError(t, err)
	_, err = svc.SendRequest(ctx, carol, carol, alice)
	require.NoError(t, err)

	created, err := svc.Block(ctx, alice, alice, bob)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, graph.friendships)

	created, err = svc.Block(ctx, alice, alice, carol)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, graph.requests)

	again, err := svc.Block(ctx, alice, alice, bob)
	require.NoError(t, err)
	assert.False(t, again)

	blocked, err := svc.ListBlocked(ctx, alice)
	require.NoError(t, err)
	require.Len(t, blocked, 2)
	assert.Equal(t, bob, blocked[0].ID)
	assert.Equal(t, carol, blocked[1].ID)

	removed, err := svc.Unblock(ctx, alice, alice, bob)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.Unblock(ctx, alice, alice, bob)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = svc.Unblock(ctx, bob, alice, carol)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestServiceDissolveFriendship(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	_, err := svc.SendRequest(ctx, alice, alice, bob)
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, bob, alice, bob)
	require.NoError(t, err)

	require.NoError(t, svc.DissolveFriendship(ctx, bob, bob, alice))

	err = svc.DissolveFriendship(ctx, bob, bob, alice)
	require.ErrorIs(t, err, ErrNotFound)

	friends, err := svc.ListFriends(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, friends)
}

func TestServiceListsHydrateAccounts(t *testing.T) {
	ctx := context.Background()
	svc, _, directory, _ := newTestService(t)

	_, err := svc.SendRequest(ctx, alice, alice, bob)
	require.NoError(t, err)
	_, err = svc.SendRequest(ctx, carol, carol, bob)
	require.NoError(t, err)

	incoming, err := svc.ListIncoming(ctx, bob)
	require.NoError(t, err)
	require.Len(t, incoming, 2)
	assert.Equal(t, alice, incoming[0].Account.ID)
	assert.Equal(t, carol, incoming[1].Account.ID)

	outgoing, err := svc.ListOutgoing(ctx, alice)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, bob, outgoing[0].Account.ID)

	delete(directory.users, carol)
	incoming, err = svc.ListIncoming(ctx, bob)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, alice, incoming[0].Request.FromID)

	_, err = svc.ListFriends(ctx, ghost)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestServicePropagatesStoreFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	directory := newFakeDirectory(alice, bob)
	svc := NewService(failingTx{err: boom}, directory, newFakeGraph(), newFakeGraph(), newFakeGraph())

	_, err := svc.SendRequest(ctx, alice, alice, bob)
	require.ErrorIs(t, err, boom)

	_, err = svc.ListFriends(ctx, alice)
	require.ErrorIs(t, err, boom)
}

type failingTx struct {
	err error
}

func (f failingTx) InTx(context.Context, func(q db.Querier) error) error {
	return f.err
}
