package models

import "time"

// User represents an account within the Commenter platform.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Password    string    `json:"-"`
	PictureURL  string    `json:"pictureUrl"`
	Status      string    `json:"status"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProfileUpdate carries optional profile changes; nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName  *string
	Email        *string
	PasswordHash *string
	PictureURL   *string
	Status       *string
}

// FriendRequest is a pending, directional proposal to become friends.
type FriendRequest struct {
	ID        int64     `json:"id"`
	FromID    string    `json:"fromId"`
	ToID      string    `json:"toId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Friendship is the group row shared by exactly two member accounts.
type Friendship struct {
	ID        int64     `json:"id"`
	Members   [2]string `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// Block records that BlockFrom has blocked BlockTo.
type Block struct {
	BlockFrom string    `json:"blockFrom"`
	BlockTo   string    `json:"blockTo"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
