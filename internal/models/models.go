package models

import "time"

type User struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	PassHash   string    `json:"-"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// * IsActive сообщает, можно ли использовать токен в момент now
func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.UTC().After(now.UTC())
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	TokenType        string
}

type Message struct {
	Email   string `json:"to"`
	Link    string `json:"link"`
	Purpose string `json:"purpose"`
	Subject string `json:"subject"`
}
