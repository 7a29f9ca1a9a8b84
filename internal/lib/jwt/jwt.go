package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// ErrInvalidToken covers every parse failure: bad signature, corruption,
// expiry and purpose mismatch.
var ErrInvalidToken = errors.New("invalid token")

type Purpose string

const (
	PurposeAccess       Purpose = "access"
	PurposeVerification Purpose = "email_verification"
	PurposeReset        Purpose = "password_reset"
)

type AccessClaims struct {
	Subject   string
	ExpiresAt time.Time
}

type PurposeClaims struct {
	ID        string
	UserID    int64
	Purpose   Purpose
	ExpiresAt time.Time
}

type claims struct {
	Purpose Purpose `json:"purpose"`
	jwtv5.RegisteredClaims
}

type Codec struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func New(secret string, opts ...Option) *Codec {
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// * NewAccessToken создает подписанный access токен для subject
func (c *Codec) NewAccessToken(subject string, ttl time.Duration) (string, error) {
	now := c.now()

	return c.sign(claims{
		Purpose: PurposeAccess,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
		},
	})
}

func (c *Codec) ParseAccessToken(tokenStr string) (AccessClaims, error) {
	cl, err := c.parse(tokenStr, PurposeAccess)
	if err != nil {
		return AccessClaims{}, err
	}

	return AccessClaims{
		Subject:   cl.Subject,
		ExpiresAt: cl.ExpiresAt.UTC(),
	}, nil
}

// * NewPurposeToken создает короткоживущий токен для подтверждения почты или сброса пароля
func (c *Codec) NewPurposeToken(userID int64, purpose Purpose, ttl time.Duration) (string, error) {
	if purpose == PurposeAccess || purpose == "" {
		return "", fmt.Errorf("jwt.NewPurposeToken: unsupported purpose %q", purpose)
	}

	now := c.now()

	return c.sign(claims{
		Purpose: purpose,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
		},
	})
}

func (c *Codec) ParsePurposeToken(tokenStr string, purpose Purpose) (PurposeClaims, error) {
	cl, err := c.parse(tokenStr, purpose)
	if err != nil {
		return PurposeClaims{}, err
	}

	userID, err := strconv.ParseInt(cl.Subject, 10, 64)
	if err != nil {
		return PurposeClaims{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	return PurposeClaims{
		ID:        cl.ID,
		UserID:    userID,
		Purpose:   cl.Purpose,
		ExpiresAt: cl.ExpiresAt.UTC(),
	}, nil
}

func (c *Codec) sign(cl claims) (string, error) {
	if len(c.secret) == 0 {
		return "", errors.New("jwt: signing secret is not configured")
	}

	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, cl).SignedString(c.secret)
}

func (c *Codec) parse(tokenStr string, purpose Purpose) (*claims, error) {
	var cl claims

	token, err := jwtv5.ParseWithClaims(
		tokenStr,
		&cl,
		func(t *jwtv5.Token) (any, error) {
			return c.secret, nil
		},
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid || cl.Subject == "" {
		return nil, ErrInvalidToken
	}

	if cl.Purpose != purpose {
		return nil, fmt.Errorf("%w: purpose mismatch", ErrInvalidToken)
	}

	return &cl, nil
}
