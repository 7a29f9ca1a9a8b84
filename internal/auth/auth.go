package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"account_service/internal/account"
	"account_service/internal/lib/jwt"
	sl "account_service/internal/lib/logger/sl"
	"account_service/internal/lib/verification"
	"account_service/internal/models"
	"account_service/internal/refresh"
)

const tokenType = "bearer"

// dummyPassword is verified when the email is unknown so that both login
// failure paths cost one hash verification.
const dummyPassword = "account-service-dummy-password"

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidToken          = errors.New("invalid token")
	ErrEmailTaken            = account.ErrEmailTaken
)

type UserDirectory interface {
	Create(ctx context.Context, email, name, password string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
	MarkVerified(ctx context.Context, userID int64) error
	SetPasswordHash(ctx context.Context, userID int64, passHash string) error
}

type RefreshStore interface {
	Issue(ctx context.Context, userID int64) (models.RefreshToken, error)
	Rotate(ctx context.Context, token string) (models.RefreshToken, error)
	Revoke(ctx context.Context, token string) (bool, error)
	RevokeAll(ctx context.Context, userID int64) (int64, error)
}

type TokenCodec interface {
	NewAccessToken(subject string, ttl time.Duration) (string, error)
	ParseAccessToken(token string) (jwt.AccessClaims, error)
	NewPurposeToken(userID int64, purpose jwt.Purpose, ttl time.Duration) (string, error)
	ParsePurposeToken(token string, purpose jwt.Purpose) (jwt.PurposeClaims, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}

type LinkSender interface {
	SendLink(ctx context.Context, email, link, purpose string) error
}

type UsedTokenMarker interface {
	MarkTokenUsed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Settings struct {
	AccessTokenTTL       time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	PublicURL            string
}

type Auth struct {
	log        *slog.Logger
	users      UserDirectory
	sessions   RefreshStore
	codec      TokenCodec
	hasher     PasswordHasher
	links      LinkSender
	usedTokens UsedTokenMarker
	settings   Settings
	now        func() time.Time
	dummyHash  string
}

func New(
	log *slog.Logger,
	users UserDirectory,
	sessions RefreshStore,
	codec TokenCodec,
	hasher PasswordHasher,
	links LinkSender,
	usedTokens UsedTokenMarker,
	settings Settings,
) *Auth {
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		log.Warn("failed to prepare dummy password hash", sl.Err(err))
	}

	return &Auth{
		log:        log,
		users:      users,
		sessions:   sessions,
		codec:      codec,
		hasher:     hasher,
		links:      links,
		usedTokens: usedTokens,
		settings:   settings,
		now:        time.Now,
		dummyHash:  dummyHash,
	}
}

// * Register создает пользователя и отправляет ссылку для подтверждения почты
func (a *Auth) Register(ctx context.Context, email, name, password string) (models.User, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	log.Info("registering new user")

	user, err := a.users.Create(ctx, email, name, password)
	if err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			return models.User{}, ErrEmailTaken
		}

		log.Error("failed to create user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.RequestVerification(ctx, user); err != nil {
		log.Warn("failed to send verification link", slog.Int64("uid", user.ID), sl.Err(err))
	}

	return user, nil
}

// * Login проверяет учетные данные и возвращает access и refresh токены
func (a *Auth) Login(ctx context.Context, email, password string) (models.TokenPair, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			a.hasher.Verify(password, a.dummyHash)

			log.Info("invalid credentials")
			return models.TokenPair{}, ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if !a.hasher.Verify(password, user.PassHash) {
		log.Info("invalid credentials")
		return models.TokenPair{}, ErrInvalidCredentials
	}

	rt, err := a.sessions.Issue(ctx, user.ID)
	if err != nil {
		log.Error("failed to issue refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.tokenPair(rt)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in successfully", slog.Int64("uid", user.ID))

	return pair, nil
}

// * Refresh ротирует refresh токен: старый отзывается, выдается новая пара
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	if refreshToken == "" {
		return models.TokenPair{}, ErrInvalidOrExpiredToken
	}

	rt, err := a.sessions.Rotate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, refresh.ErrTokenNotActive) {
			log.Info("refresh token is not active")
			return models.TokenPair{}, ErrInvalidOrExpiredToken
		}

		log.Error("failed to rotate refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.tokenPair(rt)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("refresh successful", slog.Int64("uid", rt.UserID))

	return pair, nil
}

// Logout revokes refreshToken if it exists. Unknown or empty tokens are not
// an error.
func (a *Auth) Logout(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	if refreshToken == "" {
		return nil
	}

	found, err := a.sessions.Revoke(ctx, refreshToken)
	if err != nil {
		log.Error("failed to revoke refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("logout successful", slog.Bool("found", found))

	return nil
}

// Authenticate resolves an access token to its user. Every failure,
// including a deleted user, is reported as ErrUnauthorized.
func (a *Auth) Authenticate(ctx context.Context, accessToken string) (models.User, error) {
	const op = "auth.Authenticate"

	log := a.log.With(slog.String("op", op))

	claims, err := a.codec.ParseAccessToken(accessToken)
	if err != nil {
		log.Debug("invalid access token", sl.Err(err))
		return models.User{}, ErrUnauthorized
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return models.User{}, ErrUnauthorized
	}

	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			log.Info("token subject no longer exists", slog.Int64("uid", userID))
			return models.User{}, ErrUnauthorized
		}

		log.Error("failed to load user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// * RequestVerification отправляет пользователю ссылку для подтверждения почты
func (a *Auth) RequestVerification(ctx context.Context, user models.User) error {
	const op = "auth.RequestVerification"

	if user.IsVerified {
		return nil
	}

	token, err := a.codec.NewPurposeToken(user.ID, jwt.PurposeVerification, a.settings.VerificationTokenTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	link := a.link("/account/verify", token)

	if err := a.links.SendLink(ctx, user.Email, link, verification.PurposeVerification); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("verification link sent", slog.String("op", op), slog.Int64("uid", user.ID))

	return nil
}

func (a *Auth) VerifyEmail(ctx context.Context, token string) error {
	const op = "auth.VerifyEmail"

	log := a.log.With(slog.String("op", op))

	claims, err := a.codec.ParsePurposeToken(token, jwt.PurposeVerification)
	if err != nil {
		log.Info("invalid verification token", sl.Err(err))
		return ErrInvalidToken
	}

	if err := a.users.MarkVerified(ctx, claims.UserID); err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			return ErrInvalidToken
		}

		log.Error("failed to mark user as verified", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email verified", slog.Int64("uid", claims.UserID))

	return nil
}

// RequestPasswordReset sends a reset link when email belongs to a user.
// The outcome is the same whether or not the account exists.
func (a *Auth) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "auth.RequestPasswordReset"

	log := a.log.With(slog.String("op", op))

	user, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			log.Info("password reset requested for unknown email")
			return nil
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	token, err := a.codec.NewPurposeToken(user.ID, jwt.PurposeReset, a.settings.ResetTokenTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.links.SendLink(ctx, user.Email, a.link("/account/password-reset", token), verification.PurposeReset); err != nil {
		log.Error("failed to send reset link", sl.Err(err))
		return nil
	}

	log.Info("password reset link sent", slog.Int64("uid", user.ID))

	return nil
}

// ResetPassword sets a new password for the token's user and revokes all of
// the user's refresh tokens. A reset token works once.
func (a *Auth) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op))

	claims, err := a.codec.ParsePurposeToken(token, jwt.PurposeReset)
	if err != nil {
		log.Info("invalid reset token", sl.Err(err))
		return ErrInvalidToken
	}

	first, err := a.usedTokens.MarkTokenUsed(ctx, "reset:"+claims.ID, claims.ExpiresAt.Sub(a.now()))
	if err != nil {
		log.Error("failed to mark reset token as used", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if !first {
		log.Warn("reset token reused", slog.Int64("uid", claims.UserID))
		return ErrInvalidToken
	}

	passHash, err := a.hasher.Hash(newPassword)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.users.SetPasswordHash(ctx, claims.UserID, passHash); err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			return ErrInvalidToken
		}

		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	revoked, err := a.sessions.RevokeAll(ctx, claims.UserID)
	if err != nil {
		log.Error("failed to revoke sessions", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password reset", slog.Int64("uid", claims.UserID), slog.Int64("revoked_sessions", revoked))

	return nil
}

func (a *Auth) tokenPair(rt models.RefreshToken) (models.TokenPair, error) {
	accessToken, err := a.codec.NewAccessToken(strconv.FormatInt(rt.UserID, 10), a.settings.AccessTokenTTL)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     rt.Token,
		RefreshExpiresAt: rt.ExpiresAt,
		TokenType:        tokenType,
	}, nil
}

func (a *Auth) link(path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", a.settings.PublicURL, path, url.QueryEscape(token))
}
