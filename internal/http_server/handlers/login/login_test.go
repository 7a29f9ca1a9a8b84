package login

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"account_service/internal/auth"
	"account_service/internal/http_server/cookie"
	"account_service/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	err error
}

func (f fakeAuthenticator) Login(_ context.Context, email, password string) (models.TokenPair, error) {
	if f.err != nil {
		return models.TokenPair{}, f.err
	}

	if email != "a@x.com" || password != "p1" {
		return models.TokenPair{}, auth.ErrInvalidCredentials
	}

	return models.TokenPair{AccessToken: "access", RefreshToken: "refresh", TokenType: "bearer"}, nil
}

func do(t *testing.T, a Authenticator, values url.Values) *httptest.ResponseRecorder {
	t.Helper()

	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), validator.New(), a, cookie.Settings{MaxAge: 7 * 24 * time.Hour})

	req := httptest.NewRequest(http.MethodPost, "/account/login", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestLogin(t *testing.T) {
	rec := do(t, fakeAuthenticator{}, url.Values{
		"username":   {"a@x.com"},
		"password":   {"p1"},
		"grant_type": {"password"},
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "access", body.AccessToken)
	assert.Equal(t, "bearer", body.TokenType)
	assert.NotContains(t, rec.Body.String(), `"refresh"`)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookie.RefreshName, cookies[0].Name)
	assert.Equal(t, "refresh", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 604800, cookies[0].MaxAge)
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name   string
		a      Authenticator
		values url.Values
		code   int
	}{
		{name: "missing password", a: fakeAuthenticator{}, values: url.Values{"username": {"a@x.com"}}, code: http.StatusBadRequest},
		{name: "wrong password", a: fakeAuthenticator{}, values: url.Values{"username": {"a@x.com"}, "password": {"bad"}}, code: http.StatusUnauthorized},
		{name: "unknown user", a: fakeAuthenticator{}, values: url.Values{"username": {"b@x.com"}, "password": {"p1"}}, code: http.StatusUnauthorized},
		{name: "storage failure", a: fakeAuthenticator{err: errors.New("db down")}, values: url.Values{"username": {"a@x.com"}, "password": {"p1"}}, code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, tt.a, tt.values)

			assert.Equal(t, tt.code, rec.Code)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}
