package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetRefresh(t *testing.T) {
	rec := httptest.NewRecorder()

	SetRefresh(rec, "tok", Settings{Secure: true, MaxAge: 7 * 24 * time.Hour})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	c := cookies[0]
	assert.Equal(t, RefreshName, c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.Equal(t, Path, c.Path)
	assert.Equal(t, 604800, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestClearRefresh(t *testing.T) {
	rec := httptest.NewRecorder()

	ClearRefresh(rec, Settings{})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, RefreshName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
	assert.False(t, cookies[0].Secure)
}

func TestRefresh(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/account/refresh", nil)
	assert.Empty(t, Refresh(req))

	req.AddCookie(&http.Cookie{Name: RefreshName, Value: "tok"})
	assert.Equal(t, "tok", Refresh(req))
}
