package jwt

import (
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time { return c.t }

func newTestCodec(secret string) (*Codec, *clock) {
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(secret, WithClock(clk.Now)), clk
}

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec("secret")

	tok, err := c.NewAccessToken("42", 15*time.Minute)
	require.NoError(t, err)

	got, err := c.ParseAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "42", got.Subject)
	assert.True(t, clk.t.Add(15*time.Minute).Equal(got.ExpiresAt))
}

func TestAccessToken_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec("secret")

	tok, err := c.NewAccessToken("42", time.Minute)
	require.NoError(t, err)

	clk.t = clk.t.Add(time.Minute + 2*time.Second)

	_, err = c.ParseAccessToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessToken_WrongSecret(t *testing.T) {
	t.Parallel()

	a, _ := newTestCodec("right")
	b, _ := newTestCodec("wrong")

	tok, err := a.NewAccessToken("1", time.Minute)
	require.NoError(t, err)

	_, err = b.ParseAccessToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessToken_Corrupted(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec("secret")

	tok, err := c.NewAccessToken("1", time.Minute)
	require.NoError(t, err)

	for _, bad := range []string{"", "not.a.jwt", tok[:len(tok)-2], strings.Replace(tok, ".", "..", 1)} {
		_, err := c.ParseAccessToken(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
}

func TestAccessToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec("secret")

	tok, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS512, claims{
		Purpose: PurposeAccess,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwtv5.NewNumericDate(clk.t.Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = c.ParseAccessToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPurposeToken_RoundTrip(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec("secret")

	tok, err := c.NewPurposeToken(7, PurposeVerification, time.Hour)
	require.NoError(t, err)

	got, err := c.ParsePurposeToken(tok, PurposeVerification)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, PurposeVerification, got.Purpose)
	assert.NotEmpty(t, got.ID)
}

func TestPurposeToken_PurposeIsolation(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec("secret")

	verify, err := c.NewPurposeToken(1, PurposeVerification, time.Hour)
	require.NoError(t, err)

	_, err = c.ParsePurposeToken(verify, PurposeReset)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = c.ParseAccessToken(verify)
	assert.ErrorIs(t, err, ErrInvalidToken)

	access, err := c.NewAccessToken("1", time.Hour)
	require.NoError(t, err)

	_, err = c.ParsePurposeToken(access, PurposeVerification)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPurposeToken_UniqueIDs(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec("secret")

	a, err := c.NewPurposeToken(1, PurposeReset, time.Hour)
	require.NoError(t, err)
	b, err := c.NewPurposeToken(1, PurposeReset, time.Hour)
	require.NoError(t, err)

	ca, err := c.ParsePurposeToken(a, PurposeReset)
	require.NoError(t, err)
	cb, err := c.ParsePurposeToken(b, PurposeReset)
	require.NoError(t, err)

	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestPurposeToken_Expired(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec("secret")

	tok, err := c.NewPurposeToken(1, PurposeReset, time.Minute)
	require.NoError(t, err)

	clk.t = clk.t.Add(2 * time.Minute)

	_, err = c.ParsePurposeToken(tok, PurposeReset)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewPurposeToken_RejectsAccessPurpose(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec("secret")

	_, err := c.NewPurposeToken(1, PurposeAccess, time.Minute)
	assert.Error(t, err)
}

func TestSign_EmptySecret(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec("")

	_, err := c.NewAccessToken("1", time.Minute)
	assert.Error(t, err)
}
