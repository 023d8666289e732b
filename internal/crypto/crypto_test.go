package crypto

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPasswordSeedHash(t *testing.T) {
	require.NoError(t, CheckPassword(string(dummyHash), "password"))
	assert.ErrorIs(t, CheckPassword(string(dummyHash), "wrong"), ErrPasswordMismatch)
}

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.NoError(t, CheckPassword(hash, "s3cret"))

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestTokenSignAndParse(t *testing.T) {
	signer, err := NewTokenSigner("test-secret", 0)
	require.NoError(t, err)

	token, err := signer.Sign("1", "alice")
	require.NoError(t, err)

	claims, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.ID)
	assert.Equal(t, "alice", claims.Username)
	assert.Nil(t, claims.ExpiresAt)
}

func TestTokenRejectsOtherSecret(t *testing.T) {
	a, _ := NewTokenSigner("secret-a", 0)
	b, _ := NewTokenSigner("secret-b", 0)

	token, err := a.Sign("2", "bob")
	require.NoError(t, err)

	_, err = b.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejectsNoneAlgorithm(t *testing.T) {
	signer, _ := NewTokenSigner("secret", 0)
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ID: "1", Username: "alice"})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = signer.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpiry(t *testing.T) {
	signer, _ := NewTokenSigner("secret", time.Hour)
	issued := time.Now()
	signer.now = func() time.Time { return issued }

	token, err := signer.Sign("3", "charlie")
	require.NoError(t, err)

	_, err = signer.Parse(token)
	require.NoError(t, err)

	signer.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = signer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenSignerRequiresSecret(t *testing.T) {
	_, err := NewTokenSigner("", 0)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestNewMessageIDIsSortable(t *testing.T) {
	first := NewMessageID()
	second := NewMessageID()
	assert.Len(t, first, 26)
	assert.Less(t, first, second)
}
