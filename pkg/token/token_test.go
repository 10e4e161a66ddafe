package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestGenerateAndParse(t *testing.T) {
	sub := Subject{UserID: "u-1", Username: "ana", Role: "admin", IsOwner: true}
	tok, err := Generate(secret, "gestoria", KindAccess, sub, time.Minute)
	require.NoError(t, err)

	claims, err := Parse(secret, tok, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.True(t, claims.IsOwner)
	assert.Equal(t, "gestoria", claims.Issuer)
}

func TestParseRejectsWrongKind(t *testing.T) {
	tok, err := Generate(secret, "gestoria", KindRefresh, Subject{UserID: "u-1"}, time.Minute)
	require.NoError(t, err)

	_, err = Parse(secret, tok, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpired(t *testing.T) {
	tok, err := Generate(secret, "gestoria", KindAccess, Subject{UserID: "u-1"}, -time.Minute)
	require.NoError(t, err)

	_, err = Parse(secret, tok, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	tok, err := Generate(secret, "gestoria", KindAccess, Subject{UserID: "u-1"}, time.Minute)
	require.NoError(t, err)

	_, err = Parse([]byte("other"), tok, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestEmptySecret(t *testing.T) {
	_, err := Generate(nil, "gestoria", KindAccess, Subject{}, time.Minute)
	assert.Error(t, err)
}
