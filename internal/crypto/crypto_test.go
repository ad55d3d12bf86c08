package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m, err := NewJWTManager("super-secret")
	require.NoError(t, err)

	token, err := m.CreateToken("u1", "alice", time.Hour)
	require.NoError(t, err)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.Equal(t, "alice", claims.Username)
}

func TestJWTManager_RejectsForeignSecret(t *testing.T) {
	a, err := NewJWTManager("secret-a-123")
	require.NoError(t, err)
	b, err := NewJWTManager("secret-b-456")
	require.NoError(t, err)

	token, err := a.CreateToken("u1", "", 0)
	require.NoError(t, err)

	_, err = b.VerifyToken(token)
	require.Error(t, err)
}

func TestJWTManager_NonPositiveTTLHasNoExpiry(t *testing.T) {
	m, err := NewJWTManager("super-secret")
	require.NoError(t, err)

	token, err := m.CreateToken("u1", "", -time.Minute)
	require.NoError(t, err)
	_, err = m.VerifyToken(token)
	require.NoError(t, err)

	_, err = m.VerifyToken("not-a-token")
	require.Error(t, err)
}

func TestNewJWTManager_ShortSecret(t *testing.T) {
	_, err := NewJWTManager("short")
	require.Error(t, err)
}

func TestRoomCode(t *testing.T) {
	code, err := RoomCode(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		require.True(t, strings.ContainsRune(roomCodeAlphabet, r))
	}
}
