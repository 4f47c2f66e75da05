package crypto

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEd25519KeyDeterministicPrincipal(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	first, err := NewEd25519KeyFromSeed(seed)
	require.NoError(t, err)
	second, err := NewEd25519KeyFromSeed(seed)
	require.NoError(t, err)
	require.True(t, first.Principal().Equal(second.Principal()))
}

func TestEd25519KeyRejectsShortSeed(t *testing.T) {
	_, err := NewEd25519KeyFromSeed([]byte("short"))
	require.Error(t, err)
}

func TestPrincipalRoundTrip(t *testing.T) {
	seed := make([]byte, 32)
	seed[0] = 0xaa
	key, err := NewEd25519KeyFromSeed(seed)
	require.NoError(t, err)

	principal := key.Principal()
	text := principal.String()
	require.True(t, strings.HasPrefix(text, PrincipalPrefix+"1"))

	decoded, err := DecodePrincipal(text)
	require.NoError(t, err)
	require.True(t, principal.Equal(decoded))
}

func TestDecodePrincipalRejectsGarbage(t *testing.T) {
	for _, text := range []string{"", "not-bech32", "xyz1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq9uq0"} {
		_, err := DecodePrincipal(text)
		require.ErrorIs(t, err, ErrInvalidPrincipal, "input %q", text)
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GenerateSecp256k1Key()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "owner.keystore")
	require.NoError(t, SaveToKeystore(path, key, "hunter2"))

	loaded, err := LoadFromKeystore(path, "hunter2")
	require.NoError(t, err)
	require.True(t, key.Principal().Equal(loaded.Principal()))

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}
