package secret

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := New("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := c.Encrypt(`[{"id":"a","value":"tok"}]`)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(sealed))
	assert.NotContains(t, sealed, "tok")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a","value":"tok"}]`, plain)
}

func TestCipher_NonceIsRandom(t *testing.T) {
	c, err := New("pass")
	require.NoError(t, err)

	a, _ := c.Encrypt("same")
	b, _ := c.Encrypt("same")
	assert.NotEqual(t, a, b)
}

func TestCipher_WrongKeyFails(t *testing.T) {
	c1, _ := New("one")
	c2, _ := New("two")

	sealed, err := c1.Encrypt("secret value")
	require.NoError(t, err)

	_, err = c2.Decrypt(sealed)
	assert.Error(t, err)
}

func TestCipher_PlainPassthrough(t *testing.T) {
	c, _ := New("pass")

	got, err := c.Decrypt("not encrypted")
	require.NoError(t, err)
	assert.Equal(t, "not encrypted", got)

	empty, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNew_EmptyPassphrase(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.key")

	k1, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.NotEmpty(t, k1)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	k2, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.False(t, strings.Contains(k2, "\n"))
}
