package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2-ai/ghqc/internal/ghqcerrors"
)

func TestValidTokenShape(t *testing.T) {
	assert.True(t, validTokenShape("ghp_"+repeat("a", 20)))
	assert.True(t, validTokenShape(repeat("a", 20)))
	assert.False(t, validTokenShape("short"))
	assert.False(t, validTokenShape("has a space in it but is long enough"))
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func TestDiscoverToken_EnvWins(t *testing.T) {
	t.Setenv(tokenEnvVar, "ghp_"+repeat("b", 20))
	tok, err := DiscoverToken()
	require.NoError(t, err)
	assert.Equal(t, "ghp_"+repeat("b", 20), tok)
}

func TestDiscoverToken_NetrcFallback(t *testing.T) {
	t.Setenv(tokenEnvVar, "")
	dir := t.TempDir()
	netrcPath := filepath.Join(dir, ".netrc")
	content := "machine github.com\n  login x\n  password " + repeat("c", 20) + "\n"
	require.NoError(t, os.WriteFile(netrcPath, []byte(content), 0o600))
	t.Setenv("NETRC", netrcPath)

	tok, ok := netrcToken()
	require.True(t, ok)
	assert.Equal(t, repeat("c", 20), tok)
}

func TestDiscoverToken_AllMissesReturnsAuthMissingError(t *testing.T) {
	t.Setenv(tokenEnvVar, "")
	t.Setenv("NETRC", filepath.Join(t.TempDir(), "nope"))
	t.Setenv("GH_CONFIG_DIR", filepath.Join(t.TempDir(), "nope"))
	t.Setenv("PATH", "")

	_, err := DiscoverToken()
	require.Error(t, err)
	var authErr *ghqcerrors.AuthMissingError
	require.ErrorAs(t, err, &authErr)
}
