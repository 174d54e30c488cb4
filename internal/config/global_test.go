package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGlobalConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if content == "" {
		return
	}
	path := filepath.Join(dir, GlobalConfigDir, GlobalConfigFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvAccessToken, EnvCrossrefMailto, EnvCrossrefPlusToken, EnvS2APIKey} {
		t.Setenv(k, "")
	}
}

func TestGlobalConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/unmash/config.yml", GlobalConfigPath())

	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}
	assert.Equal(t, filepath.Join(home, ".config", "unmash", "config.yml"), GlobalConfigPath())
}

func TestLoadGlobalConfig_NotFound(t *testing.T) {
	ResetGlobalConfigCache()
	defer ResetGlobalConfigCache()
	writeGlobalConfig(t, "")

	creds, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, Credentials{}, *creds)
}

func TestLoadCredentials_Precedence(t *testing.T) {
	ResetGlobalConfigCache()
	defer ResetGlobalConfigCache()
	clearCredentialEnv(t)
	writeGlobalConfig(t, "opencitations_access_token: from-file\ncrossref_mailto: file@example.org\n")

	t.Setenv(EnvCrossrefMailto, "env@example.org")

	creds, err := LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "from-file", creds.AccessToken)
	assert.Equal(t, "env@example.org", creds.CrossrefMailto, "env should win")
}

func TestLoadCredentials_DotEnv(t *testing.T) {
	ResetGlobalConfigCache()
	defer ResetGlobalConfigCache()
	clearCredentialEnv(t)
	writeGlobalConfig(t, "")
	// godotenv only fills unset variables, so drop the empty ones set above.
	os.Unsetenv(EnvCrossrefPlusToken)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(EnvCrossrefPlusToken+"=plus-123\n"), 0600))
	t.Cleanup(func() { os.Unsetenv(EnvCrossrefPlusToken) })

	creds, err := LoadCredentials(envFile, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "plus-123", creds.CrossrefPlusToken)
}
