package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, key := range []string{"CARDS_DB_DRIVER", "DB_PATH", "CARDS_LOG_FILE", "CARDS_TIMEZONE", "CARDS_TIMEOUT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "cards.db", cfg.DBPath)
	assert.Empty(t, cfg.LogFile)
	assert.Equal(t, "Europe/Brussels", cfg.Timezone)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
}

func TestLoadEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CARDS_DB_DRIVER", "postgres")
	t.Setenv("DB_PATH", "postgres://localhost/cards")
	t.Setenv("CARDS_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://localhost/cards", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CARDS_LOG_FILE=/var/log/cards.log\nDB_PATH=from-dotenv.db\n"), 0o600))
	t.Setenv("DB_PATH", "from-env.db")
	t.Setenv("CARDS_LOG_FILE", "")
	os.Unsetenv("CARDS_LOG_FILE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.DBPath)
	assert.Equal(t, "/var/log/cards.log", cfg.LogFile)
}

func TestLoadInvalidDuration(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CARDS_TIMEOUT", "soon")

	_, err := Load()
	assert.ErrorContains(t, err, "parse env")
}

func TestLocation(t *testing.T) {
	loc, err := Location("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = Location("")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	_, err = Location("Nowhere/City")
	assert.ErrorContains(t, err, "invalid timezone")
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
