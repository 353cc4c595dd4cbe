package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fedus/safe-crossing-cf/internal/config"
)

func Test_initConfig(t *testing.T) {
	if wd, err := os.Getwd(); err != nil {
		t.Error(err)
	} else {
		configFile = wd + "/../../config/safecrossing.example.yaml"
	}
	envFile = ""
	initConfig()
	assert.EqualValues(t, "passw0rd", appConfig.Auth.BasicAuth[0].Password)
	assert.Equal(t, config.SqliteDriver, appConfig.Storage.Driver)
	assert.Equal(t, 10*time.Second, appConfig.ShutdownTimeout)
	assert.Equal(t, config.DefaultVoting, appConfig.Voting)
	assert.Equal(t, "0 3 * * *", appConfig.Audit.Schedule)
}

func Test_loadEnvFile(t *testing.T) {
	envFile = filepath.Join(t.TempDir(), "test.env")
	defer func() { envFile = "" }()
	assert.NoError(t, os.WriteFile(envFile, []byte("SAFE_CROSSING_TEST_ONLY=from-dotenv\n"), 0600))
	defer os.Unsetenv("SAFE_CROSSING_TEST_ONLY")

	loadEnvFile()
	assert.Equal(t, "from-dotenv", os.Getenv("SAFE_CROSSING_TEST_ONLY"))
}

func Test_loadEnvFile_missing(t *testing.T) {
	envFile = filepath.Join(t.TempDir(), "nope.env")
	defer func() { envFile = "" }()
	assert.NotPanics(t, loadEnvFile)
}
