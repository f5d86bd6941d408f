package config

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) { return "/home/test/.ddsclient", nil }
	os.Unsetenv(UserConfigEnv)

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DataServiceURL, config.URL)
	assert.Equal(t, D4S2ServiceURL, config.D4S2URL)
	assert.Equal(t, int64(DefaultUploadBytesPerChunk), config.UploadBytesPerChunk)
	assert.Equal(t, DefaultPageSize, config.GetPageSize)
	assert.Equal(t, DefaultFileExcludeRegex, config.FileExcludeRegex)
	assert.NotZero(t, config.UploadWorkers)
	assert.NotZero(t, config.DownloadWorkers)
}

func TestLoadUserOverridesGlobal(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) { return "/home/test/.ddsclient", nil }
	os.Unsetenv(UserConfigEnv)

	globalConfig := "url: https://global.example.com/api/v1\nupload_workers: 2\n"
	userConfig := "url: https://user.example.com/api/v1\nuser_key: user-secret\nagent_key: agent-secret\n"
	require.NoError(t, afero.WriteFile(fs, GlobalConfigPath, []byte(globalConfig), 0600))
	require.NoError(t, afero.WriteFile(fs, "/home/test/.ddsclient", []byte(userConfig), 0600))

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://user.example.com/api/v1", config.URL)
	assert.Equal(t, "user-secret", config.UserKey)
	assert.Equal(t, "agent-secret", config.AgentKey)
	assert.Equal(t, 2, config.UploadWorkers)
}

func TestLoadEnvOverridesConfigPath(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) { return "/home/test/.ddsclient", nil }
	os.Setenv(UserConfigEnv, "/custom/ddsclient.conf")
	defer os.Unsetenv(UserConfigEnv)

	userConfig := "agent_key: from-env-path\n"
	require.NoError(t, afero.WriteFile(fs, "/custom/ddsclient.conf", []byte(userConfig), 0600))

	config, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env-path", config.AgentKey)
}

func TestLoadBadYaml(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) { return "/home/test/.ddsclient", nil }
	os.Unsetenv(UserConfigEnv)

	require.NoError(t, afero.WriteFile(fs, "/home/test/.ddsclient",
		[]byte("url: [unclosed"), 0600))

	_, err := Load()
	assert.Error(t, err)
}
