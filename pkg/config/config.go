package config

import (
	"os"
	"runtime"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/duke-gcb/ddsclient/pkg/errors"
)

const (
	// GlobalConfigPath is the system wide configuration file. Values in the
	// user config override it.
	GlobalConfigPath = "/etc/ddsclient.conf"

	// UserConfigPath is the default path to the user config.
	UserConfigPath = "~/.ddsclient"

	// UserConfigEnv overrides the path to the user config when set.
	UserConfigEnv = "DDSCLIENT_CONF"

	// DataServiceURL is the default data service API endpoint.
	DataServiceURL = "https://api.dataservice.duke.edu/api/v1"

	// D4S2ServiceURL is the default deliver/share service API endpoint.
	D4S2ServiceURL = "https://datadelivery.genome.duke.edu/api/v1"

	mbToBytes = 1024 * 1024

	// DefaultUploadBytesPerChunk is how big a piece of a file we send per
	// upload request unless overridden.
	DefaultUploadBytesPerChunk = 100 * mbToBytes

	// DefaultPageSize is how many items we request per page for paginated
	// GET requests.
	DefaultPageSize = 100

	// DefaultFileExcludeRegex skips .DS_Store, our config file, and ._
	// resource fork metadata when uploading.
	DefaultFileExcludeRegex = `^\.DS_Store$|^\.ddsclient$|^\._`

	maxDefaultWorkers = 8
)

// Config contains the settings used to talk to the data service and the
// deliver/share service. Fields left empty in the config files fall back to
// the defaults applied by Load.
type Config struct {
	// URL is the data service endpoint we connect to.
	URL string `json:"url,omitempty"`

	// UserKey is the secret key for the user (from /current_user/api_key).
	UserKey string `json:"user_key,omitempty"`

	// AgentKey identifies the software agent acting on behalf of the user.
	AgentKey string `json:"agent_key,omitempty"`

	// Auth is a literal auth token. This is the legacy setup; when set and
	// no expiration is known we never try to fetch a fresh token.
	Auth string `json:"auth,omitempty"`

	// UploadBytesPerChunk is the size of the pieces files are split into
	// when uploading.
	UploadBytesPerChunk int64 `json:"upload_bytes_per_chunk,omitempty"`

	// UploadWorkers bounds how many files upload concurrently.
	UploadWorkers int `json:"upload_workers,omitempty"`

	// DownloadWorkers bounds how many ranges of a file download concurrently.
	DownloadWorkers int `json:"download_workers,omitempty"`

	// D4S2URL is the deliver/share service endpoint.
	D4S2URL string `json:"d4s2_url,omitempty"`

	// FileExcludeRegex matches file names that should never be uploaded.
	FileExcludeRegex string `json:"file_exclude_regex,omitempty"`

	// GetPageSize is the per_page value used for paginated requests.
	GetPageSize int `json:"get_page_size,omitempty"`
}

// homedirExpand will be overridden in mock tests.
var homedirExpand = homedir.Expand

// GetUserConfigPath returns the expanded path to the user config file,
// honoring the DDSCLIENT_CONF environment variable.
func GetUserConfigPath() (string, error) {
	if fromEnv := os.Getenv(UserConfigEnv); fromEnv != "" {
		return fromEnv, nil
	}
	return homedirExpand(UserConfigPath)
}

// Load reads the global config followed by the user config, with later
// files overriding earlier ones, and fills in defaults for anything left
// unset. Missing config files are not an error.
func Load() (Config, error) {
	var config Config
	if err := mergeFile(&config, GlobalConfigPath); err != nil {
		return Config{}, errors.WithContext(err, "parse global config")
	}

	userPath, err := GetUserConfigPath()
	if err != nil {
		return Config{}, errors.WithContext(err, "expand config path")
	}
	if err := mergeFile(&config, userPath); err != nil {
		return Config{}, errors.WithContext(err, "parse user config")
	}

	config.applyDefaults()
	return config, nil
}

func mergeFile(config *Config, path string) error {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithContext(err, "read file")
	}

	if err := yaml.Unmarshal(configBytes, config); err != nil {
		return errors.NewFriendlyError("Configuration file could not be "+
			"parsed. Please review %q.\n"+
			"For reference, here is the error from the parser:\n%s", path, err)
	}
	return nil
}

func (config *Config) applyDefaults() {
	if config.URL == "" {
		config.URL = DataServiceURL
	}
	if config.D4S2URL == "" {
		config.D4S2URL = D4S2ServiceURL
	}
	if config.UploadBytesPerChunk == 0 {
		config.UploadBytesPerChunk = DefaultUploadBytesPerChunk
	}
	if config.UploadWorkers == 0 {
		config.UploadWorkers = defaultNumWorkers()
	}
	if config.DownloadWorkers == 0 {
		config.DownloadWorkers = defaultNumWorkers()
	}
	if config.FileExcludeRegex == "" {
		config.FileExcludeRegex = DefaultFileExcludeRegex
	}
	if config.GetPageSize == 0 {
		config.GetPageSize = DefaultPageSize
	}
}

// defaultNumWorkers returns the number of CPUs or maxDefaultWorkers,
// whichever is less.
func defaultNumWorkers() int {
	workers := runtime.NumCPU()
	if workers > maxDefaultWorkers {
		return maxDefaultWorkers
	}
	return workers
}
