package ddsapi

import (
	"fmt"

	"github.com/duke-gcb/ddsclient/pkg/errors"
)

// SetupGuideURL documents how to obtain agent and user keys.
const SetupGuideURL = "https://github.com/Duke-GCB/DukeDSClient/blob/master/docs/GettingAgentAndUserKeys.md"

// DataServiceError is a non-2xx response from the data service. The URL and
// status code are kept verbatim for diagnosis.
type DataServiceError struct {
	StatusCode int
	URL        string
	Reason     string
	Suggestion string
}

func (err *DataServiceError) Error() string {
	return fmt.Sprintf("Error %d on %s\nReason:%s\nSuggestion:%s",
		err.StatusCode, err.URL, err.Reason, err.Suggestion)
}

// NotConsistentError signals the service's eventual-consistency state: the
// resource exists but isn't ready yet. Callers retry these indefinitely.
type NotConsistentError struct {
	DataServiceError
}

// ErrUnexpectedPaging is raised when a single-item endpoint returns
// pagination headers. This may be due to an incompatible API change.
var ErrUnexpectedPaging = errors.New("received unexpected paging data in single item response")

// NewMissingSetupError explains that the config file has no keys yet.
func NewMissingSetupError(configPath string) error {
	return errors.NewFriendlyError("Missing initial setup.\n"+
		"You need to add agent_key and user_key to %s.\n"+
		"Follow this guide: %s", configPath, SetupGuideURL)
}

// NewAgentNotFoundError explains that the configured software agent doesn't
// exist on the server.
func NewAgentNotFoundError(configPath string) error {
	return errors.NewFriendlyError("Your software agent was not found on the "+
		"server.\nPerhaps you have the wrong URL. You can change it via the "+
		"'url' setting in %s.", configPath)
}
