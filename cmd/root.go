package cmd

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/duke-gcb/ddsclient/cmd/deliver"
	"github.com/duke-gcb/ddsclient/cmd/download"
	"github.com/duke-gcb/ddsclient/cmd/share"
	"github.com/duke-gcb/ddsclient/cmd/upload"
	"github.com/duke-gcb/ddsclient/cmd/util"
	"github.com/duke-gcb/ddsclient/cmd/version"
	"github.com/duke-gcb/ddsclient/pkg/versioncheck"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "DDSCLIENT_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "ddsclient",
		Short:        "Upload, download, share and deliver projects on the Duke Data Service.",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors:    true,
		PersistentPreRun: warnOnStaleRelease,
	}
	rootCmd.AddCommand(
		deliver.New(),
		download.New(),
		share.New(),
		upload.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}

// warnOnStaleRelease nudges the user toward a newer release before starting
// what may be a long transfer. The version command does its own lookup.
func warnOnStaleRelease(cmd *cobra.Command, _ []string) {
	if cmd.CalledAs() == "version" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	versioncheck.NewChecker().WarnIfStale(ctx)
}
