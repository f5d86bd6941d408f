package version

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/duke-gcb/ddsclient/pkg/version"
	"github.com/duke-gcb/ddsclient/pkg/versioncheck"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the local and latest released version of ddsclient.",
		Run: func(_ *cobra.Command, _ []string) {
			run()
		},
	}
}

func run() {
	fmt.Printf("local version:  %s\n", version.Version)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	latest, err := versioncheck.NewChecker().Latest(ctx)
	if err != nil {
		fmt.Println("latest release: unknown (release page unreachable)")
		return
	}
	fmt.Printf("latest release: %s\n", latest)
}
