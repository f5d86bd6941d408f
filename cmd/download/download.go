package download

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/duke-gcb/ddsclient/cmd/util"
	"github.com/duke-gcb/ddsclient/pkg/config"
	"github.com/duke-gcb/ddsclient/pkg/ddsapi"
	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/pathfilter"
	"github.com/duke-gcb/ddsclient/pkg/remotestore"
	"github.com/duke-gcb/ddsclient/pkg/transfer"
)

// New creates a new `download` command.
func New() *cobra.Command {
	var projectName string
	var includePaths []string
	var excludePaths []string
	cmd := &cobra.Command{
		Use:   "download -p PROJECT [DEST]",
		Short: "Download a remote project into a local directory.",
		Long: "Download a remote project into a local directory. Files that already\n" +
			"exist locally with matching content are left alone, so an interrupted\n" +
			"download can simply be run again.",
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			destDir := ""
			if len(args) > 0 {
				destDir = args[0]
			}
			if err := run(projectName, destDir, includePaths, excludePaths); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVarP(&projectName, "project-name", "p", "",
		"Name of the remote project to download.")
	cmd.Flags().StringSliceVar(&includePaths, "include", nil,
		"Download only these paths within the project.")
	cmd.Flags().StringSliceVar(&excludePaths, "exclude", nil,
		"Skip these paths within the project.")
	return cmd
}

func run(projectName, destDir string, includePaths, excludePaths []string) error {
	if projectName == "" {
		return errors.NewFriendlyError("A project name is required.\n" +
			"Please provide it with `ddsclient download -p <name>`")
	}
	if len(includePaths) > 0 && len(excludePaths) > 0 {
		return errors.New("cannot combine include and exclude paths")
	}
	if destDir == "" {
		destDir = projectName
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.WithContext(err, "load config")
	}

	ctx := context.Background()
	client := ddsapi.NewClient(&cfg)
	store := remotestore.New(client)

	remote, err := store.FetchTreeByName(ctx, projectName)
	if err != nil {
		return err
	}

	var filter *pathfilter.Filter
	if len(includePaths) > 0 {
		filter = pathfilter.NewIncludeFilter(includePaths)
	} else if len(excludePaths) > 0 {
		filter = pathfilter.NewExcludeFilter(excludePaths)
	}
	if filter != nil {
		remote = pathfilter.FilterTree(remote, filter)
		for _, unused := range filter.UnusedPaths() {
			log.WithField("path", unused).Warn("No file or folder found for filter path")
		}
	}

	watcher := transfer.NewConsoleWatcher(os.Stdout, "Downloading", remote.TotalFileBytes())
	downloader := transfer.NewProjectDownloader(client, afero.NewOsFs(), transfer.Options{
		Workers: cfg.DownloadWorkers,
		Watcher: watcher,
	})
	result, err := downloader.Download(ctx, remote, destDir)
	watcher.Done()
	if err != nil {
		return err
	}

	fmt.Printf("Download complete: %d file(s) downloaded, %d file(s) already up to date.\n",
		result.FilesDownloaded, result.FilesSkipped)
	return nil
}
