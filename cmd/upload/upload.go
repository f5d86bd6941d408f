package upload

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/duke-gcb/ddsclient/cmd/util"
	"github.com/duke-gcb/ddsclient/pkg/config"
	"github.com/duke-gcb/ddsclient/pkg/ddsapi"
	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/ignore"
	"github.com/duke-gcb/ddsclient/pkg/remotestore"
	"github.com/duke-gcb/ddsclient/pkg/transfer"
	"github.com/duke-gcb/ddsclient/pkg/tree"
)

// New creates a new `upload` command.
func New() *cobra.Command {
	var projectName string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "upload -p PROJECT PATH [PATH...]",
		Short: "Upload files and folders to a remote project, creating it if necessary.",
		Long: "Upload files and folders to a remote project. Only content that is\n" +
			"new or changed since the last upload is sent.",
		Args: cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(projectName, args, dryRun); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVarP(&projectName, "project-name", "p", "",
		"Name of the remote project to upload into.")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"Report what would be uploaded without sending anything.")
	return cmd
}

func run(projectName string, paths []string, dryRun bool) error {
	if projectName == "" {
		return errors.NewFriendlyError("A project name is required.\n" +
			"Please provide it with `ddsclient upload -p <name>`")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.WithContext(err, "load config")
	}

	ctx := context.Background()
	appFs := afero.NewOsFs()

	local, err := buildLocalTree(appFs, cfg, projectName, paths)
	if err != nil {
		return err
	}

	client := ddsapi.NewClient(&cfg)
	store := remotestore.New(client)
	project, err := store.EnsureProject(ctx, projectName, projectName)
	if err != nil {
		return err
	}
	remote, err := store.FetchTree(ctx, project)
	if err != nil {
		return err
	}

	plan, err := tree.Reconcile(local, remote)
	if err != nil {
		return err
	}
	if len(plan.Steps) == 0 {
		fmt.Println("Nothing new to upload.")
		return nil
	}
	if dryRun {
		fmt.Println("Files/Folders that need to be uploaded:")
		for _, step := range plan.Steps {
			fmt.Println(local.At(step.Index).Path)
		}
		return nil
	}

	watcher := transfer.NewConsoleWatcher(os.Stdout, "Uploading", plan.BytesToSend(local))
	uploader := transfer.NewProjectUploader(client, appFs, transfer.Options{
		ChunkSize: cfg.UploadBytesPerChunk,
		Workers:   cfg.UploadWorkers,
		Watcher:   watcher,
	})
	result, err := uploader.Upload(ctx, local, plan)
	watcher.Done()
	if err != nil {
		return err
	}

	fmt.Printf("Upload complete: %d folder(s) created, %d file(s) sent.\n",
		result.FoldersCreated, result.FilesSent)
	fmt.Printf("URL to view project: %s\n", portalURL(&cfg, project.ID))
	return nil
}

// buildLocalTree walks the requested paths into a project tree, honoring
// the configured exclude regex and any .ddsignore files found along the
// way.
func buildLocalTree(appFs afero.Fs, cfg config.Config, projectName string,
	paths []string) (*tree.Tree, error) {

	matcher, err := ignore.NewMatcher(cfg.FileExcludeRegex)
	if err != nil {
		return nil, errors.WithContext(err, "parse file exclude regex")
	}
	for _, p := range paths {
		if isDir, _ := afero.IsDir(appFs, p); isDir {
			if err := matcher.Scan(appFs, p); err != nil {
				return nil, errors.WithContext(err, "read ignore files")
			}
		}
	}
	return tree.BuildLocal(appFs, projectName, paths, matcher.Include)
}

// portalURL derives the browsable project page from the API endpoint. The
// portal lives on the same host without the `api.` prefix.
func portalURL(cfg *config.Config, projectID string) string {
	base := strings.TrimSuffix(cfg.URL, "/api/v1")
	base = strings.Replace(base, "//api.", "//", 1)
	return fmt.Sprintf("%s/portal/#/project/%s", base, projectID)
}
