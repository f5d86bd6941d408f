package transfer

import (
	"context"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/duke-gcb/ddsclient/pkg/ddsapi"
	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/tree"
)

// Options configures the transfer engine.
type Options struct {
	ChunkSize int64
	Workers   int
	Watcher   Watcher
}

func (o Options) watcher() Watcher {
	if o.Watcher == nil {
		return NullWatcher{}
	}
	return o.Watcher
}

// UploadResult summarizes what an upload changed.
type UploadResult struct {
	FoldersCreated int
	FilesSent      int
}

// ProjectUploader applies a reconciliation plan to the remote project:
// folders first in order, then file contents in parallel.
type ProjectUploader struct {
	client  *ddsapi.Client
	fs      afero.Fs
	options Options
}

func NewProjectUploader(client *ddsapi.Client, appFs afero.Fs, options Options) *ProjectUploader {
	return &ProjectUploader{client: client, fs: appFs, options: options}
}

// Upload executes the plan against the project the local tree was
// reconciled with. Folder creations run sequentially so every file's
// parent exists (and has a remote id) before the file is sent; files then
// upload concurrently, bounded by the worker limit. Uploaded nodes get
// their new remote and version ids recorded in the tree.
func (pu *ProjectUploader) Upload(ctx context.Context, local *tree.Tree,
	plan tree.Plan) (*UploadResult, error) {

	projectID := local.Root().RemoteID
	if projectID == "" {
		return nil, errors.New("local tree is not bound to a remote project")
	}
	watcher := pu.options.watcher()
	result := &UploadResult{}

	var fileSteps []tree.Step
	for _, step := range plan.Steps {
		if step.Action == tree.ActionCreateFolder {
			node := local.At(step.Index)
			watcher.Transferring(node)
			folder, err := pu.client.CreateFolder(ctx, pu.parentRef(local, node), node.Name)
			if err != nil {
				return result, err
			}
			node.RemoteID = folder.ID
			result.FoldersCreated++
			log.WithField("folder", node.Path).Debug("Created remote folder")
		} else {
			fileSteps = append(fileSteps, step)
		}
	}

	uploader := NewFileUploader(pu.client, pu.fs, pu.options.ChunkSize, watcher)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(pu.options.Workers)
	for _, step := range fileSteps {
		step := step
		group.Go(func() error {
			node := local.At(step.Index)
			watcher.Transferring(node)

			existingFileID := ""
			if step.Action == tree.ActionUploadVersion {
				existingFileID = node.RemoteID
			}
			file, err := uploader.Upload(groupCtx, projectID, node,
				pu.parentRef(local, node), existingFileID)
			if err != nil {
				return err
			}

			node.RemoteID = file.ID
			if file.CurrentVersion != nil {
				node.VersionID = file.CurrentVersion.ID
			}
			log.WithField("file", node.Path).Debug("Uploaded file")
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return result, err
	}
	result.FilesSent = len(fileSteps)
	return result, nil
}

func (pu *ProjectUploader) parentRef(local *tree.Tree, node *tree.Node) ddsapi.ResourceRef {
	parent := local.At(node.Parent)
	kind := ddsapi.KindFolder
	if parent.Kind == tree.KindProject {
		kind = ddsapi.KindProject
	}
	return ddsapi.ResourceRef{Kind: kind, ID: parent.RemoteID}
}

// DownloadResult summarizes what a download changed.
type DownloadResult struct {
	FilesDownloaded int
	FilesSkipped    int
}

// ProjectDownloader mirrors a remote project tree into a local directory.
type ProjectDownloader struct {
	client  *ddsapi.Client
	fs      afero.Fs
	options Options
}

func NewProjectDownloader(client *ddsapi.Client, appFs afero.Fs, options Options) *ProjectDownloader {
	return &ProjectDownloader{client: client, fs: appFs, options: options}
}

// Download recreates the remote tree under destDir. Folders are created
// up front; files then download concurrently, bounded by the worker limit.
// A local file whose hash already matches the remote version is skipped.
func (pd *ProjectDownloader) Download(ctx context.Context, remote *tree.Tree,
	destDir string) (*DownloadResult, error) {

	watcher := pd.options.watcher()
	result := &DownloadResult{}

	var files []*tree.Node
	err := remote.Walk(func(index int, node *tree.Node) error {
		switch node.Kind {
		case tree.KindProject:
			return pd.fs.MkdirAll(destDir, 0755)
		case tree.KindFolder:
			return pd.fs.MkdirAll(pd.destPath(destDir, node), 0755)
		case tree.KindFile:
			files = append(files, node)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithContext(err, "create local folders")
	}

	downloader := NewFileDownloader(pd.client, pd.fs, 1, watcher)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(pd.options.Workers)
	for _, node := range files {
		node := node
		destPath := pd.destPath(destDir, node)
		if pd.alreadyDownloaded(node, destPath) {
			result.FilesSkipped++
			watcher.SentBytes(node.Size)
			continue
		}
		group.Go(func() error {
			watcher.Transferring(node)
			return downloader.Download(groupCtx, node, destPath)
		})
	}
	if err := group.Wait(); err != nil {
		return result, err
	}
	result.FilesDownloaded = len(files) - result.FilesSkipped
	return result, nil
}

func (pd *ProjectDownloader) destPath(destDir string, node *tree.Node) string {
	return filepath.Join(destDir, filepath.FromSlash(node.Path))
}

func (pd *ProjectDownloader) alreadyDownloaded(node *tree.Node, destPath string) bool {
	info, err := pd.fs.Stat(destPath)
	if err != nil || info.IsDir() || info.Size() != node.Size {
		return false
	}
	hash, err := tree.HashFile(pd.fs, destPath)
	return err == nil && hash == node.Hash
}
