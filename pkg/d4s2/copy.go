package d4s2

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/duke-gcb/ddsclient/pkg/ddsapi"
	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/pathfilter"
	"github.com/duke-gcb/ddsclient/pkg/provenance"
	"github.com/duke-gcb/ddsclient/pkg/transfer"
	"github.com/duke-gcb/ddsclient/pkg/tree"
)

// copyNameFormat stamps the copy with the moment it was taken.
const copyNameFormat = "01/02/2006 15:04"

// copyProject delivers a point-in-time copy: the (possibly filtered)
// source tree is downloaded into a temporary workspace, uploaded into a
// freshly created project, and every copied file version is tied to its
// source through a provenance activity, closed with an end time once the
// relations are recorded. The workspace is released on every exit path.
func (w *Workflow) copyProject(ctx context.Context, source *ddsapi.Project,
	req Request) (*ddsapi.Project, error) {

	newName := fmt.Sprintf("%s %s", source.Name, w.clock.Now().Format(copyNameFormat))
	if _, err := w.data.ProjectByName(ctx, newName); err == nil {
		return nil, errors.New(fmt.Sprintf("a project named %q already exists", newName))
	} else if !errors.Is(err, errors.ProjectNotFound{Name: newName}) {
		return nil, err
	}

	filter, err := newFilter(req)
	if err != nil {
		return nil, err
	}

	sourceTree, err := w.store.FetchTree(ctx, source)
	if err != nil {
		return nil, err
	}
	copied := pathfilter.FilterTree(sourceTree, filter)
	for _, unused := range filter.UnusedPaths() {
		log.WithField("path", unused).Warn("No file or folder found for filter path")
	}

	builder := provenance.NewBuilder(w.data)
	err = builder.Start(ctx, newName,
		fmt.Sprintf("Copy of project %q for delivery", source.Name))
	if err != nil {
		return nil, err
	}
	workspace, err := newTempWorkspace(w.fs)
	if err != nil {
		return nil, err
	}
	defer workspace.Release()

	downloader := transfer.NewProjectDownloader(w.data, w.fs, w.options)
	if _, err := downloader.Download(ctx, copied, workspace.path); err != nil {
		return nil, err
	}
	if err := builder.RecordSources(ctx, copied); err != nil {
		return nil, err
	}

	newProject, err := w.data.CreateProject(ctx, newName,
		fmt.Sprintf("Copy of project %q", source.Name))
	if err != nil {
		return nil, err
	}

	paths, err := workspace.entries()
	if err != nil {
		return nil, err
	}
	local, err := tree.BuildLocal(w.fs, newName, paths, tree.IncludeAll)
	if err != nil {
		return nil, err
	}
	emptyRemote := tree.New(newName)
	emptyRemote.Root().RemoteID = newProject.ID
	plan, err := tree.Reconcile(local, emptyRemote)
	if err != nil {
		return nil, err
	}

	uploader := transfer.NewProjectUploader(w.data, w.fs, w.options)
	if _, err := uploader.Upload(ctx, local, plan); err != nil {
		return nil, err
	}

	if err := builder.RecordCopies(ctx, local); err != nil {
		return nil, err
	}
	if err := builder.Finish(ctx, w.clock.Now()); err != nil {
		return nil, err
	}
	return newProject, nil
}

func newFilter(req Request) (*pathfilter.Filter, error) {
	if len(req.IncludePaths) > 0 && len(req.ExcludePaths) > 0 {
		return nil, errors.New("cannot combine include and exclude paths")
	}
	if len(req.IncludePaths) > 0 {
		return pathfilter.NewIncludeFilter(req.IncludePaths), nil
	}
	return pathfilter.NewExcludeFilter(req.ExcludePaths), nil
}

// tempWorkspace is a scoped scratch directory for the download half of a
// copy.
type tempWorkspace struct {
	fs   afero.Fs
	path string
}

func newTempWorkspace(appFs afero.Fs) (*tempWorkspace, error) {
	path, err := afero.TempDir(appFs, "", "ddsclient-copy")
	if err != nil {
		return nil, errors.WithContext(err, "create temp workspace")
	}
	return &tempWorkspace{fs: appFs, path: path}, nil
}

// entries lists the workspace's top-level contents, the paths a fresh
// upload starts from.
func (t *tempWorkspace) entries() ([]string, error) {
	infos, err := afero.ReadDir(t.fs, t.path)
	if err != nil {
		return nil, errors.WithContext(err, "list temp workspace")
	}
	var paths []string
	for _, info := range infos {
		paths = append(paths, t.path+"/"+info.Name())
	}
	return paths, nil
}

func (t *tempWorkspace) Release() {
	if err := t.fs.RemoveAll(t.path); err != nil {
		log.WithError(err).WithField("path", t.path).
			Warn("Unable to remove temp workspace")
	}
}
