package tree

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/duke-gcb/ddsclient/pkg/errors"
)

// IncludeFunc decides whether a local path belongs in the tree. relPath is
// relative to the path being added, using forward slashes.
type IncludeFunc func(relPath, name string, isDir bool) bool

// IncludeAll accepts every path.
func IncludeAll(relPath, name string, isDir bool) bool {
	return true
}

// BuildLocal constructs a project tree from local paths. A directory path
// becomes a folder named after its base name with its contents underneath;
// a file path becomes a file directly under the root. File hashes are
// computed eagerly so reconciliation can compare content without touching
// the disk again.
func BuildLocal(appFs afero.Fs, projectName string, paths []string,
	include IncludeFunc) (*Tree, error) {

	t := New(projectName)
	for _, p := range paths {
		info, err := appFs.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.FileNotFound{Path: p}
			}
			return nil, errors.WithContext(err, "stat path")
		}

		if info.IsDir() {
			if err := addDir(appFs, t, 0, p, "", include); err != nil {
				return nil, err
			}
		} else {
			if err := addFile(appFs, t, 0, p, info); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func addDir(appFs afero.Fs, t *Tree, parent int, dirPath, relPath string,
	include IncludeFunc) error {

	folder := t.AddChild(parent, Node{Kind: KindFolder, Name: filepath.Base(dirPath)})

	entries, err := afero.ReadDir(appFs, dirPath)
	if err != nil {
		return errors.WithContext(err, "read directory")
	}
	for _, entry := range entries {
		entryRel := joinRel(relPath, entry.Name())
		if !include(entryRel, entry.Name(), entry.IsDir()) {
			continue
		}
		entryPath := filepath.Join(dirPath, entry.Name())
		if entry.IsDir() {
			if err := addDir(appFs, t, folder, entryPath, entryRel, include); err != nil {
				return err
			}
		} else {
			if err := addFile(appFs, t, folder, entryPath, entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func addFile(appFs afero.Fs, t *Tree, parent int, filePath string, info os.FileInfo) error {
	hash, err := HashFile(appFs, filePath)
	if err != nil {
		return err
	}
	t.AddChild(parent, Node{
		Kind:      KindFile,
		Name:      filepath.Base(filePath),
		LocalPath: filePath,
		Size:      info.Size(),
		Hash:      hash,
	})
	return nil
}

func joinRel(relPath, name string) string {
	if relPath == "" {
		return name
	}
	return relPath + "/" + name
}
