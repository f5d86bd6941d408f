// Package remotestore builds tree views of projects stored on the data
// service and resolves the projects and users transfers operate on.
package remotestore

import (
	"context"

	"github.com/duke-gcb/ddsclient/pkg/ddsapi"
	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/tree"
)

type Store struct {
	client *ddsapi.Client
}

func New(client *ddsapi.Client) *Store {
	return &Store{client: client}
}

// EnsureProject returns the named project, creating it when it doesn't
// exist yet.
func (s *Store) EnsureProject(ctx context.Context, name, description string) (*ddsapi.Project, error) {
	project, err := s.client.ProjectByName(ctx, name)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, errors.ProjectNotFound{Name: name}) {
		return nil, err
	}
	return s.client.CreateProject(ctx, name, description)
}

// FetchTreeByName downloads the full folder/file hierarchy of the named
// project.
func (s *Store) FetchTreeByName(ctx context.Context, name string) (*tree.Tree, error) {
	project, err := s.client.ProjectByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.FetchTree(ctx, project)
}

// FetchTree downloads a project's hierarchy into a tree. File nodes carry
// the hash, size, and version id of their current version so callers can
// compare content without further requests.
func (s *Store) FetchTree(ctx context.Context, project *ddsapi.Project) (*tree.Tree, error) {
	t := tree.New(project.Name)
	t.Root().RemoteID = project.ID
	if err := s.fetchChildren(ctx, t, 0, ddsapi.KindProject, project.ID); err != nil {
		return nil, errors.WithContext(err, "fetch project tree")
	}
	return t, nil
}

func (s *Store) fetchChildren(ctx context.Context, t *tree.Tree, parent int,
	parentKind, parentID string) error {

	children, err := s.client.Children(ctx, parentKind, parentID)
	if err != nil {
		return err
	}

	for _, child := range children {
		switch child.Kind {
		case ddsapi.KindFolder:
			index := t.AddChild(parent, tree.Node{
				Kind:     tree.KindFolder,
				Name:     child.Name,
				RemoteID: child.ID,
			})
			err := s.fetchChildren(ctx, t, index, ddsapi.KindFolder, child.ID)
			if err != nil {
				return err
			}
		case ddsapi.KindFile:
			node := tree.Node{
				Kind:     tree.KindFile,
				Name:     child.Name,
				RemoteID: child.ID,
			}
			version := child.CurrentVersion
			if version == nil {
				// Some listings omit version details; ask for the file
				// directly.
				file, err := s.client.GetFile(ctx, child.ID)
				if err != nil {
					return err
				}
				version = file.CurrentVersion
			}
			if version != nil {
				node.VersionID = version.ID
				node.Size = version.Upload.Size
				node.Hash = version.Upload.Hash(ddsapi.HashAlgorithmMD5)
			}
			t.AddChild(parent, node)
		}
	}
	return nil
}

// LookupUser finds a single user by email or username. Email lookups that
// match several accounts are an error so permissions never go to the wrong
// person.
func (s *Store) LookupUser(ctx context.Context, email, username string) (*ddsapi.User, error) {
	if username != "" {
		return s.client.UserByUsername(ctx, username)
	}
	users, err := s.client.UsersByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(users) != 1 {
		return nil, errors.NewFriendlyError("Unable to find a single user with "+
			"email address %q (found %d).", email, len(users))
	}
	return &users[0], nil
}
