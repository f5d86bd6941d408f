// Package tree models a project as a flat arena of nodes. Indices into the
// arena identify nodes; each node records its parent index and an ordered
// list of child indices. Index 0 is always the project root.
package tree

import (
	"path"
	"strings"

	"github.com/duke-gcb/ddsclient/pkg/errors"
)

// Kind says what a node represents. The zero value is invalid so that
// forgetting to set a kind is caught loudly.
type Kind int

const (
	KindInvalid Kind = iota
	KindProject
	KindFolder
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindProject:
		return "project"
	case KindFolder:
		return "folder"
	case KindFile:
		return "file"
	default:
		return "invalid"
	}
}

// NoParent is the parent index of the root node.
const NoParent = -1

// Node is one project, folder, or file. File-only fields (Size, Hash,
// VersionID) are zero for containers. RemoteID is the data service id when
// the node has a remote counterpart, and "" for purely local nodes.
// LocalPath is the filesystem location backing a local file node.
type Node struct {
	Kind      Kind
	Name      string
	Path      string
	LocalPath string
	Parent    int
	Children  []int
	Size      int64
	Hash      string
	RemoteID  string
	VersionID string
}

// Tree is an arena of nodes rooted at index 0.
type Tree struct {
	Nodes []Node
}

// New makes a tree holding just a project root.
func New(projectName string) *Tree {
	return &Tree{Nodes: []Node{{
		Kind:   KindProject,
		Name:   projectName,
		Parent: NoParent,
	}}}
}

// Root returns the project node.
func (t *Tree) Root() *Node {
	return &t.Nodes[0]
}

// At returns the node at index i.
func (t *Tree) At(i int) *Node {
	return &t.Nodes[i]
}

// AddChild appends a node under the parent index and returns its index.
// Children keep insertion order.
func (t *Tree) AddChild(parent int, node Node) int {
	node.Parent = parent
	node.Path = path.Join(t.Nodes[parent].Path, node.Name)
	index := len(t.Nodes)
	t.Nodes = append(t.Nodes, node)
	t.Nodes[parent].Children = append(t.Nodes[parent].Children, index)
	return index
}

// Child finds the direct child of parent with the given name, returning its
// index or -1.
func (t *Tree) Child(parent int, name string) int {
	for _, childIndex := range t.Nodes[parent].Children {
		if t.Nodes[childIndex].Name == name {
			return childIndex
		}
	}
	return -1
}

// Walk visits nodes in preorder starting at the root, parents before
// children and siblings in insertion order. Returning an error stops the
// walk.
func (t *Tree) Walk(visit func(index int, node *Node) error) error {
	return t.walkFrom(0, visit)
}

func (t *Tree) walkFrom(index int, visit func(index int, node *Node) error) error {
	if err := visit(index, &t.Nodes[index]); err != nil {
		return err
	}
	for _, childIndex := range t.Nodes[index].Children {
		if err := t.walkFrom(childIndex, visit); err != nil {
			return err
		}
	}
	return nil
}

// Files returns the indices of every file node in preorder.
func (t *Tree) Files() []int {
	var files []int
	t.Walk(func(index int, node *Node) error {
		if node.Kind == KindFile {
			files = append(files, index)
		}
		return nil
	})
	return files
}

// TotalFileBytes sums the sizes of all file nodes.
func (t *Tree) TotalFileBytes() int64 {
	var total int64
	for _, index := range t.Files() {
		total += t.Nodes[index].Size
	}
	return total
}

// Lookup resolves a slash-separated path relative to the root, returning
// the node's index.
func (t *Tree) Lookup(nodePath string) (int, error) {
	if nodePath == "" || nodePath == "." {
		return 0, nil
	}
	index := 0
	for _, name := range strings.Split(nodePath, "/") {
		index = t.Child(index, name)
		if index < 0 {
			return -1, errors.New("no node at path " + nodePath)
		}
	}
	return index, nil
}
