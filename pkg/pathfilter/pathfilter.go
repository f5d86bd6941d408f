// Package pathfilter narrows an operation to part of a project tree based
// on user-supplied include or exclude paths.
package pathfilter

import (
	"sort"
	"strings"

	"github.com/duke-gcb/ddsclient/pkg/tree"
)

// Filter accepts or rejects project-relative paths. The zero-value rules
// make an empty filter accept everything.
type Filter struct {
	exclude bool
	paths   map[string]bool
	seen    map[string]bool
}

// NewIncludeFilter accepts only the given paths, anything under them, and
// the folders leading to them.
func NewIncludeFilter(paths []string) *Filter {
	return newFilter(paths, false)
}

// NewExcludeFilter rejects the given paths and anything under them.
func NewExcludeFilter(paths []string) *Filter {
	return newFilter(paths, true)
}

func newFilter(paths []string, exclude bool) *Filter {
	f := &Filter{exclude: exclude, paths: map[string]bool{}, seen: map[string]bool{}}
	for _, p := range paths {
		f.paths[strings.Trim(p, "/")] = true
	}
	return f
}

// Include reports whether the path passes the filter. A nil filter passes
// everything.
func (f *Filter) Include(path string) bool {
	if f == nil || len(f.paths) == 0 {
		return true
	}

	for p := range f.paths {
		if path == p || strings.HasPrefix(path, p+"/") {
			f.seen[p] = true
			return !f.exclude
		}
		// A folder on the way down to an included path must come along.
		if !f.exclude && strings.HasPrefix(p, path+"/") {
			return true
		}
	}
	return f.exclude
}

// FilterTree copies the parts of source that pass the filter into a new
// tree. A rejected folder takes its whole subtree with it.
func FilterTree(source *tree.Tree, f *Filter) *tree.Tree {
	filtered := tree.New(source.Root().Name)
	filtered.Root().RemoteID = source.Root().RemoteID

	mapped := map[int]int{0: 0}
	source.Walk(func(index int, node *tree.Node) error {
		if index == 0 {
			return nil
		}
		parent, ok := mapped[node.Parent]
		if !ok || !f.Include(node.Path) {
			return nil
		}
		copied := *node
		copied.Children = nil
		mapped[index] = filtered.AddChild(parent, copied)
		return nil
	})
	return filtered
}

// UnusedPaths lists filter paths that never matched anything, so the
// caller can warn about probable typos.
func (f *Filter) UnusedPaths() []string {
	if f == nil {
		return nil
	}
	var unused []string
	for p := range f.paths {
		if !f.seen[p] {
			unused = append(unused, p)
		}
	}
	sort.Strings(unused)
	return unused
}
