package pathfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/duke-gcb/ddsclient/pkg/tree"
)

func TestIncludeFilter(t *testing.T) {
	f := NewIncludeFilter([]string{"results/final", "readme.txt"})

	assert.True(t, f.Include("results/final"))
	assert.True(t, f.Include("results/final/counts.csv"))
	assert.True(t, f.Include("readme.txt"))
	// The folder leading to an included path comes along.
	assert.True(t, f.Include("results"))

	assert.False(t, f.Include("results/raw"))
	assert.False(t, f.Include("other.txt"))

	assert.Empty(t, f.UnusedPaths())
}

func TestExcludeFilter(t *testing.T) {
	f := NewExcludeFilter([]string{"scratch"})

	assert.False(t, f.Include("scratch"))
	assert.False(t, f.Include("scratch/tmp.dat"))
	assert.True(t, f.Include("results"))
	assert.True(t, f.Include("scratchy.txt"))
}

func TestUnusedPaths(t *testing.T) {
	f := NewIncludeFilter([]string{"present", "missing-one", "missing-two"})
	f.Include("present/file.txt")
	f.Include("unrelated")

	assert.Equal(t, []string{"missing-one", "missing-two"}, f.UnusedPaths())
}

func TestFilterTree(t *testing.T) {
	source := tree.New("mouse")
	keep := source.AddChild(0, tree.Node{Kind: tree.KindFolder, Name: "keep"})
	source.AddChild(keep, tree.Node{Kind: tree.KindFile, Name: "a.txt"})
	drop := source.AddChild(0, tree.Node{Kind: tree.KindFolder, Name: "drop"})
	source.AddChild(drop, tree.Node{Kind: tree.KindFile, Name: "b.txt"})

	filtered := FilterTree(source, NewExcludeFilter([]string{"drop"}))

	_, err := filtered.Lookup("keep/a.txt")
	assert.NoError(t, err)
	_, err = filtered.Lookup("drop")
	assert.Error(t, err)
	assert.Len(t, filtered.Files(), 1)
}

func TestNilAndEmptyFiltersIncludeEverything(t *testing.T) {
	var nilFilter *Filter
	assert.True(t, nilFilter.Include("anything"))
	assert.Nil(t, nilFilter.UnusedPaths())

	assert.True(t, NewIncludeFilter(nil).Include("anything"))
}
