package upload

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke-gcb/ddsclient/pkg/config"
)

func TestPortalURL(t *testing.T) {
	cfg := config.Config{URL: "https://api.dataservice.duke.edu/api/v1"}
	assert.Equal(t,
		"https://dataservice.duke.edu/portal/#/project/p1",
		portalURL(&cfg, "p1"))
}

func TestBuildLocalTreeHonorsExcludeRegex(t *testing.T) {
	appFs := afero.NewMemMapFs()
	require.NoError(t, appFs.MkdirAll("/data/sub", 0755))
	require.NoError(t, afero.WriteFile(appFs, "/data/a.txt", []byte("hello"), 0644))
	require.NoError(t, afero.WriteFile(appFs, "/data/.DS_Store", []byte("junk"), 0644))
	require.NoError(t, afero.WriteFile(appFs, "/data/sub/b.txt", []byte("world"), 0644))

	cfg := config.Config{FileExcludeRegex: config.DefaultFileExcludeRegex}
	local, err := buildLocalTree(appFs, cfg, "mouse", []string{"/data"})
	require.NoError(t, err)

	assert.Len(t, local.Files(), 2)
	_, err = local.Lookup("data/sub/b.txt")
	assert.NoError(t, err)
	_, err = local.Lookup("data/.DS_Store")
	assert.Error(t, err)
}
