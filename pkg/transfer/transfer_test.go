package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke-gcb/ddsclient/pkg/config"
	"github.com/duke-gcb/ddsclient/pkg/ddsapi"
	"github.com/duke-gcb/ddsclient/pkg/tree"
)

// fakeService implements enough of the data service and its backing store
// to run real uploads and downloads against.
type fakeService struct {
	mu      sync.Mutex
	baseURL string

	uploads    map[string]map[int][]byte
	complete   map[string]bool
	files      map[string]*fakeFile
	folders    map[string]string // id -> name
	nextID     int
	failSends  int // initial chunk sends to reject with 403
	folderReqs []string
}

type fakeFile struct {
	name    string
	parent  ddsapi.ResourceRef
	content []byte
	version int
}

func newFakeService() (*fakeService, *httptest.Server) {
	svc := &fakeService{
		uploads:  map[string]map[int][]byte{},
		complete: map[string]bool{},
		files:    map[string]*fakeFile{},
		folders:  map[string]string{},
	}
	server := httptest.NewServer(svc)
	svc.baseURL = server.URL
	return svc, server
}

func (s *fakeService) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s%d", prefix, s.nextID)
}

func (s *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case parts[0] == "projects" && len(parts) == 3 && parts[2] == "uploads":
		id := s.newID("up")
		s.uploads[id] = map[int][]byte{}
		json.NewEncoder(w).Encode(ddsapi.Upload{ID: id})

	case parts[0] == "uploads" && len(parts) == 3 && parts[2] == "chunks":
		var body struct {
			Number int `json:"number"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(ddsapi.ExternalDescriptor{
			HTTPVerb:    http.MethodPut,
			Host:        s.baseURL,
			URL:         fmt.Sprintf("/store/%s/%d", parts[1], body.Number),
			HTTPHeaders: map[string]string{"x-amz-testing": "yes"},
		})

	case parts[0] == "store" && r.Method == http.MethodPut:
		if s.failSends > 0 {
			s.failSends--
			http.Error(w, `{"error": "expired"}`, http.StatusForbidden)
			return
		}
		if r.Header.Get("x-amz-testing") != "yes" {
			http.Error(w, `{"error": "missing signature headers"}`, http.StatusBadRequest)
			return
		}
		number, _ := strconv.Atoi(parts[2])
		data, _ := io.ReadAll(r.Body)
		s.uploads[parts[1]][number] = data

	case parts[0] == "uploads" && len(parts) == 3 && parts[2] == "complete":
		s.complete[parts[1]] = true

	case parts[0] == "folders" && r.Method == http.MethodPost:
		var body struct {
			Name   string            `json:"name"`
			Parent ddsapi.ResourceRef `json:"parent"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		id := s.newID("d")
		s.folders[id] = body.Name
		s.folderReqs = append(s.folderReqs, body.Parent.Kind+":"+body.Parent.ID+"/"+body.Name)
		json.NewEncoder(w).Encode(ddsapi.Child{ID: id, Kind: ddsapi.KindFolder, Name: body.Name})

	case parts[0] == "files" && r.Method == http.MethodPost:
		var body struct {
			Parent ddsapi.ResourceRef `json:"parent"`
			Upload map[string]string  `json:"upload"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		id := s.newID("f")
		s.files[id] = &fakeFile{
			parent:  body.Parent,
			content: s.assemble(body.Upload["id"]),
			version: 1,
		}
		json.NewEncoder(w).Encode(s.fileJSON(id))

	case parts[0] == "files" && len(parts) == 2 && r.Method == http.MethodPut:
		var body struct {
			Upload map[string]string `json:"upload"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		file := s.files[parts[1]]
		file.content = s.assemble(body.Upload["id"])
		file.version++
		json.NewEncoder(w).Encode(s.fileJSON(parts[1]))

	case parts[0] == "files" && len(parts) == 3 && parts[2] == "url":
		json.NewEncoder(w).Encode(ddsapi.ExternalDescriptor{
			HTTPVerb: http.MethodGet,
			Host:     s.baseURL,
			URL:      "/content/" + parts[1],
		})

	case parts[0] == "content":
		content := s.files[parts[1]].content
		start, end := parseRange(r.Header.Get("Range"), int64(len(content)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(content[start : end+1])

	default:
		http.Error(w, `{"error": "no route"}`, http.StatusNotFound)
	}
}

func (s *fakeService) assemble(uploadID string) []byte {
	chunks := s.uploads[uploadID]
	var content []byte
	for number := 0; number < len(chunks); number++ {
		content = append(content, chunks[number]...)
	}
	return content
}

func (s *fakeService) fileJSON(id string) ddsapi.File {
	file := s.files[id]
	return ddsapi.File{
		ID:   id,
		Kind: ddsapi.KindFile,
		Name: file.name,
		CurrentVersion: &ddsapi.FileVersion{
			ID: fmt.Sprintf("%s-v%d", id, file.version),
		},
	}
}

func parseRange(header string, size int64) (int64, int64) {
	if header == "" {
		return 0, size - 1
	}
	var start, end int64
	fmt.Sscanf(header, "bytes=%d-%d", &start, &end)
	if end >= size {
		end = size - 1
	}
	return start, end
}

func transferClient(serverURL string) *ddsapi.Client {
	cfg := &config.Config{URL: serverURL, Auth: "SECRET", GetPageSize: 100}
	return ddsapi.NewClient(cfg)
}

func TestSplitRanges(t *testing.T) {
	// Small files aren't split at all.
	ranges := splitRanges(100, 4)
	require.Len(t, ranges, 1)
	assert.Equal(t, byteRange{start: 0, length: 100}, ranges[0])

	// Large files split evenly with a short tail.
	ranges = splitRanges(3*minRangeBytes+5, 3)
	require.Len(t, ranges, 4)
	assert.Equal(t, int64(minRangeBytes), ranges[0].length)
	assert.Equal(t, byteRange{start: 3 * minRangeBytes, length: 5}, ranges[3])

	var covered int64
	for _, r := range ranges {
		assert.Equal(t, covered, r.start)
		covered += r.length
	}
	assert.Equal(t, int64(3*minRangeBytes+5), covered)
}

func TestProjectUploadRoundTrip(t *testing.T) {
	svc, server := newFakeService()
	defer server.Close()

	appFs := afero.NewMemMapFs()
	require.NoError(t, appFs.MkdirAll("/data/study/sub", 0755))
	require.NoError(t, afero.WriteFile(appFs, "/data/study/a.txt", []byte("0123456789"), 0644))
	require.NoError(t, afero.WriteFile(appFs, "/data/study/sub/b.txt", []byte{}, 0644))

	local, err := tree.BuildLocal(appFs, "mouse", []string{"/data/study"}, tree.IncludeAll)
	require.NoError(t, err)

	remote := tree.New("mouse")
	remote.Root().RemoteID = "p1"
	plan, err := tree.Reconcile(local, remote)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.FoldersToCreate())
	assert.Equal(t, 2, plan.FilesToSend())

	// A chunk size smaller than a.txt forces the multi-chunk path.
	uploader := NewProjectUploader(transferClient(server.URL), appFs,
		Options{ChunkSize: 4, Workers: 2})
	result, err := uploader.Upload(context.Background(), local, plan)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FoldersCreated)
	assert.Equal(t, 2, result.FilesSent)

	// Folders were created parents-first.
	assert.Equal(t, []string{"dds-project:p1/study", "dds-folder:d1/sub"}, svc.folderReqs)

	aIndex, err := local.Lookup("study/a.txt")
	require.NoError(t, err)
	a := local.At(aIndex)
	require.NotEmpty(t, a.RemoteID)
	assert.NotEmpty(t, a.VersionID)
	assert.Equal(t, []byte("0123456789"), svc.files[a.RemoteID].content)

	// The empty file was sent as a single empty chunk.
	bIndex, err := local.Lookup("study/sub/b.txt")
	require.NoError(t, err)
	b := local.At(bIndex)
	assert.Empty(t, svc.files[b.RemoteID].content)
	assert.True(t, hasEmptyChunk(svc))
}

func hasEmptyChunk(svc *fakeService) bool {
	for _, chunks := range svc.uploads {
		if data, ok := chunks[0]; ok && len(data) == 0 && len(chunks) == 1 {
			return true
		}
	}
	return false
}

func TestUploadNewVersion(t *testing.T) {
	svc, server := newFakeService()
	defer server.Close()
	svc.files["f1"] = &fakeFile{content: []byte("old"), version: 1}

	appFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(appFs, "/data/a.txt", []byte("new content"), 0644))

	local, err := tree.BuildLocal(appFs, "mouse", []string{"/data/a.txt"}, tree.IncludeAll)
	require.NoError(t, err)
	remote := tree.New("mouse")
	remote.Root().RemoteID = "p1"
	remote.AddChild(0, tree.Node{Kind: tree.KindFile, Name: "a.txt", RemoteID: "f1",
		VersionID: "f1-v1", Hash: "does-not-match"})

	plan, err := tree.Reconcile(local, remote)
	require.NoError(t, err)

	uploader := NewProjectUploader(transferClient(server.URL), appFs,
		Options{ChunkSize: 1024, Workers: 1})
	_, err = uploader.Upload(context.Background(), local, plan)
	require.NoError(t, err)

	assert.Equal(t, []byte("new content"), svc.files["f1"].content)
	assert.Equal(t, 2, svc.files["f1"].version)
}

func TestUploadRetriesExpiredDescriptor(t *testing.T) {
	svc, server := newFakeService()
	defer server.Close()
	svc.failSends = 1

	appFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(appFs, "/data/a.txt", []byte("payload"), 0644))
	local, err := tree.BuildLocal(appFs, "mouse", []string{"/data/a.txt"}, tree.IncludeAll)
	require.NoError(t, err)
	remote := tree.New("mouse")
	remote.Root().RemoteID = "p1"
	plan, err := tree.Reconcile(local, remote)
	require.NoError(t, err)

	uploader := NewProjectUploader(transferClient(server.URL), appFs,
		Options{ChunkSize: 1024, Workers: 1})
	_, err = uploader.Upload(context.Background(), local, plan)
	require.NoError(t, err)

	aIndex, _ := local.Lookup("a.txt")
	assert.Equal(t, []byte("payload"), svc.files[local.At(aIndex).RemoteID].content)
}

func TestProjectDownload(t *testing.T) {
	svc, server := newFakeService()
	defer server.Close()
	svc.files["f1"] = &fakeFile{content: []byte("0123456789")}
	svc.files["f2"] = &fakeFile{content: []byte{}}

	remote := tree.New("mouse")
	remote.Root().RemoteID = "p1"
	sub := remote.AddChild(0, tree.Node{Kind: tree.KindFolder, Name: "sub", RemoteID: "d1"})
	remote.AddChild(0, tree.Node{Kind: tree.KindFile, Name: "a.txt", RemoteID: "f1",
		Size: 10, Hash: "781e5e245d69b566979b86e28d23f2c7"})
	remote.AddChild(sub, tree.Node{Kind: tree.KindFile, Name: "b.txt", RemoteID: "f2",
		Size: 0, Hash: "d41d8cd98f00b204e9800998ecf8427e"})

	appFs := afero.NewMemMapFs()
	downloader := NewProjectDownloader(transferClient(server.URL), appFs,
		Options{Workers: 1})
	result, err := downloader.Download(context.Background(), remote, "/dest")
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesDownloaded)

	content, err := afero.ReadFile(appFs, "/dest/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), content)

	info, err := appFs.Stat("/dest/sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())

	// A second download finds everything in place and fetches nothing.
	result, err = downloader.Download(context.Background(), remote, "/dest")
	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesDownloaded)
	assert.Equal(t, 2, result.FilesSkipped)
}

func TestDownloadRejectsCorruptContent(t *testing.T) {
	svc, server := newFakeService()
	defer server.Close()
	svc.files["f1"] = &fakeFile{content: []byte("0123456789")}

	remote := tree.New("mouse")
	remote.Root().RemoteID = "p1"
	remote.AddChild(0, tree.Node{Kind: tree.KindFile, Name: "a.txt", RemoteID: "f1",
		Size: 10, Hash: "not-the-real-hash"})

	appFs := afero.NewMemMapFs()
	downloader := NewProjectDownloader(transferClient(server.URL), appFs,
		Options{Workers: 1})
	_, err := downloader.Download(context.Background(), remote, "/dest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match its reported hash")

	exists, err := afero.Exists(appFs, "/dest/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	partExists, err := afero.Exists(appFs, "/dest/a.txt.ddspart")
	require.NoError(t, err)
	assert.False(t, partExists)
}

// unreadableFs refuses to open part files for reading, as a disk would
// when the file vanishes or loses permissions between write and verify.
type unreadableFs struct {
	afero.Fs
}

func (f unreadableFs) Open(name string) (afero.File, error) {
	if strings.HasSuffix(name, ".ddspart") {
		return nil, fmt.Errorf("open %s: permission denied", name)
	}
	return f.Fs.Open(name)
}

func TestDownloadHashFailureRemovesPartFile(t *testing.T) {
	svc, server := newFakeService()
	defer server.Close()
	svc.files["f1"] = &fakeFile{content: []byte("0123456789")}

	node := &tree.Node{Kind: tree.KindFile, Name: "a.txt", Path: "a.txt",
		RemoteID: "f1", Size: 10, Hash: "781e5e245d69b566979b86e28d23f2c7"}

	appFs := afero.NewMemMapFs()
	downloader := NewFileDownloader(transferClient(server.URL), unreadableFs{appFs},
		1, NullWatcher{})
	err := downloader.Download(context.Background(), node, "/dest/a.txt")
	require.Error(t, err)

	partExists, err := afero.Exists(appFs, "/dest/a.txt.ddspart")
	require.NoError(t, err)
	assert.False(t, partExists)
}
