package d4s2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duke-gcb/ddsclient/pkg/config"
	"github.com/duke-gcb/ddsclient/pkg/ddsapi"
	"github.com/duke-gcb/ddsclient/pkg/transfer"
)

// copyDataService fakes enough of the data service for a full
// deliver-with-copy: one source project holding a single file, plus the
// upload, activity, and relation endpoints the copy drives.
type copyDataService struct {
	mu      sync.Mutex
	baseURL string

	sourceContent   []byte
	createdProjects []string
	uploadedContent []byte
	relationPaths   []string
	activityName    string
	activityEndedOn string
}

const sourceHash = "5d41402abc4b2a76b9719d911017c592" // md5("hello")

func (s *copyDataService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/projects" && r.Method == http.MethodGet:
		w.Header().Set("X-Total-Pages", "1")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []ddsapi.Project{{ID: "p1", Name: "mouse"}},
		})

	case path == "/projects" && r.Method == http.MethodPost:
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		s.createdProjects = append(s.createdProjects, body["name"])
		json.NewEncoder(w).Encode(ddsapi.Project{ID: "p2", Name: body["name"]})

	case path == "/current_user":
		json.NewEncoder(w).Encode(ddsapi.User{ID: "u1", Email: "me@duke.edu"})

	case path == "/users":
		w.Header().Set("X-Total-Pages", "1")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []ddsapi.User{{ID: "u2", Email: "joe@duke.edu"}},
		})

	case path == "/projects/p1/permissions/u2":
		w.WriteHeader(http.StatusOK)

	case path == "/projects/p1/children":
		w.Header().Set("X-Total-Pages", "1")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []ddsapi.Child{{
				ID: "f1", Kind: ddsapi.KindFile, Name: "a.txt",
				CurrentVersion: &ddsapi.FileVersion{
					ID: "src-v1",
					Upload: ddsapi.Upload{
						Size:   int64(len(s.sourceContent)),
						Hashes: []ddsapi.HashPair{{Algorithm: "md5", Value: sourceHash}},
					},
				},
			}},
		})

	case path == "/files/f1/url":
		json.NewEncoder(w).Encode(ddsapi.ExternalDescriptor{
			HTTPVerb: http.MethodGet, Host: s.baseURL, URL: "/content/f1",
		})

	case path == "/content/f1":
		w.WriteHeader(http.StatusPartialContent)
		w.Write(s.sourceContent)

	case path == "/projects/p2/uploads":
		json.NewEncoder(w).Encode(ddsapi.Upload{ID: "up1"})

	case path == "/uploads/up1/chunks":
		json.NewEncoder(w).Encode(ddsapi.ExternalDescriptor{
			HTTPVerb: http.MethodPut, Host: s.baseURL, URL: "/store/up1",
		})

	case path == "/store/up1":
		data, _ := io.ReadAll(r.Body)
		s.uploadedContent = append(s.uploadedContent, data...)

	case path == "/uploads/up1/complete":
		w.WriteHeader(http.StatusOK)

	case path == "/files" && r.Method == http.MethodPost:
		json.NewEncoder(w).Encode(ddsapi.File{
			ID: "f2", Kind: ddsapi.KindFile, Name: "a.txt",
			CurrentVersion: &ddsapi.FileVersion{ID: "new-v1"},
		})

	case path == "/activities":
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		s.activityName = body["name"]
		json.NewEncoder(w).Encode(ddsapi.Activity{ID: "act1", Name: body["name"]})

	case path == "/activities/act1" && r.Method == http.MethodPut:
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		s.activityEndedOn = body["ended_on"]
		json.NewEncoder(w).Encode(ddsapi.Activity{ID: "act1", EndedOn: s.activityEndedOn})

	case strings.HasPrefix(path, "/relations/"):
		s.relationPaths = append(s.relationPaths, path)
		w.WriteHeader(http.StatusCreated)

	default:
		http.Error(w, fmt.Sprintf(`{"error": "no route for %s"}`, path),
			http.StatusNotFound)
	}
}

func TestDeliverWithCopy(t *testing.T) {
	svc := &copyDataService{sourceContent: []byte("hello")}
	dataServer := httptest.NewServer(svc)
	defer dataServer.Close()
	svc.baseURL = dataServer.URL

	d4s2Svc := &fakeD4S2{}
	d4s2Server := httptest.NewServer(d4s2Svc)
	defer d4s2Server.Close()

	cfg := &config.Config{URL: dataServer.URL, D4S2URL: d4s2Server.URL,
		Auth: "SECRET", GetPageSize: 100}
	appFs := afero.NewMemMapFs()
	w := NewWorkflow(cfg, ddsapi.NewClient(cfg), appFs,
		transfer.Options{ChunkSize: 1024, Workers: 1})
	w.clock = clockwork.NewFakeClockAt(
		time.Date(2016, 8, 1, 13, 30, 0, 0, time.UTC))

	outcome := w.Submit(context.Background(), Request{
		Destination: DestinationDelivery,
		ProjectName: "mouse",
		Email:       "joe@duke.edu",
		Copy:        true,
	})
	require.Equal(t, StatusOk, outcome.Status, outcome.Message)

	// The copy landed in a fresh timestamped project and the delivery
	// points at it, not at the source.
	assert.Equal(t, []string{"mouse 08/01/2016 13:30"}, svc.createdProjects)
	require.Len(t, d4s2Svc.created, 1)
	assert.Equal(t, "p2", d4s2Svc.created[0].ProjectID)

	assert.Equal(t, []byte("hello"), svc.uploadedContent)
	assert.Equal(t, "mouse 08/01/2016 13:30", svc.activityName)
	assert.Equal(t, "2016-08-01T13:30:00Z", svc.activityEndedOn)
	assert.Equal(t, []string{
		"/relations/used",
		"/relations/was_generated_by",
		"/relations/was_derived_from",
	}, svc.relationPaths)

	// The temp workspace is gone once the submission finishes.
	entries, err := afero.ReadDir(appFs, "/tmp")
	if err == nil {
		for _, entry := range entries {
			assert.NotContains(t, entry.Name(), "ddsclient-copy")
		}
	}
}

func TestNewFilterRejectsBothDirections(t *testing.T) {
	_, err := newFilter(Request{
		IncludePaths: []string{"a"},
		ExcludePaths: []string{"b"},
	})
	assert.EqualError(t, err, "cannot combine include and exclude paths")
}
