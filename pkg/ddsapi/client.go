package ddsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/duke-gcb/ddsclient/pkg/config"
	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/version"
)

const totalPagesHeader = "X-Total-Pages"

// notConsistentCode is the error code the service uses while a resource is
// still settling into consistency.
const notConsistentCode = "resource_not_consistent"

// Client talks to the data service REST API. All methods retry per the
// client's settings, and re-claim the auth token once when the service
// answers 401.
type Client struct {
	baseURL  string
	http     *http.Client
	auth     *Auth
	clock    clockwork.Clock
	settings Settings
	pageSize int
}

// NewClient creates a data service client for the given configuration.
func NewClient(cfg *config.Config) *Client {
	return newClient(cfg, DefaultSettings(), clockwork.NewRealClock())
}

func newClient(cfg *config.Config, settings Settings, clock clockwork.Clock) *Client {
	c := &Client{
		baseURL:  cfg.URL,
		http:     &http.Client{},
		clock:    clock,
		settings: settings,
		pageSize: cfg.GetPageSize,
	}
	c.auth = newAuth(cfg, c, clock)
	return c
}

// Settings exposes the retry configuration so transfer code can derive the
// chunk-level call settings from the same source.
func (c *Client) Settings() Settings {
	return c.settings
}

// AuthToken returns a currently valid api token. The deliver/share service
// authenticates with the same token as the data service.
func (c *Client) AuthToken() (string, error) {
	return c.auth.Token()
}

// VerifyConnection makes an authenticated request to confirm the URL and
// keys are usable before starting a long operation.
func (c *Client) VerifyConnection(ctx context.Context) error {
	_, err := c.CurrentUser(ctx)
	return err
}

// claimToken exchanges the agent and user keys for a short-lived api token.
func (c *Client) claimToken(agentKey, userKey string) (string, time.Time, error) {
	reqBody := map[string]string{
		"agent_key": agentKey,
		"user_key":  userKey,
	}
	var respBody struct {
		APIToken  string  `json:"api_token"`
		ExpiresOn float64 `json:"expires_on"`
	}

	retrier := Retrier{Call: c.settings.ControlCall(), Clock: c.clock}
	err := retrier.Do(context.Background(), func() error {
		_, err := c.roundTrip(context.Background(), http.MethodPost,
			"/software_agents/api_token", nil, reqBody, &respBody, "")
		return err
	})
	if err != nil {
		var dsErr *DataServiceError
		if errors.As(err, &dsErr) && dsErr.StatusCode == http.StatusNotFound {
			return "", time.Time{}, NewAgentNotFoundError(userConfigPath())
		}
		return "", time.Time{}, errors.WithContext(err, "claim api token")
	}
	return respBody.APIToken, time.Unix(int64(respBody.ExpiresOn), 0), nil
}

func userConfigPath() string {
	path, err := config.GetUserConfigPath()
	if err != nil {
		return config.UserConfigPath
	}
	return path
}

// do issues one API call under the retry policy, decoding the JSON response
// into out when out is non-nil. It returns the response headers so paging
// callers can read the page count.
func (c *Client) do(ctx context.Context, method, path string, query url.Values,
	body, out interface{}) (http.Header, error) {

	token, err := c.auth.Token()
	if err != nil {
		return nil, err
	}

	var header http.Header
	refreshed := false
	retrier := Retrier{Call: c.settings.ControlCall(), Clock: c.clock}
	err = retrier.Do(ctx, func() error {
		header, err = c.roundTrip(ctx, method, path, query, body, out, token)
		var dsErr *DataServiceError
		if errors.As(err, &dsErr) && dsErr.StatusCode == http.StatusUnauthorized &&
			!refreshed && c.auth.CanRefresh() {
			refreshed = true
			c.auth.Invalidate()
			if token, err = c.auth.Token(); err != nil {
				return err
			}
			header, err = c.roundTrip(ctx, method, path, query, body, out, token)
		}
		return err
	})
	return header, err
}

// roundTrip performs a single HTTP exchange with no retries. Non-2xx
// responses become DataServiceError (or NotConsistentError for the
// eventual-consistency code).
func (c *Client) roundTrip(ctx context.Context, method, path string,
	query url.Values, body, out interface{}, token string) (http.Header, error) {

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, errors.WithContext(err, "encode request")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, errors.WithContext(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newResponseError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, errors.WithContext(err, "decode response")
		}
	}
	return resp.Header, nil
}

func newResponseError(resp *http.Response) error {
	var payload struct {
		Code       string `json:"code"`
		Error      string `json:"error"`
		Reason     string `json:"reason"`
		Suggestion string `json:"suggestion"`
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &payload)

	reason := payload.Reason
	if reason == "" {
		reason = payload.Error
	}
	if reason == "" {
		reason = string(raw)
	}

	dsErr := DataServiceError{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.String(),
		Reason:     reason,
		Suggestion: payload.Suggestion,
	}
	if payload.Code == notConsistentCode {
		return &NotConsistentError{dsErr}
	}
	return &dsErr
}

// getSingle fetches one resource and rejects unexpected pagination headers,
// which would mean we are decoding only part of the answer.
func (c *Client) getSingle(ctx context.Context, path string, query url.Values,
	out interface{}) error {

	header, err := c.do(ctx, http.MethodGet, path, query, nil, out)
	if err != nil {
		return err
	}
	if pages := header.Get(totalPagesHeader); pages != "" && pages != "1" {
		return ErrUnexpectedPaging
	}
	return nil
}

// getPages fetches every page of a collection endpoint and merges the
// results. The service reports the page count in a response header.
func getPages[T any](ctx context.Context, c *Client, path string,
	query url.Values) ([]T, error) {

	if query == nil {
		query = url.Values{}
	}
	query.Set("per_page", strconv.Itoa(c.pageSize))

	var merged []T
	for page := 1; ; page++ {
		query.Set("page", strconv.Itoa(page))
		var body struct {
			Results []T `json:"results"`
		}
		header, err := c.do(ctx, http.MethodGet, path, query, nil, &body)
		if err != nil {
			return nil, err
		}
		merged = append(merged, body.Results...)

		totalPages, err := strconv.Atoi(header.Get(totalPagesHeader))
		if err != nil || page >= totalPages {
			return merged, nil
		}
	}
}

// Projects lists every project visible to the current user.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	return getPages[Project](ctx, c, "/projects", nil)
}

// ProjectByName finds the non-deleted project with the given name.
func (c *Client) ProjectByName(ctx context.Context, name string) (*Project, error) {
	projects, err := getPages[Project](ctx, c, "/projects",
		url.Values{"name_contains": []string{name}})
	if err != nil {
		return nil, err
	}
	for i, project := range projects {
		if project.Name == name && !project.IsDeleted {
			return &projects[i], nil
		}
	}
	return nil, errors.ProjectNotFound{Name: name}
}

// CreateProject makes a new project owned by the current user.
func (c *Client) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	body := map[string]string{"name": name, "description": description}
	var project Project
	if _, err := c.do(ctx, http.MethodPost, "/projects", nil, body, &project); err != nil {
		return nil, errors.WithContext(err, "create project")
	}
	return &project, nil
}

// DeleteProject removes a project and everything in it.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/projects/"+projectID, nil, nil, nil)
	return err
}

// Children lists the direct children of a project or folder. parentKind
// must be KindProject or KindFolder.
func (c *Client) Children(ctx context.Context, parentKind, parentID string) ([]Child, error) {
	var path string
	switch parentKind {
	case KindProject:
		path = "/projects/" + parentID + "/children"
	case KindFolder:
		path = "/folders/" + parentID + "/children"
	default:
		return nil, errors.New(fmt.Sprintf("cannot list children of kind %q", parentKind))
	}
	return getPages[Child](ctx, c, path, nil)
}

// CreateFolder makes a folder under a project or another folder.
func (c *Client) CreateFolder(ctx context.Context, parent ResourceRef, name string) (*Child, error) {
	body := map[string]interface{}{"name": name, "parent": parent}
	var folder Child
	if _, err := c.do(ctx, http.MethodPost, "/folders", nil, body, &folder); err != nil {
		return nil, errors.WithContext(err, "create folder")
	}
	return &folder, nil
}

// DeleteFolder removes a folder and everything in it.
func (c *Client) DeleteFolder(ctx context.Context, folderID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/folders/"+folderID, nil, nil, nil)
	return err
}

// GetFile fetches a file's metadata, including its current version.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var file File
	if err := c.getSingle(ctx, "/files/"+fileID, nil, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DeleteFile removes a file and all its versions.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/files/"+fileID, nil, nil, nil)
	return err
}

// CreateUpload starts a chunked upload session in a project. hash is the
// whole-file digest, declared up front so the service can verify the
// assembled content.
func (c *Client) CreateUpload(ctx context.Context, projectID, name, contentType string,
	size int64, hash HashPair) (*Upload, error) {

	body := map[string]interface{}{
		"name":         name,
		"content_type": contentType,
		"size":         size,
		"hash":         hash,
	}
	var upload Upload
	_, err := c.do(ctx, http.MethodPost, "/projects/"+projectID+"/uploads", nil,
		body, &upload)
	if err != nil {
		return nil, errors.WithContext(err, "create upload")
	}
	return &upload, nil
}

// CreateUploadURL registers one chunk of an upload and returns the
// descriptor for sending its bytes to the backing store. Chunk numbers
// count from zero within a session.
func (c *Client) CreateUploadURL(ctx context.Context, uploadID string, number int,
	size int64, hash HashPair) (*ExternalDescriptor, error) {

	body := map[string]interface{}{
		"number": number,
		"size":   size,
		"hash":   map[string]string{"value": hash.Value, "algorithm": hash.Algorithm},
	}
	var descriptor ExternalDescriptor
	_, err := c.do(ctx, http.MethodPut, "/uploads/"+uploadID+"/chunks", nil,
		body, &descriptor)
	if err != nil {
		return nil, errors.WithContext(err, "create chunk url")
	}
	return &descriptor, nil
}

// CompleteUpload closes an upload session, reporting the whole-file hash.
func (c *Client) CompleteUpload(ctx context.Context, uploadID string, hash HashPair) error {
	body := map[string]interface{}{
		"hash": map[string]string{"value": hash.Value, "algorithm": hash.Algorithm},
	}
	_, err := c.do(ctx, http.MethodPut, "/uploads/"+uploadID+"/complete", nil, body, nil)
	if err != nil {
		return errors.WithContext(err, "complete upload")
	}
	return nil
}

// GetUpload fetches the state of an upload session, used to confirm the
// service marked the content consistent after completion.
func (c *Client) GetUpload(ctx context.Context, uploadID string) (*Upload, error) {
	var upload Upload
	if err := c.getSingle(ctx, "/uploads/"+uploadID, nil, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// CreateFile attaches a completed upload as a new file under a parent.
func (c *Client) CreateFile(ctx context.Context, parent ResourceRef, uploadID string) (*File, error) {
	body := map[string]interface{}{
		"parent": parent,
		"upload": map[string]string{"id": uploadID},
	}
	var file File
	if _, err := c.do(ctx, http.MethodPost, "/files", nil, body, &file); err != nil {
		return nil, errors.WithContext(err, "create file")
	}
	return &file, nil
}

// UpdateFileUpload attaches a completed upload as the new current version
// of an existing file.
func (c *Client) UpdateFileUpload(ctx context.Context, fileID, uploadID string) (*File, error) {
	body := map[string]interface{}{
		"upload": map[string]string{"id": uploadID},
	}
	var file File
	if _, err := c.do(ctx, http.MethodPut, "/files/"+fileID, nil, body, &file); err != nil {
		return nil, errors.WithContext(err, "update file")
	}
	return &file, nil
}

// GetFileURL returns the descriptor for downloading a file's current
// content from the backing store.
func (c *Client) GetFileURL(ctx context.Context, fileID string) (*ExternalDescriptor, error) {
	var descriptor ExternalDescriptor
	if err := c.getSingle(ctx, "/files/"+fileID+"/url", nil, &descriptor); err != nil {
		return nil, err
	}
	return &descriptor, nil
}

// CurrentUser returns the account the auth token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.getSingle(ctx, "/current_user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UsersByFullName lists users whose full name contains the given text.
func (c *Client) UsersByFullName(ctx context.Context, fullName string) ([]User, error) {
	return getPages[User](ctx, c, "/users",
		url.Values{"full_name_contains": []string{fullName}})
}

// UsersByEmail lists users registered with the given email address.
func (c *Client) UsersByEmail(ctx context.Context, email string) ([]User, error) {
	return getPages[User](ctx, c, "/users",
		url.Values{"email": []string{email}})
}

// UserByUsername finds the single user with the given username.
func (c *Client) UserByUsername(ctx context.Context, username string) (*User, error) {
	users, err := getPages[User](ctx, c, "/users",
		url.Values{"username": []string{username}})
	if err != nil {
		return nil, err
	}
	if len(users) != 1 {
		return nil, errors.New(fmt.Sprintf("found %d users with username %q",
			len(users), username))
	}
	return &users[0], nil
}

// GrantPermission gives a user an auth role on a project, replacing any
// role they already had.
func (c *Client) GrantPermission(ctx context.Context, projectID, userID, authRole string) error {
	body := map[string]interface{}{
		"auth_role": map[string]string{"id": authRole},
	}
	path := "/projects/" + projectID + "/permissions/" + userID
	if _, err := c.do(ctx, http.MethodPut, path, nil, body, nil); err != nil {
		return errors.WithContext(err, "grant permission")
	}
	return nil
}

// GetPermission returns a user's auth role on a project. The service
// answers 404 when the user has no role.
func (c *Client) GetPermission(ctx context.Context, projectID, userID string) (*Permission, error) {
	var permission Permission
	path := "/projects/" + projectID + "/permissions/" + userID
	if err := c.getSingle(ctx, path, nil, &permission); err != nil {
		return nil, err
	}
	return &permission, nil
}

// RevokePermission removes a user's auth role from a project. Revoking a
// role the user doesn't hold is not an error.
func (c *Client) RevokePermission(ctx context.Context, projectID, userID string) error {
	path := "/projects/" + projectID + "/permissions/" + userID
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil, nil)
	var dsErr *DataServiceError
	if errors.As(err, &dsErr) && dsErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}
