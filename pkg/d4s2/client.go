// Package d4s2 submits projects to the deliver/share service (D4S2), which
// emails recipients and, for deliveries, manages the handover of project
// ownership.
package d4s2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/duke-gcb/ddsclient/pkg/config"
	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/version"
)

// Destination selects which D4S2 collection an item lives in.
type Destination string

const (
	DestinationShare    Destination = "/shares/"
	DestinationDelivery Destination = "/deliveries/"
)

// Noun names the destination in user-facing messages.
func (d Destination) Noun() string {
	if d == DestinationDelivery {
		return "delivery"
	}
	return "share"
}

// Item is one share or delivery record on the D4S2 service. ShareUserIDs
// applies to deliveries only: the listed users get shared access seeded
// once the recipient accepts.
type Item struct {
	ID           string   `json:"id,omitempty"`
	ProjectID    string   `json:"project_id"`
	FromUserID   string   `json:"from_user_id"`
	ToUserID     string   `json:"to_user_id"`
	Role         string   `json:"role,omitempty"`
	UserMessage  string   `json:"user_message,omitempty"`
	ShareUserIDs []string `json:"share_user_ids,omitempty"`
}

// TokenSource provides the api token both services authenticate with.
type TokenSource interface {
	AuthToken() (string, error)
}

// Client is a thin REST client for the D4S2 service.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func NewClient(cfg *config.Config, tokens TokenSource) *Client {
	return &Client{baseURL: cfg.D4S2URL, http: &http.Client{}, tokens: tokens}
}

// Find looks up the item for (destination, project, fromUser, toUser).
// It returns nil when there is none, and an error when the service holds
// more than one, since sending would pick one arbitrarily.
func (c *Client) Find(ctx context.Context, destination Destination,
	projectID, fromUserID, toUserID string) (*Item, error) {

	query := url.Values{
		"project_id":   []string{projectID},
		"from_user_id": []string{fromUserID},
		"to_user_id":   []string{toUserID},
	}
	var items []Item
	err := c.do(ctx, http.MethodGet, string(destination)+"?"+query.Encode(), nil, &items)
	if err != nil {
		return nil, err
	}

	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return &items[0], nil
	default:
		return nil, errors.New(fmt.Sprintf(
			"found %d %s records for this project and user; contact support to clean them up",
			len(items), destination.Noun()))
	}
}

// Create registers a new item without sending it.
func (c *Client) Create(ctx context.Context, destination Destination, item Item) (*Item, error) {
	var created Item
	if err := c.do(ctx, http.MethodPost, string(destination), item, &created); err != nil {
		return nil, errors.WithContext(err, "create "+destination.Noun())
	}
	return &created, nil
}

// Send asks the service to email the recipient about the item. force
// resends an item that already went out.
func (c *Client) Send(ctx context.Context, destination Destination, itemID string,
	force bool) error {

	path := fmt.Sprintf("%s%s/send/", destination, itemID)
	if force {
		path += "?force=true"
	}
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return errors.WithContext(err, "send "+destination.Noun())
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.tokens.AuthToken()
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.WithContext(err, "encode request")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.WithContext(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Authorization", "Token "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WithContext(err, "reach deliver/share service")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errors.NewFriendlyError("Your account is not authorized to use " +
			"the deliver/share service. Please contact support to have your " +
			"account set up.")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return errors.New(fmt.Sprintf("deliver/share service error %d on %s: %s",
			resp.StatusCode, path, string(raw)))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.WithContext(err, "decode response")
		}
	}
	return nil
}
