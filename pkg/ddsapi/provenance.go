package ddsapi

import (
	"context"
	"net/http"
	"time"

	"github.com/duke-gcb/ddsclient/pkg/errors"
)

// CreateActivity records a new provenance activity.
func (c *Client) CreateActivity(ctx context.Context, name, description string) (*Activity, error) {
	body := map[string]string{"name": name, "description": description}
	var activity Activity
	if _, err := c.do(ctx, http.MethodPost, "/activities", nil, body, &activity); err != nil {
		return nil, errors.WithContext(err, "create activity")
	}
	return &activity, nil
}

// UpdateActivity sets the activity's end time, marking it finished.
func (c *Client) UpdateActivity(ctx context.Context, activityID string,
	endedOn time.Time) (*Activity, error) {

	body := map[string]string{"ended_on": endedOn.UTC().Format(time.RFC3339)}
	var activity Activity
	_, err := c.do(ctx, http.MethodPut, "/activities/"+activityID, nil, body, &activity)
	if err != nil {
		return nil, errors.WithContext(err, "update activity")
	}
	return &activity, nil
}

// CreateUsedRelation records that an activity read a file version.
func (c *Client) CreateUsedRelation(ctx context.Context, activityID, versionID string) error {
	return c.createActivityRelation(ctx, "used", activityID, versionID)
}

// CreateWasGeneratedByRelation records that an activity produced a file
// version.
func (c *Client) CreateWasGeneratedByRelation(ctx context.Context, activityID, versionID string) error {
	return c.createActivityRelation(ctx, "was_generated_by", activityID, versionID)
}

func (c *Client) createActivityRelation(ctx context.Context, relation,
	activityID, versionID string) error {

	body := map[string]interface{}{
		"activity": ResourceRef{Kind: KindActivity, ID: activityID},
		"entity":   ResourceRef{Kind: KindFileVersion, ID: versionID},
	}
	if _, err := c.do(ctx, http.MethodPost, "/relations/"+relation, nil, body, nil); err != nil {
		return errors.WithContext(err, "create "+relation+" relation")
	}
	return nil
}

// CreateWasDerivedFromRelation records that one file version's content was
// derived from another's.
func (c *Client) CreateWasDerivedFromRelation(ctx context.Context,
	usedVersionID, generatedVersionID string) error {

	body := map[string]interface{}{
		"used_entity":      ResourceRef{Kind: KindFileVersion, ID: usedVersionID},
		"generated_entity": ResourceRef{Kind: KindFileVersion, ID: generatedVersionID},
	}
	_, err := c.do(ctx, http.MethodPost, "/relations/was_derived_from", nil, body, nil)
	if err != nil {
		return errors.WithContext(err, "create was_derived_from relation")
	}
	return nil
}
