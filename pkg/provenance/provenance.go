// Package provenance records how copied file versions relate to their
// sources. A copy opens an activity, notes the source version of every
// file it reads, and after uploading reports which new versions came from
// which sources.
package provenance

import (
	"context"
	"time"

	"github.com/duke-gcb/ddsclient/pkg/ddsapi"
	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/tree"
)

// Builder accumulates source versions during the read phase and emits the
// provenance records during the write phase. The project-relative path is
// the join key between the two phases.
type Builder struct {
	client         *ddsapi.Client
	activity       *ddsapi.Activity
	sourceVersions map[string]string
}

func NewBuilder(client *ddsapi.Client) *Builder {
	return &Builder{client: client, sourceVersions: map[string]string{}}
}

// Start opens the activity all relations will hang off.
func (b *Builder) Start(ctx context.Context, name, description string) error {
	activity, err := b.client.CreateActivity(ctx, name, description)
	if err != nil {
		return err
	}
	b.activity = activity
	return nil
}

// ActivityID returns the open activity's id, or "" before Start.
func (b *Builder) ActivityID() string {
	if b.activity == nil {
		return ""
	}
	return b.activity.ID
}

// RecordSources notes the current version of every file in the source
// tree, keyed by path, and records a "used" relation for each. Called
// once the files have been read, so a copy that dies before uploading
// still shows what the activity consumed.
func (b *Builder) RecordSources(ctx context.Context, source *tree.Tree) error {
	if b.activity == nil {
		return errors.New("no provenance activity is open")
	}

	for _, index := range source.Files() {
		node := source.At(index)
		if node.VersionID == "" {
			continue
		}
		if err := b.client.CreateUsedRelation(ctx, b.activity.ID, node.VersionID); err != nil {
			return err
		}
		b.sourceVersions[node.Path] = node.VersionID
	}
	return nil
}

// RecordCopies walks the uploaded tree and, for every file whose path was
// recorded as a source, relates the new version to the old one: the
// activity generated the copy, and the copy was derived from the source.
func (b *Builder) RecordCopies(ctx context.Context, uploaded *tree.Tree) error {
	if b.activity == nil {
		return errors.New("no provenance activity is open")
	}

	for _, index := range uploaded.Files() {
		node := uploaded.At(index)
		sourceVersion, ok := b.sourceVersions[node.Path]
		if !ok || node.VersionID == "" {
			continue
		}

		err := b.client.CreateWasGeneratedByRelation(ctx, b.activity.ID, node.VersionID)
		if err != nil {
			return err
		}
		err = b.client.CreateWasDerivedFromRelation(ctx, sourceVersion, node.VersionID)
		if err != nil {
			return err
		}
	}
	return nil
}

// Finish closes the activity with its end time. A finished activity marks
// the copy as complete on the provenance service.
func (b *Builder) Finish(ctx context.Context, endedOn time.Time) error {
	if b.activity == nil {
		return errors.New("no provenance activity is open")
	}
	if _, err := b.client.UpdateActivity(ctx, b.activity.ID, endedOn); err != nil {
		return err
	}
	return nil
}
