// Package versioncheck compares the running release against the newest
// published one. Staleness is only ever worth a warning; a transfer must
// not fail because a release page was unreachable.
package versioncheck

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/version"
)

// ReleaseURL serves metadata about the latest published release.
const ReleaseURL = "https://api.github.com/repos/Duke-GCB/ddsclient/releases/latest"

type Checker struct {
	url  string
	http *http.Client
}

func NewChecker() *Checker {
	return &Checker{
		url:  ReleaseURL,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Latest fetches the newest released version string.
func (c *Checker) Latest(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", errors.WithContext(err, "build release request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.WithContext(err, "fetch latest release")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.New("unexpected status fetching latest release: " + resp.Status)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", errors.WithContext(err, "decode release")
	}
	return strings.TrimPrefix(release.TagName, "v"), nil
}

// Stale reports whether current is older than latest. Unparseable versions
// (such as development builds) are never considered stale.
func Stale(current, latest string) bool {
	currentVersion, err := goversion.NewVersion(current)
	if err != nil {
		return false
	}
	latestVersion, err := goversion.NewVersion(latest)
	if err != nil {
		return false
	}
	return currentVersion.LessThan(latestVersion)
}

// WarnIfStale logs a warning when a newer release exists. Failures to find
// out are logged at debug level and otherwise ignored.
func (c *Checker) WarnIfStale(ctx context.Context) {
	if version.Version == version.EmptyValue {
		return
	}
	latest, err := c.Latest(ctx)
	if err != nil {
		log.WithError(err).Debug("Unable to check for a newer release")
		return
	}
	if Stale(version.Version, latest) {
		log.Warnf("A newer release (%s) is available; you are running %s.",
			latest, version.Version)
	}
}
