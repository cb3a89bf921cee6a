// Package version reports the build version and checks GitHub for newer
// releases.
package version

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-capture/internal/types"
	"github.com/oszuidwest/zwfm-capture/internal/util"
	"golang.org/x/mod/semver"
)

// Version is the application version, set via ldflags at build time.
var Version = "dev"

// Commit is the git commit hash, set via ldflags at build time.
var Commit = "unknown"

// BuildTime is the build timestamp, set via ldflags at build time.
var BuildTime = "unknown"

const (
	githubRepo    = "oszuidwest/zwfm-capture"
	checkInterval = 24 * time.Hour
	checkDelay    = 30 * time.Second // Delay before first check to avoid blocking startup
	checkTimeout  = 30 * time.Second
	maxRetries    = 3
	retryDelay    = 1 * time.Minute
)

// DefaultReleasesURL is the GitHub API endpoint for the latest release.
const DefaultReleasesURL = "https://api.github.com/repos/" + githubRepo + "/releases/latest"

// Checker periodically checks GitHub for new releases.
type Checker struct {
	URL    string
	Client *http.Client

	mu     sync.RWMutex
	latest string
	etag   string // For conditional requests (304 Not Modified)
}

// NewChecker creates a checker against the GitHub releases API.
func NewChecker() *Checker {
	return &Checker{URL: DefaultReleasesURL, Client: http.DefaultClient}
}

// Run checks after a short delay and then daily until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	if !sleep(ctx, checkDelay) {
		return
	}
	c.checkWithRetry(ctx)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkWithRetry(ctx)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Checker) checkWithRetry(ctx context.Context) {
	for attempt := range maxRetries {
		if c.Check(ctx) {
			return
		}
		if attempt < maxRetries-1 && !sleep(ctx, retryDelay) {
			return
		}
	}
	slog.Debug("version check failed", "attempts", maxRetries)
}

// githubRelease represents the GitHub API response for a release.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// Check fetches the latest release once. It returns false when the check
// should be retried.
func (c *Checker) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "zwfm-capture/"+Version)

	c.mu.RLock()
	etag := c.etag
	c.mu.RUnlock()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer util.SafeClose(resp.Body, "release response")

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified, http.StatusNotFound:
		return true
	case http.StatusForbidden, http.StatusTooManyRequests:
		// Rate limited
		return false
	default:
		return resp.StatusCode < 500
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return false
	}
	if release.Draft || release.Prerelease {
		return true
	}
	if release.TagName == "" {
		return false
	}

	c.mu.Lock()
	c.latest = normalizeVersion(release.TagName)
	if newEtag := resp.Header.Get("ETag"); newEtag != "" {
		c.etag = newEtag
	}
	c.mu.Unlock()
	return true
}

// Info returns the current version info for clients.
func (c *Checker) Info() types.VersionInfo {
	c.mu.RLock()
	latest := c.latest
	c.mu.RUnlock()
	return info(Version, latest)
}

func info(version, latest string) types.VersionInfo {
	current := normalizeVersion(version)
	v := types.VersionInfo{
		Current:   current,
		Latest:    latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}
	if latest != "" && current != "dev" && current != "unknown" {
		v.UpdateAvail = isNewerVersion(latest, current)
	}
	return v
}

// String renders the build for `version` output.
func String() string {
	return "zwfm-capture " + normalizeVersion(Version) + " (" + Commit + ", built " + util.FormatHumanTime(BuildTime) + ")"
}

// normalizeVersion removes 'v' prefix and trims whitespace.
func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// canonicalVersion ensures a version string is in semver canonical form (v prefix).
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func isNewerVersion(latest, current string) bool {
	return semver.Compare(canonicalVersion(latest), canonicalVersion(current)) > 0
}
