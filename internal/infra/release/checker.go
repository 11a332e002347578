// Package release checks GitHub for a newer toolv release. The result is
// cached on disk so repeated invocations stay off the network.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"toolv/internal/buildinfo"
	"toolv/internal/infra/cachefile"
)

const (
	requestTimeout = 10 * time.Second
	cacheTTL       = 24 * time.Hour

	githubRepoOwner = "toolv-dev"
	githubRepoName  = "toolv"
)

type githubRelease struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	HTMLURL     string `json:"html_url"`
	Prerelease  bool   `json:"prerelease"`
	Draft       bool   `json:"draft"`
	PublishedAt string `json:"published_at"`
}

// Release describes a published release newer than the running build.
type Release struct {
	Version     string
	Name        string
	URL         string
	PublishedAt string
}

// Result is the outcome of one check. Latest is set only when an update is
// available.
type Result struct {
	CurrentVersion  string
	UpdateAvailable bool
	Latest          *Release
}

// Checker performs the release lookup.
type Checker struct {
	logger   *zap.Logger
	client   *http.Client
	endpoint string
	cache    *cachefile.Manager[githubRelease]
}

// Option adjusts a Checker, mostly for tests.
type Option func(*Checker)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) { c.client = client }
}

func WithEndpoint(endpoint string) Option {
	return func(c *Checker) { c.endpoint = endpoint }
}

// NewChecker creates a Checker caching results under cacheDir.
func NewChecker(cacheDir string, logger *zap.Logger, opts ...Option) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("release")
	c := &Checker{
		logger:   logger,
		client:   &http.Client{Timeout: requestTimeout},
		endpoint: fmt.Sprintf("https://api.github.com/repos/%s/%s/releases?per_page=10", githubRepoOwner, githubRepoName),
		cache: cachefile.New[githubRelease](
			filepath.Join(cacheDir, "latest_release.gob.z"),
			cachefile.WithTTL(cacheTTL),
			cachefile.WithLogger(logger),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check reports whether a newer release exists. Development builds skip the
// lookup entirely.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	currentVersion := strings.TrimSpace(buildinfo.Version)
	result := Result{CurrentVersion: currentVersion}
	if isDevelopmentBuild() || !isVersionComparable(currentVersion) {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	latest, err := c.cache.Get(ctx, c.fetchLatestRelease)
	if err != nil {
		return result, err
	}
	if latest.TagName == "" || latest.HTMLURL == "" {
		return result, nil
	}

	updateAvailable, compareErr := isUpdateAvailable(currentVersion, latest.TagName)
	if compareErr != nil {
		c.logger.Debug("version compare failed",
			zap.String("current", currentVersion),
			zap.String("latest", latest.TagName),
			zap.Error(compareErr))
		return result, nil
	}

	result.UpdateAvailable = updateAvailable
	if updateAvailable {
		result.Latest = &Release{
			Version:     latest.TagName,
			Name:        latest.Name,
			URL:         latest.HTMLURL,
			PublishedAt: latest.PublishedAt,
		}
	}
	return result, nil
}

func (c *Checker) fetchLatestRelease(ctx context.Context) (githubRelease, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return githubRelease{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return githubRelease{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return githubRelease{}, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var releases []githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return githubRelease{}, err
	}

	selected, _ := selectRelease(releases)
	return selected, nil
}

// selectRelease picks the first stable, non-draft entry. GitHub returns
// releases newest first.
func selectRelease(releases []githubRelease) (githubRelease, bool) {
	for _, release := range releases {
		if release.Draft || release.Prerelease {
			continue
		}
		return release, true
	}
	return githubRelease{}, false
}

func isUpdateAvailable(current, latest string) (bool, error) {
	currentSemver, ok := normalizeSemver(current)
	if !ok {
		return false, fmt.Errorf("invalid current version: %s", current)
	}
	latestSemver, ok := normalizeSemver(latest)
	if !ok {
		return false, fmt.Errorf("invalid latest version: %s", latest)
	}
	return semver.Compare(latestSemver, currentSemver) > 0, nil
}

func normalizeSemver(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	if !strings.HasPrefix(value, "v") {
		value = "v" + value
	}
	normalized := semver.Canonical(value)
	if normalized == "" {
		return "", false
	}
	return normalized, true
}

func isVersionComparable(raw string) bool {
	value := strings.TrimSpace(raw)
	if value == "" || value == "dev" {
		return false
	}
	_, ok := normalizeSemver(value)
	return ok
}

func isDevelopmentBuild() bool {
	version := strings.TrimSpace(buildinfo.Version)
	if version == "" || version == "dev" {
		return true
	}
	build := strings.TrimSpace(buildinfo.Build)
	return build == "" || build == "unknown"
}

func userAgent() string {
	version := strings.TrimSpace(buildinfo.Version)
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("toolv/%s", version)
}
