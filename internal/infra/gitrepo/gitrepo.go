// Package gitrepo wraps the git operations needed to install and update
// plugins: clone, fetch-and-checkout, and a few read-only queries. It shells
// out to the git binary rather than reimplementing the protocol.
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"toolv/internal/domain"
)

// Repo is a git repository at a fixed directory. The directory does not have
// to exist until Clone is called.
type Repo struct {
	dir    string
	logger *zap.Logger
}

// New returns a Repo rooted at dir.
func New(dir string, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{dir: dir, logger: logger.Named("git")}
}

// Dir returns the repository directory.
func (r *Repo) Dir() string { return r.dir }

// IsRepo reports whether the directory looks like a git checkout.
func (r *Repo) IsRepo() bool {
	_, err := os.Stat(filepath.Join(r.dir, ".git"))
	return err == nil
}

// Clone clones url into the repository directory.
func (r *Repo) Clone(ctx context.Context, url string) error {
	r.logger.Debug("cloning repository", zap.String("url", url), zap.String("dir", r.dir))
	if err := os.MkdirAll(filepath.Dir(r.dir), 0o755); err != nil {
		return domain.Wrap(domain.CodeUnavailable, "gitrepo.Clone", "failed to create parent directory", err)
	}
	_, err := r.git(ctx, "", "clone", "-q", url, r.dir)
	return err
}

// Update fetches ref from origin and checks it out, returning the HEAD
// commit before and after. An empty ref updates the currently checked out
// branch.
func (r *Repo) Update(ctx context.Context, ref string) (string, string, error) {
	if ref == "" {
		branch, err := r.CurrentBranch(ctx)
		if err != nil {
			return "", "", err
		}
		ref = branch
	}
	prev, err := r.CurrentSHA(ctx)
	if err != nil {
		return "", "", err
	}
	r.logger.Debug("updating repository", zap.String("dir", r.dir), zap.String("ref", ref))
	if _, err := r.git(ctx, r.dir, "fetch", "--prune", "--update-head-ok", "origin", fmt.Sprintf("%s:%s", ref, ref)); err != nil {
		return "", "", err
	}
	if _, err := r.git(ctx, r.dir, "checkout", "--force", ref); err != nil {
		return "", "", err
	}
	post, err := r.CurrentSHA(ctx)
	if err != nil {
		return "", "", err
	}
	return prev, post, nil
}

// CurrentSHA returns the full HEAD commit hash.
func (r *Repo) CurrentSHA(ctx context.Context) (string, error) {
	return r.git(ctx, r.dir, "rev-parse", "HEAD")
}

// CurrentSHAShort returns the abbreviated HEAD commit hash.
func (r *Repo) CurrentSHAShort(ctx context.Context) (string, error) {
	return r.git(ctx, r.dir, "rev-parse", "--short", "HEAD")
}

// CurrentBranch returns the name of the checked out branch.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	return r.git(ctx, r.dir, "rev-parse", "--abbrev-ref", "HEAD")
}

// RemoteURL returns the origin remote url, if one is configured.
func (r *Repo) RemoteURL(ctx context.Context) (string, bool) {
	url, err := r.git(ctx, r.dir, "config", "--get", "remote.origin.url")
	if err != nil || url == "" {
		return "", false
	}
	return url, true
}

// SplitURLAndRef splits a repository address of the form url#ref or url@ref.
// The @ only counts when it appears after the last slash, so scp-style
// addresses like git@host:org/repo pass through untouched.
func SplitURLAndRef(url string) (string, string) {
	if base, ref, ok := strings.Cut(url, "#"); ok {
		return base, ref
	}
	slash := strings.LastIndex(url, "/")
	at := strings.LastIndex(url, "@")
	if at > slash {
		return url[:at], url[at+1:]
	}
	return url, ""
}

func (r *Repo) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := fmt.Sprintf("git %s failed", args[0])
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			msg = fmt.Sprintf("%s: %s", msg, detail)
		}
		return "", domain.Wrap(domain.CodeUnavailable, "gitrepo", msg, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
