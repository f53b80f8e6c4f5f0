package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/resurrectci/resurrectci/internal/logger"
)

// CheckoutPath returns the local checkout directory for a project key such
// as "owner/repo".
func CheckoutPath(workspaceDir, projectKey string) string {
	return filepath.Join(workspaceDir, strings.ReplaceAll(projectKey, "/", "_"))
}

// EnsureCheckout makes sure a current clone of the project exists at dir.
// An existing clone is fast-forwarded; a missing one is shallow-cloned. The
// token is optional and only needed for private projects.
func EnsureCheckout(ctx context.Context, projectKey, dir, token string) error {
	var auth *githttp.BasicAuth
	if token != "" {
		auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return pull(ctx, projectKey, dir, auth)
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return fmt.Errorf("failed to create workspace dir: %w", err)
	}

	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          fmt.Sprintf("https://github.com/%s.git", projectKey),
		Auth:         auth,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", projectKey, err)
	}

	logger.Infof("Cloned %s into %s", projectKey, dir)
	return nil
}

func pull(ctx context.Context, projectKey, dir string, auth *githttp.BasicAuth) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("failed to open checkout at %s: %w", dir, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	err = worktree.PullContext(ctx, &git.PullOptions{Auth: auth, SingleBranch: true})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		// A stale checkout is still mountable; log and keep going.
		logger.Warnf("Pull for %s failed, using existing checkout: %v", projectKey, err)
	}
	return nil
}
