package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/resurrectci/resurrectci/internal/models"
)

// Provider reads and writes project files on the hosting service. The web
// IDE loads the file tree and file contents through it and lands edits as
// pull requests.
type Provider interface {
	GetTree(ctx context.Context, projectKey, ref string) ([]models.FileNode, error)
	GetFile(ctx context.Context, projectKey, path, ref string) (models.FileContent, error)
	CreateBranch(ctx context.Context, projectKey, base, name string) error
	CommitFile(ctx context.Context, projectKey, branch, path, message string, content []byte, sha string) (string, error)
	CreatePullRequest(ctx context.Context, projectKey, title, body, head, base string) (string, error)
}

// GitHub implements Provider against the GitHub REST API.
type GitHub struct {
	client *github.Client
}

// NewGitHub creates a provider. An empty token yields an unauthenticated
// client, enough for public repositories at reduced rate limits.
func NewGitHub(token string) *GitHub {
	var httpClient *http.Client
	if token != "" {
		httpClient = oauth2.NewClient(context.Background(),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	return &GitHub{client: github.NewClient(httpClient)}
}

// NewGitHubWithBaseURL points the provider at a different API endpoint, for
// GitHub Enterprise and tests.
func NewGitHubWithBaseURL(token, baseURL string) (*GitHub, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	provider := NewGitHub(token)
	provider.client.BaseURL = parsed
	provider.client.UploadURL = parsed
	return provider, nil
}

func splitKey(projectKey string) (string, string, error) {
	owner, repo, ok := strings.Cut(projectKey, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("invalid project key %q, want owner/repo", projectKey)
	}
	return owner, repo, nil
}

// GetTree returns the recursive file listing at ref.
func (g *GitHub) GetTree(ctx context.Context, projectKey, ref string) ([]models.FileNode, error) {
	owner, repo, err := splitKey(projectKey)
	if err != nil {
		return nil, err
	}

	tree, _, err := g.client.Git.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree for %s@%s: %w", projectKey, ref, err)
	}

	nodes := make([]models.FileNode, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		node := models.FileNode{
			Path: entry.GetPath(),
			SHA:  entry.GetSHA(),
			Size: int64(entry.GetSize()),
		}
		switch entry.GetType() {
		case "blob":
			node.Type = models.FileNodeFile
		case "tree":
			node.Type = models.FileNodeDir
		default:
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// GetFile returns one file's decoded content and blob SHA at ref.
func (g *GitHub) GetFile(ctx context.Context, projectKey, path, ref string) (models.FileContent, error) {
	owner, repo, err := splitKey(projectKey)
	if err != nil {
		return models.FileContent{}, err
	}

	file, _, _, err := g.client.Repositories.GetContents(ctx, owner, repo, path,
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return models.FileContent{}, fmt.Errorf("failed to get %s from %s: %w", path, projectKey, err)
	}
	if file == nil {
		return models.FileContent{}, fmt.Errorf("%s in %s is a directory", path, projectKey)
	}

	content, err := file.GetContent()
	if err != nil {
		return models.FileContent{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return models.FileContent{Content: content, SHA: file.GetSHA()}, nil
}

// CreateBranch creates a new branch pointing at base's head.
func (g *GitHub) CreateBranch(ctx context.Context, projectKey, base, name string) error {
	owner, repo, err := splitKey(projectKey)
	if err != nil {
		return err
	}

	baseRef, _, err := g.client.Git.GetRef(ctx, owner, repo, "refs/heads/"+base)
	if err != nil {
		return fmt.Errorf("failed to resolve branch %s in %s: %w", base, projectKey, err)
	}

	_, _, err = g.client.Git.CreateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.String("refs/heads/" + name),
		Object: &github.GitObject{SHA: baseRef.Object.SHA},
	})
	if err != nil {
		return fmt.Errorf("failed to create branch %s in %s: %w", name, projectKey, err)
	}
	return nil
}

// CommitFile creates or updates one file on a branch and returns the new
// blob SHA. sha is the known blob SHA when updating; empty means create.
func (g *GitHub) CommitFile(ctx context.Context, projectKey, branch, path, message string, content []byte, sha string) (string, error) {
	owner, repo, err := splitKey(projectKey)
	if err != nil {
		return "", err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	}
	if sha != "" {
		opts.SHA = github.String(sha)
	}

	resp, _, err := g.client.Repositories.UpdateFile(ctx, owner, repo, path, opts)
	if err != nil {
		return "", fmt.Errorf("failed to commit %s to %s: %w", path, projectKey, err)
	}
	return resp.Content.GetSHA(), nil
}

// CreatePullRequest opens a PR from head into base and returns its URL.
func (g *GitHub) CreatePullRequest(ctx context.Context, projectKey, title, body, head, base string) (string, error) {
	owner, repo, err := splitKey(projectKey)
	if err != nil {
		return "", err
	}

	pr, _, err := g.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(title),
		Body:  github.String(body),
		Head:  github.String(head),
		Base:  github.String(base),
	})
	if err != nil {
		return "", fmt.Errorf("failed to open pull request in %s: %w", projectKey, err)
	}
	return pr.GetHTMLURL(), nil
}
