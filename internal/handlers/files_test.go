package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resurrectci/resurrectci/internal/models"
	"github.com/resurrectci/resurrectci/internal/repository"
)

type fakeProvider struct {
	branches  []string
	commits   []string
	prTitle   string
	treeCalls int
}

var _ repository.Provider = (*fakeProvider)(nil)

func (p *fakeProvider) GetTree(ctx context.Context, projectKey, ref string) ([]models.FileNode, error) {
	p.treeCalls++
	return []models.FileNode{
		{Path: "src", Type: models.FileNodeDir, SHA: "t1"},
		{Path: "src/index.ts", Type: models.FileNodeFile, SHA: "b1", Size: 42},
	}, nil
}

func (p *fakeProvider) GetFile(ctx context.Context, projectKey, path, ref string) (models.FileContent, error) {
	return models.FileContent{Content: "export {}", SHA: "b1"}, nil
}

func (p *fakeProvider) CreateBranch(ctx context.Context, projectKey, base, name string) error {
	p.branches = append(p.branches, name)
	return nil
}

func (p *fakeProvider) CommitFile(ctx context.Context, projectKey, branch, path, message string, content []byte, sha string) (string, error) {
	p.commits = append(p.commits, path)
	return "new-sha", nil
}

func (p *fakeProvider) CreatePullRequest(ctx context.Context, projectKey, title, body, head, base string) (string, error) {
	p.prTitle = title
	return "https://github.com/octo/demo/pull/9", nil
}

func newFilesApp(provider repository.Provider) *fiber.App {
	app := fiber.New()
	h := NewFilesHandler(provider)
	app.Get("/v1/repos/:owner/:repo/tree", h.GetTree)
	app.Get("/v1/repos/:owner/:repo/file", h.GetFile)
	app.Post("/v1/repos/:owner/:repo/pulls", h.CreatePullRequest)
	return app
}

func TestGetTreeRoute(t *testing.T) {
	app := newFilesApp(&fakeProvider{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/repos/octo/demo/tree", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var nodes []models.FileNode
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&nodes))
	assert.Len(t, nodes, 2)
}

func TestGetFileRequiresPath(t *testing.T) {
	app := newFilesApp(&fakeProvider{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/repos/octo/demo/file", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/v1/repos/octo/demo/file?path=src/index.ts", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCreatePullRequestFlow(t *testing.T) {
	provider := &fakeProvider{}
	app := newFilesApp(provider)

	body := `{
		"title": "Fix build",
		"branch": "fix-build",
		"files": [
			{"path": "src/index.ts", "content": "export {}", "sha": "b1"},
			{"path": "package.json", "content": "{}"}
		]
	}`
	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/repos/octo/demo/pulls", body))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var result map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "https://github.com/octo/demo/pull/9", result["url"])
	assert.Equal(t, "fix-build", result["branch"])

	assert.Equal(t, []string{"fix-build"}, provider.branches)
	assert.Equal(t, []string{"src/index.ts", "package.json"}, provider.commits)
	assert.Equal(t, "Fix build", provider.prTitle)
}

func TestTreeCacheInvalidatedByPullRequest(t *testing.T) {
	provider := &fakeProvider{}
	app := newFilesApp(provider)

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/repos/octo/demo/tree", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, 1, provider.treeCalls, "repeat reads are served from cache")

	body := `{"title":"Fix build","branch":"b","files":[{"path":"a","content":"x"}]}`
	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/repos/octo/demo/pulls", body))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/v1/repos/octo/demo/tree", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, provider.treeCalls, "landing a PR drops the project's cached reads")
}

func TestCreatePullRequestValidation(t *testing.T) {
	app := newFilesApp(&fakeProvider{})

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/repos/octo/demo/pulls", `{"title":"x","files":[]}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
