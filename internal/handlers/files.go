package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/resurrectci/resurrectci/internal/cache"
	"github.com/resurrectci/resurrectci/internal/logger"
	"github.com/resurrectci/resurrectci/internal/repository"
)

// FilesHandler serves repository browsing and the pull-request flow the
// editor lands changes through. Reads are cached; landing a PR invalidates
// the project's cached reads.
type FilesHandler struct {
	provider repository.Provider
	cache    *cache.LRU
}

func NewFilesHandler(provider repository.Provider) *FilesHandler {
	return &FilesHandler{
		provider: provider,
		cache:    cache.NewLRU(cache.DefaultConfig()),
	}
}

// GetTree returns the recursive file listing at ?ref= (default main).
// GET /v1/repos/:owner/:repo/tree
func (h *FilesHandler) GetTree(c *fiber.Ctx) error {
	ref := c.Query("ref", "main")
	key := projectKey(c)

	cacheKey := fmt.Sprintf("%s:tree:%s", key, ref)
	if cached, ok := h.cache.Get(cacheKey); ok {
		return c.JSON(cached)
	}

	nodes, err := h.provider.GetTree(c.Context(), key, ref)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	h.cache.Set(cacheKey, nodes)
	return c.JSON(nodes)
}

// GetFile returns one file's decoded content.
// GET /v1/repos/:owner/:repo/file?path=...&ref=...
func (h *FilesHandler) GetFile(c *fiber.Ctx) error {
	path := c.Query("path")
	if path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path is required"})
	}
	key := projectKey(c)

	cacheKey := fmt.Sprintf("%s:file:%s:%s", key, c.Query("ref", "main"), path)
	if cached, ok := h.cache.Get(cacheKey); ok {
		return c.JSON(cached)
	}

	file, err := h.provider.GetFile(c.Context(), key, path, c.Query("ref", "main"))
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	h.cache.Set(cacheKey, file)
	return c.JSON(file)
}

type fileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
}

type createPullRequestBody struct {
	Title  string       `json:"title"`
	Body   string       `json:"body"`
	Base   string       `json:"base"`
	Branch string       `json:"branch"`
	Files  []fileChange `json:"files"`
}

// CreatePullRequest lands a set of edited files: branch off base, commit
// each file, open the PR.
// POST /v1/repos/:owner/:repo/pulls
func (h *FilesHandler) CreatePullRequest(c *fiber.Ctx) error {
	var req createPullRequestBody
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Title) == "" || len(req.Files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title and files are required"})
	}

	key := projectKey(c)
	base := req.Base
	if base == "" {
		base = "main"
	}
	branch := req.Branch
	if branch == "" {
		branch = fmt.Sprintf("resurrectci/%s", uuid.New().String()[:8])
	}

	if err := h.provider.CreateBranch(c.Context(), key, base, branch); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	for _, file := range req.Files {
		message := fmt.Sprintf("Update %s", file.Path)
		if _, err := h.provider.CommitFile(c.Context(), key, branch, file.Path, message,
			[]byte(file.Content), file.SHA); err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
	}

	url, err := h.provider.CreatePullRequest(c.Context(), key, req.Title, req.Body, branch, base)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	h.cache.Invalidate(key + ":")

	logger.Infof("Opened pull request %s for %s", url, key)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": url, "branch": branch})
}
