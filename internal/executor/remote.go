package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/resurrectci/resurrectci/internal/logger"
	"github.com/resurrectci/resurrectci/internal/models"
)

// remoteRequest is the wire format of the external command-execution service.
type remoteRequest struct {
	Action      string `json:"action"`
	SessionID   string `json:"session_id,omitempty"`
	Command     string `json:"command,omitempty"`
	ProjectPath string `json:"project_path,omitempty"`
}

type remoteResponse struct {
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	ExitCode   int    `json:"exit_code"`
	SessionID  string `json:"session_id,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
	Error      string `json:"error,omitempty"`
}

// remoteAPI is the shared HTTP plumbing for both remote backend variants.
type remoteAPI struct {
	baseURL string
	client  *retryablehttp.Client
}

func newRemoteAPI(baseURL string) *remoteAPI {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 120 * time.Second
	client.Logger = nil

	return &remoteAPI{baseURL: baseURL, client: client}
}

func (a *remoteAPI) post(ctx context.Context, payload remoteRequest) (*remoteResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode executor request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build executor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: executor returned %d", ErrUnreachable, resp.StatusCode)
	}

	var parsed remoteResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnreachable, err)
	}
	return &parsed, nil
}

// SessionExecutor talks to the remote service through a per-project session;
// the service keeps the working directory between calls. Output is not
// streamed, it arrives as one blob after completion.
type SessionExecutor struct {
	api       *remoteAPI
	sessionID string
}

// NewSessionExecutor creates a remote session for projectKey. A failure here
// means the variant is unavailable and the caller should fall through to the
// next one.
func NewSessionExecutor(ctx context.Context, baseURL, projectKey, projectPath string) (*SessionExecutor, error) {
	api := newRemoteAPI(baseURL)

	resp, err := api.post(ctx, remoteRequest{
		Action:      "create_session",
		ProjectPath: projectPath,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.SessionID == "" {
		return nil, fmt.Errorf("%w: session creation rejected: %s", ErrUnreachable, resp.Error)
	}

	logger.Infof("Created remote execution session %s for %s", resp.SessionID, projectKey)
	return &SessionExecutor{api: api, sessionID: resp.SessionID}, nil
}

func (e *SessionExecutor) Mode() models.ExecutionMode {
	return models.ModeSession
}

func (e *SessionExecutor) Execute(ctx context.Context, req Request, sink Sink) (Result, error) {
	resp, err := e.api.post(ctx, remoteRequest{
		Action:    "execute",
		SessionID: e.sessionID,
		Command:   req.Command,
	})
	if err != nil {
		return Result{}, err
	}

	if resp.Output != "" {
		if resp.Success {
			sink.Output(resp.Output)
		} else {
			sink.ErrorOutput(resp.Output)
		}
	}

	return Result{
		Success:          resp.Success,
		ExitCode:         resp.ExitCode,
		WorkingDirectory: resp.WorkingDir,
	}, nil
}

func (e *SessionExecutor) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Best effort; the remote service garbage-collects idle sessions anyway.
	if _, err := e.api.post(ctx, remoteRequest{Action: "destroy_session", SessionID: e.sessionID}); err != nil {
		logger.Debugf("Failed to destroy remote session %s: %v", e.sessionID, err)
	}
	return nil
}

// StatelessExecutor uses the same remote service without session affinity.
// The service forgets state between calls, so the working directory is
// re-established by prefixing every command with a cd.
type StatelessExecutor struct {
	api         *remoteAPI
	projectPath string
}

// NewStatelessExecutor probes the remote service and returns an executor
// bound to projectPath.
func NewStatelessExecutor(ctx context.Context, baseURL, projectPath string) (*StatelessExecutor, error) {
	api := newRemoteAPI(baseURL)

	resp, err := api.post(ctx, remoteRequest{Action: "ping"})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: ping rejected: %s", ErrUnreachable, resp.Error)
	}

	return &StatelessExecutor{api: api, projectPath: projectPath}, nil
}

func (e *StatelessExecutor) Mode() models.ExecutionMode {
	return models.ModeDirect
}

func (e *StatelessExecutor) Execute(ctx context.Context, req Request, sink Sink) (Result, error) {
	command := req.Command
	if req.WorkingDirectory != "" {
		command = fmt.Sprintf("cd %q && %s", req.WorkingDirectory, req.Command)
	}

	resp, err := e.api.post(ctx, remoteRequest{
		Action:      "execute",
		Command:     command,
		ProjectPath: e.projectPath,
	})
	if err != nil {
		return Result{}, err
	}

	if resp.Output != "" {
		if resp.Success {
			sink.Output(resp.Output)
		} else {
			sink.ErrorOutput(resp.Output)
		}
	}

	// The stateless variant does not track cwd; cd handling falls back to
	// the dispatcher's local resolution.
	return Result{Success: resp.Success, ExitCode: resp.ExitCode}, nil
}

func (e *StatelessExecutor) Close() error {
	return nil
}
