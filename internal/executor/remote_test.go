package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutorService records the requests the remote variants send.
type fakeExecutorService struct {
	t        *testing.T
	requests []remoteRequest
	respond  func(req remoteRequest) remoteResponse
}

func (f *fakeExecutorService) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		f.requests = append(f.requests, req)

		resp := f.respond(req)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(f.t, json.NewEncoder(w).Encode(resp))
	}
}

func TestSessionExecutor(t *testing.T) {
	fake := &fakeExecutorService{
		t: t,
		respond: func(req remoteRequest) remoteResponse {
			switch req.Action {
			case "create_session":
				return remoteResponse{Success: true, SessionID: "sess-1", WorkingDir: "/workspace/demo"}
			case "execute":
				return remoteResponse{Success: true, Output: "hello\nworld", WorkingDir: "/workspace/demo/src"}
			default:
				return remoteResponse{Success: true}
			}
		},
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	exec, err := NewSessionExecutor(context.Background(), server.URL, "octo/demo", "/workspace/demo")
	require.NoError(t, err)

	sink := &collectSink{}
	result, err := exec.Execute(context.Background(), Request{Command: "ls src"}, sink)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "/workspace/demo/src", result.WorkingDirectory)
	assert.Equal(t, []string{"hello\nworld"}, sink.outputs)

	// The session id from create_session is reused on execute.
	require.Len(t, fake.requests, 2)
	assert.Equal(t, "create_session", fake.requests[0].Action)
	assert.Equal(t, "sess-1", fake.requests[1].SessionID)

	require.NoError(t, exec.Close())
	assert.Equal(t, "destroy_session", fake.requests[2].Action)
}

func TestSessionExecutorSetupRejected(t *testing.T) {
	fake := &fakeExecutorService{
		t: t,
		respond: func(req remoteRequest) remoteResponse {
			return remoteResponse{Success: false, Error: "sessions disabled"}
		},
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	_, err := NewSessionExecutor(context.Background(), server.URL, "octo/demo", "/workspace/demo")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestSessionExecutorUnreachable(t *testing.T) {
	// Closed server: connection refused after bounded retries.
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := NewSessionExecutor(context.Background(), server.URL, "octo/demo", "/workspace/demo")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestStatelessExecutorReestablishesCwd(t *testing.T) {
	fake := &fakeExecutorService{
		t: t,
		respond: func(req remoteRequest) remoteResponse {
			if req.Action == "ping" {
				return remoteResponse{Success: true}
			}
			return remoteResponse{Success: true, Output: "ok"}
		},
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	exec, err := NewStatelessExecutor(context.Background(), server.URL, "/workspace/demo")
	require.NoError(t, err)

	sink := &collectSink{}
	result, err := exec.Execute(context.Background(), Request{
		Command:          "ls",
		WorkingDirectory: "/workspace/demo/src",
	}, sink)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.WorkingDirectory, "stateless variant does not track cwd")

	require.Len(t, fake.requests, 2)
	executed := fake.requests[1]
	assert.Equal(t, "execute", executed.Action)
	assert.Contains(t, executed.Command, `cd "/workspace/demo/src" && ls`)
	assert.Equal(t, "/workspace/demo", executed.ProjectPath)
}

func TestStatelessExecutorCommandFailure(t *testing.T) {
	fake := &fakeExecutorService{
		t: t,
		respond: func(req remoteRequest) remoteResponse {
			if req.Action == "ping" {
				return remoteResponse{Success: true}
			}
			return remoteResponse{Success: false, ExitCode: 2, Output: "no such file"}
		},
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	exec, err := NewStatelessExecutor(context.Background(), server.URL, "/workspace/demo")
	require.NoError(t, err)

	sink := &collectSink{}
	result, err := exec.Execute(context.Background(), Request{Command: "cat nope"}, sink)
	require.NoError(t, err, "a failing command is a result, not a transport error")
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.ExitCode)
	assert.Equal(t, []string{"no such file"}, sink.errors)
}
