package executor

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/resurrectci/resurrectci/internal/models"
)

// SimulatedExecutor is the fallback of last resort: it pattern-matches
// well-known commands and returns canned, deterministic text. It never
// touches a real filesystem or process, and transcript entries produced in
// this mode are tagged so the UI can warn the user.
type SimulatedExecutor struct{}

// NewSimulatedExecutor constructs the simulated backend. It cannot fail.
func NewSimulatedExecutor() *SimulatedExecutor {
	return &SimulatedExecutor{}
}

func (e *SimulatedExecutor) Mode() models.ExecutionMode {
	return models.ModeSimulated
}

func (e *SimulatedExecutor) Execute(ctx context.Context, req Request, sink Sink) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	command := strings.TrimSpace(req.Command)
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return Result{Success: true}, nil
	}

	switch {
	case command == "pwd":
		sink.Output(req.WorkingDirectory)
		return Result{Success: true}, nil

	case fields[0] == "cd":
		if len(fields) == 1 {
			return Result{Success: true, WorkingDirectory: "/workspace"}, nil
		}
		target := fields[1]
		if !strings.HasPrefix(target, "/") {
			target = path.Join(req.WorkingDirectory, target)
		}
		return Result{Success: true, WorkingDirectory: path.Clean(target)}, nil

	case fields[0] == "ls":
		sink.Output("package.json\nsrc\npublic\nREADME.md\nnode_modules")
		return Result{Success: true}, nil

	case fields[0] == "echo":
		sink.Output(strings.TrimSpace(strings.TrimPrefix(command, "echo")))
		return Result{Success: true}, nil

	case command == "npm install" || command == "npm i" || command == "yarn" || command == "yarn install":
		sink.Output("added 214 packages in 3s\n\n42 packages are looking for funding")
		return Result{Success: true}, nil

	case isDevServerCommand(command):
		sink.Output("> dev\n> vite\n\n  Local:   http://localhost:3000/\n  ready in 412 ms")
		sink.PortOpened(3000)
		return Result{Success: true}, nil

	case command == "git status":
		sink.Output("On branch main\nYour branch is up to date with 'origin/main'.\n\nnothing to commit, working tree clean")
		return Result{Success: true}, nil

	case fields[0] == "node" && len(fields) == 2 && (fields[1] == "-v" || fields[1] == "--version"):
		sink.Output("v20.11.0")
		return Result{Success: true}, nil

	case fields[0] == "npm" && len(fields) == 2 && (fields[1] == "-v" || fields[1] == "--version"):
		sink.Output("10.2.4")
		return Result{Success: true}, nil

	default:
		sink.ErrorOutput(fmt.Sprintf("command not available in offline mode: %s", fields[0]))
		return Result{Success: false, ExitCode: 127}, nil
	}
}

func isDevServerCommand(command string) bool {
	switch command {
	case "npm run dev", "npm start", "npm run start", "yarn dev", "yarn start", "pnpm dev", "vite":
		return true
	}
	return false
}

func (e *SimulatedExecutor) Close() error {
	return nil
}
