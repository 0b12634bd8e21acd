// Package agentrunner builds the prompt a coding agent receives and
// spawns it as a subprocess. The subprocess is an opaque effect: it
// receives a prompt, mutates the Store itself, and exits. The Agent
// Runner never parses its stdout for state — only for display/logging.
package agentrunner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RunRequest describes one agent subprocess invocation.
type RunRequest struct {
	Binary     string // coding-agent executable, resolved via exec.LookPath if not absolute
	PromptFile string // path to the composed prompt written to disk
	MaxTurns   int
	Model      string
	ProjectDir string // cwd for the subprocess
}

// Result carries the subprocess's outcome back to the Autoplay
// Controller for retry accounting.
type Result struct {
	RunID    string // correlates this invocation across log lines
	ExitCode int
	Duration time.Duration
}

// gracePeriod is how long terminate waits for a clean exit after SIGINT
// before escalating to SIGKILL.
const gracePeriod = 3 * time.Second

// DefaultAgentBinary is the coding-agent CLI the orchestrator spawns
// when no override is configured.
const DefaultAgentBinary = "claude"

// Runner spawns coding-agent subprocesses and streams their output.
type Runner struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	Logs    *LogBuffer
}

// New creates an Agent Runner with a fresh output log buffer.
func New() *Runner {
	return &Runner{Logs: NewLogBuffer(2000)}
}

// Run spawns the agent binary with arguments
// {prompt, max_turns, model, output_format=text}, streams its output
// into Logs, and blocks until it exits or ctx is canceled. Orchestrator
// -level cancellation propagates a termination signal to the child and
// awaits reap before returning.
func (r *Runner) Run(ctx context.Context, req RunRequest) (Result, error) {
	start := time.Now()
	runID := uuid.New().String()

	binPath, err := resolveBinary(req.Binary)
	if err != nil {
		return Result{}, fmt.Errorf("resolve agent binary: %w", err)
	}

	args := []string{
		"--prompt", req.PromptFile,
		"--max-turns", fmt.Sprintf("%d", req.MaxTurns),
		"--model", req.Model,
		"--output-format", "text",
	}
	cmd := exec.Command(binPath, args...)
	cmd.Dir = req.ProjectDir
	cmd.Env = os.Environ()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("attach stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("attach stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start agent subprocess: %w", err)
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	log.Info().
		Str("run_id", runID).
		Str("binary", binPath).
		Str("model", req.Model).
		Int("max_turns", req.MaxTurns).
		Msg("🤖 agent subprocess started")

	var wg sync.WaitGroup
	wg.Add(2)
	go r.streamLines(stdout, "stdout", &wg)
	go r.streamLines(stderr, "stderr", &wg)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-ctx.Done():
		r.terminate(cmd)
		waitErr = <-waitCh
	}
	wg.Wait()

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	log.Info().
		Str("run_id", runID).
		Int("exit_code", exitCode).
		Dur("duration", time.Since(start)).
		Msg("🤖 agent subprocess exited")

	return Result{RunID: runID, ExitCode: exitCode, Duration: time.Since(start)}, nil
}

// streamLines copies lines from a pipe into the log buffer, using the
// orchestrator's own stdout as a pass-through so operators watching the
// CLI see agent output live.
func (r *Runner) streamLines(pipe io.Reader, stream string, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		r.Logs.Write(stream, line)
		fmt.Fprintln(os.Stdout, line)
	}
}

// terminate sends SIGINT and escalates to SIGKILL if the process
// hasn't exited within gracePeriod.
func (r *Runner) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	log.Warn().Msg("🛑 cancellation requested, signaling agent subprocess")
	_ = cmd.Process.Signal(syscall.SIGINT)

	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(gracePeriod):
		log.Warn().Msg("🔪 agent subprocess did not exit cleanly, force-killing")
		_ = cmd.Process.Kill()
	}
}

// resolveBinary finds the coding-agent executable on PATH unless an
// absolute/relative path was given directly.
func resolveBinary(name string) (string, error) {
	if filepath.IsAbs(name) || filepath.Dir(name) != "." {
		if _, err := os.Stat(name); err != nil {
			return "", err
		}
		return name, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found on PATH: %w", name, err)
	}
	return path, nil
}
