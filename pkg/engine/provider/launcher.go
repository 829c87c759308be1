package provider

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xkazm04/personas-sub002/pkg/engine/execerr"
)

// Stream is a live provider process: newline-delimited output plus a
// terminal result. Lines closes when the process stops producing
// output; Wait then reports the classified outcome.
type Stream interface {
	Lines() <-chan string
	Wait() error
	Kill()
}

// Launcher starts provider processes. The pipeline depends on this
// interface so tests can substitute scripted streams.
type Launcher interface {
	Launch(ctx context.Context, adapter Adapter, req SpawnRequest) (Stream, error)
}

// CLILauncher spawns the real external CLI process for an adapter.
type CLILauncher struct {
	Logger zerolog.Logger
}

// Launch builds the adapter's CLI invocation and starts the process.
// Spawn failures (typically a missing binary) come back classified as
// retryable so the failover manager can move to the next candidate.
func (l *CLILauncher) Launch(ctx context.Context, adapter Adapter, req SpawnRequest) (Stream, error) {
	args := adapter.BuildArgs(req)

	cmd := exec.CommandContext(ctx, args.Command, args.Args...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}

	env := os.Environ()
	for k, v := range args.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	if adapter.Delivery() == DeliverStdin {
		cmd.Stdin = strings.NewReader(req.Prompt)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		kind := execerr.ClassifyProviderFailure(err.Error(), nil)
		return nil, execerr.Newf(kind, "failed to spawn %s: %v", adapter.Name(), err)
	}

	l.Logger.Debug().
		Str("provider", string(adapter.Kind())).
		Str("command", args.Command).
		Int("pid", cmd.Process.Pid).
		Msg("Provider process spawned")

	s := &cliStream{
		adapter: adapter,
		cmd:     cmd,
		ctx:     ctx,
		stderr:  &stderr,
		lines:   make(chan string, 64),
	}

	go func() {
		defer close(s.lines)
		scanner := bufio.NewScanner(stdout)
		// stream-json lines can carry large tool payloads
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			s.lines <- scanner.Text()
		}
	}()

	return s, nil
}

type cliStream struct {
	adapter Adapter
	cmd     *exec.Cmd
	ctx     context.Context
	stderr  *bytes.Buffer
	lines   chan string
	killed  sync.Once
}

func (s *cliStream) Lines() <-chan string {
	return s.lines
}

// Wait blocks until the process exits and classifies the outcome. A
// context deadline is reported as a retryable timeout so it counts
// against the candidate rather than ending the run outright.
func (s *cliStream) Wait() error {
	err := s.cmd.Wait()

	if s.ctx.Err() == context.DeadlineExceeded {
		return execerr.Newf(execerr.KindRetryableProvider,
			"%s timed out", s.adapter.Name())
	}
	if s.ctx.Err() == context.Canceled {
		return execerr.New(execerr.KindCancelled, "execution cancelled")
	}
	if err == nil {
		return nil
	}

	exitCode := -1
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}

	detail := strings.TrimSpace(s.stderr.String())
	if detail == "" {
		detail = err.Error()
	}
	return s.adapter.InterpretFailure(exitCode, detail)
}

func (s *cliStream) Kill() {
	s.killed.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	})
}
