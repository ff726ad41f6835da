package taskwarrior

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner executes the task binary and returns its stdout.
type Runner func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

// ExecRunner runs the command on the local machine.
func ExecRunner(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("taskwarrior command failed: exit code %d, %s, stderr: %s",
				exitErr.ExitCode(), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("taskwarrior command failed: %w", err)
	}
	return output, nil
}

type Client struct {
	Binary  string
	DataDir string
	run     Runner
}

// NewClient returns a client for the task binary. An empty dataDir uses the user's default.
func NewClient(dataDir string, run Runner) *Client {
	if run == nil {
		run = ExecRunner
	}
	return &Client{Binary: "task", DataDir: dataDir, run: run}
}

func (c *Client) env() []string {
	if c.DataDir == "" {
		return nil
	}
	return []string{"TASKDATA=" + c.DataDir}
}

// Version returns the output of `task --version`.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, c.env(), c.Binary, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// GetTasks exports the tasks matching filter with hooks disabled.
func (c *Client) GetTasks(ctx context.Context, filter []string) ([]Task, error) {
	args := append([]string{"rc.hooks=0", "rc.confirmation=0"}, filter...)
	args = append(args, "export")

	output, err := c.run(ctx, c.env(), c.Binary, args...)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return nil, nil
	}
	// Older releases print one object per line instead of an array.
	if trimmed[0] != '[' {
		return c.ParseTasks(bytes.NewReader(trimmed))
	}

	var tasks []Task
	if err := json.Unmarshal(trimmed, &tasks); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return tasks, nil
}

// ParseTasks parses a stream of JSON task objects.
func (c *Client) ParseTasks(r io.Reader) ([]Task, error) {
	var tasks []Task
	decoder := json.NewDecoder(r)
	for {
		var task Task
		if err := decoder.Decode(&task); err != nil {
			if err == io.EOF {
				break
			}
			return nil, &DecodeError{Err: err}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// DecodeError marks export output that could not be parsed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "failed to decode task json: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }
