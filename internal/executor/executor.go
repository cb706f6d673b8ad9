// Package executor runs the external toolchain build for a prepared
// workspace. The process boundary is the trust boundary: everything the
// toolchain needs is on disk before Execute is called, and nothing but the
// exit code, output and artifact paths comes back.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/models"
)

// Executor produces build artifacts from a fully prepared workspace.
type Executor interface {
	Execute(ctx context.Context, workspacePath string, kind models.BuildKind) (*models.ExecResult, error)
}

// Subprocess shells out to the configured toolchain command inside the
// workspace. Arguments are passed as a structured argv, never through a
// shell.
type Subprocess struct {
	cfg     config.ExecutorConfig
	timeout time.Duration
	log     *slog.Logger
}

func NewSubprocess(cfg config.ExecutorConfig, log *slog.Logger) *Subprocess {
	timeout, _ := time.ParseDuration(cfg.StageTimeout)
	return &Subprocess{cfg: cfg, timeout: timeout, log: log.With(slog.String("component", "executor"))}
}

func (s *Subprocess) Execute(ctx context.Context, workspacePath string, kind models.BuildKind) (*models.ExecResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	argv := append([]string{}, s.cfg.Args...)
	argv = append(argv, taskFor(kind))

	cmd := exec.CommandContext(ctx, s.cfg.Command, argv...) // #nosec G204 - command comes from service config
	cmd.Dir = workspacePath
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	s.log.Info("toolchain build started",
		slog.String("command", s.cfg.Command),
		slog.String("task", taskFor(kind)),
		slog.String("workspace", workspacePath))

	err := cmd.Run()
	elapsed := time.Since(start)

	res := &models.ExecResult{RawOutput: out.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("%w: toolchain build timed out after %s", models.ErrExecutor, elapsed.Round(time.Second))
		}
		return res, ctx.Err()
	case err != nil:
		s.log.Warn("toolchain build failed",
			slog.Int("exit_code", res.ExitCode),
			slog.Duration("elapsed", elapsed))
		return res, fmt.Errorf("%w: toolchain exited with code %d: %s", models.ErrExecutor, res.ExitCode, tailOf(res.RawOutput, 400))
	}

	artifacts, aerr := discoverArtifacts(workspacePath)
	if aerr != nil {
		return res, aerr
	}
	if len(artifacts) == 0 {
		return res, fmt.Errorf("%w: build succeeded but produced no artifacts", models.ErrExecutor)
	}
	res.ArtifactPaths = artifacts

	s.log.Info("toolchain build finished",
		slog.Int("artifacts", len(artifacts)),
		slog.Duration("elapsed", elapsed))
	return res, nil
}

func taskFor(kind models.BuildKind) string {
	if kind == models.BuildRelease {
		return "assembleRelease"
	}
	return "assembleDebug"
}

// discoverArtifacts globs the conventional toolchain output directories for
// installable packages.
func discoverArtifacts(workspacePath string) ([]string, error) {
	var found []string
	patterns := []string{
		filepath.Join(workspacePath, "app", "build", "outputs", "apk", "*", "*.apk"),
		filepath.Join(workspacePath, "app", "build", "outputs", "bundle", "*", "*.aab"),
	}
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("%w: artifact glob: %v", models.ErrExecutor, err)
		}
		found = append(found, matches...)
	}
	sort.Strings(found)
	return found, nil
}

func tailOf(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
