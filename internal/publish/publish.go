// Package publish commits and pushes consolidated files so the hosted dashboard redeploys.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/config"
	apierrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"go.uber.org/zap"
)

// Runner runs git in a directory.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner runs the git binary.
type ExecRunner struct {
	Bin string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, string, error) {
	bin := r.Bin
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Status of a publish attempt.
const (
	StatusPushed  = "pushed"
	StatusSkipped = "skipped"
)

// Result describes what Publish did.
type Result struct {
	Status  string   `json:"status"`
	Reason  string   `json:"reason,omitempty"`
	Branch  string   `json:"branch,omitempty"`
	Message string   `json:"message,omitempty"`
	Files   []string `json:"files,omitempty"`
}

// Publisher commits consolidated files and pushes them.
type Publisher struct {
	runner   Runner
	dir      string
	remote   string
	branches []string
	logger   *zap.Logger
}

// New creates a publisher.
func New(runner Runner, cfg config.PublishConfig, logger *zap.Logger) *Publisher {
	branches := cfg.Branches
	if len(branches) == 0 {
		branches = []string{"main", "master"}
	}
	remote := cfg.Remote
	if remote == "" {
		remote = "origin"
	}
	dir := cfg.RepoDir
	if dir == "" {
		dir = "."
	}
	return &Publisher{runner: runner, dir: dir, remote: remote, branches: branches, logger: logger}
}

// CommitMessage is the message of an automatic data commit.
func CommitMessage(eventID string) string {
	return fmt.Sprintf("Auto-update: Consolidated plans data (%s)", eventID)
}

// Publish adds the files that exist, commits them and pushes to the first
// branch that accepts the push. A missing git binary, a directory outside a
// repository and an empty commit are skips, not errors.
func (p *Publisher) Publish(ctx context.Context, eventID string, files []string) (*Result, error) {
	skip := func(reason string) (*Result, error) {
		p.logger.Info("publish skipped", zap.String("reason", reason))
		return &Result{Status: StatusSkipped, Reason: reason}, nil
	}

	if _, _, err := p.runner.Run(ctx, p.dir, "--version"); err != nil {
		return skip("git not available")
	}
	if _, _, err := p.runner.Run(ctx, p.dir, "rev-parse", "--git-dir"); err != nil {
		return skip("not a git repository")
	}

	var existing []string
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if abs, err := filepath.Abs(f); err == nil {
			f = abs
		}
		existing = append(existing, f)
	}
	if len(existing) == 0 {
		return skip("no consolidated files to add")
	}

	args := append([]string{"add", "--"}, existing...)
	if _, stderr, err := p.runner.Run(ctx, p.dir, args...); err != nil {
		return nil, apierrors.PublishFailed("add", commandError(err, stderr))
	}

	msg := CommitMessage(eventID)
	stdout, stderr, err := p.runner.Run(ctx, p.dir, "commit", "-m", msg)
	if err != nil {
		if strings.Contains(strings.ToLower(stdout+stderr), "nothing to commit") {
			return skip("nothing to commit")
		}
		return nil, apierrors.PublishFailed("commit", commandError(err, stderr))
	}

	var pushErr error
	for _, branch := range p.branches {
		_, stderr, err := p.runner.Run(ctx, p.dir, "push", p.remote, branch)
		if err == nil {
			p.logger.Info("consolidated data pushed",
				zap.String("remote", p.remote),
				zap.String("branch", branch),
				zap.Strings("files", existing))
			return &Result{Status: StatusPushed, Branch: branch, Message: msg, Files: existing}, nil
		}
		pushErr = commandError(err, stderr)
		p.logger.Warn("push failed",
			zap.String("remote", p.remote),
			zap.String("branch", branch),
			zap.Error(pushErr))
	}
	return nil, apierrors.PublishFailed("push", pushErr).
		WithDetail("remote", p.remote).
		WithDetail("branches", p.branches)
}

func commandError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, stderr)
}

// ErrNoGit is returned by LookGit when git is not on PATH.
var ErrNoGit = errors.New("git not found in PATH")

// LookGit returns an ExecRunner for the git on PATH.
func LookGit() (ExecRunner, error) {
	path, err := exec.LookPath("git")
	if err != nil {
		return ExecRunner{}, ErrNoGit
	}
	return ExecRunner{Bin: path}, nil
}
