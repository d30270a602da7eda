package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// execGit reads branch and working-tree status by shelling out to git in the
// session's working directory.
type execGit struct{}

func (execGit) Status(ctx context.Context, path string) (string, string, error) {
	branch, err := gitOutput(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", "", err
	}
	porcelain, err := gitOutput(ctx, path, "status", "--porcelain")
	if err != nil {
		return "", "", err
	}
	status := "clean"
	if porcelain != "" {
		status = fmt.Sprintf("%d changed", len(strings.Split(porcelain, "\n")))
	}
	return branch, status, nil
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

// logNotifier stands in for the backend workspace-sync call when the console
// runs without a backend agent process attached.
type logNotifier struct {
	logf func(format string, args ...any)
}

func (n logNotifier) DirectoryChanged(_ context.Context, sessionID string, path string) error {
	n.logf("workspace: session %s now at %s", sessionID, path)
	return nil
}
