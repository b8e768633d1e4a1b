// Package tools implements the reference filesystem tools referenced by
// the seeded scenarios: read_file, write_file, copy_file, move_file,
// delete_file, and list_directory. Every tool resolves paths against a
// workspace root pulled from context, and refuses to touch anything
// outside it.
package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

type workspaceRootKey struct{}

// WithWorkspaceRoot attaches the sandbox root directory every tool call
// resolves relative paths against.
func WithWorkspaceRoot(ctx context.Context, root string) context.Context {
	return context.WithValue(ctx, workspaceRootKey{}, root)
}

// WorkspaceRoot returns the root attached by WithWorkspaceRoot, if any.
func WorkspaceRoot(ctx context.Context) (string, bool) {
	root, ok := ctx.Value(workspaceRootKey{}).(string)
	return root, ok && root != ""
}

// resolvePath joins root and the caller-supplied path, and rejects any
// result that escapes root — the one invariant every file tool below
// depends on for safety.
func resolvePath(ctx context.Context, path string) (string, error) {
	root, ok := WorkspaceRoot(ctx)
	if !ok {
		return "", fmt.Errorf("no workspace root bound to context")
	}
	if path == "" {
		return "", fmt.Errorf("path must not be empty")
	}

	joined := filepath.Join(root, path)
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace root", path)
	}
	return joined, nil
}
