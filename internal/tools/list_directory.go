package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListDirectory lists the entries of a directory, optionally recursively.
type ListDirectory struct{}

// Name returns the tool's registry name.
func (ListDirectory) Name() string { return "list_directory" }

// Schema returns list_directory's JSON Schema.
func (ListDirectory) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"directory_path": {"type": "string"},
			"recursive": {"type": "boolean"},
			"include_hidden": {"type": "boolean"},
			"max_depth": {"type": "integer"},
			"sort_by": {"type": "string"},
			"exclude_patterns": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["directory_path"]
	}`)
}

type listDirectoryArgs struct {
	DirectoryPath   string   `json:"directory_path"`
	Recursive       bool     `json:"recursive"`
	IncludeHidden   bool     `json:"include_hidden"`
	MaxDepth        int      `json:"max_depth"`
	SortBy          string   `json:"sort_by"`
	ExcludePatterns []string `json:"exclude_patterns"`
}

type directoryEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// Invoke lists the directory, honoring recursion, hidden-file, depth,
// and exclusion options.
func (ListDirectory) Invoke(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args listDirectoryArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, err
	}

	root, err := resolvePath(ctx, args.DirectoryPath)
	if err != nil {
		return nil, err
	}

	var entries []directoryEntry
	err = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}

		if !args.IncludeHidden && strings.HasPrefix(filepath.Base(path), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if matchesAny(args.ExcludePatterns, rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !args.Recursive && filepath.Dir(rel) != "." {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if args.MaxDepth > 0 && strings.Count(rel, string(filepath.Separator))+1 > args.MaxDepth {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		entries = append(entries, directoryEntry{Path: rel, IsDir: info.IsDir(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortEntries(entries, args.SortBy)

	return json.Marshal(map[string]any{
		"directory_path": args.DirectoryPath,
		"entries":        entries,
		"result_count":   len(entries),
	})
}

func matchesAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, path); ok {
			return true
		}
		if ok, _ := filepath.Match(p, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

func sortEntries(entries []directoryEntry, sortBy string) {
	switch sortBy {
	case "size":
		sort.Slice(entries, func(i, j int) bool { return entries[i].Size < entries[j].Size })
	default:
		sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	}
}
