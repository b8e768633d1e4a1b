package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteFile writes content to a file, refusing to overwrite an existing
// file unless explicitly told to.
type WriteFile struct{}

// Name returns the tool's registry name.
func (WriteFile) Name() string { return "write_file" }

// Schema returns write_file's JSON Schema.
func (WriteFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string"},
			"content": {"type": "string"},
			"overwrite": {"type": "boolean"},
			"create_backup": {"type": "boolean"},
			"encoding": {"type": "string"}
		},
		"required": ["file_path", "content"]
	}`)
}

type writeFileArgs struct {
	FilePath     string `json:"file_path"`
	Content      string `json:"content"`
	Overwrite    bool   `json:"overwrite"`
	CreateBackup bool   `json:"create_backup"`
}

// Invoke writes args.Content to args.FilePath.
func (WriteFile) Invoke(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args writeFileArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, err
	}

	path, err := resolvePath(ctx, args.FilePath)
	if err != nil {
		return nil, err
	}

	existed := false
	if _, statErr := os.Stat(path); statErr == nil {
		existed = true
		if !args.Overwrite {
			return nil, fmt.Errorf("file %q already exists and overwrite is false", args.FilePath)
		}
		if args.CreateBackup {
			if err := backupFile(path); err != nil {
				return nil, err
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{
		"file_path":    args.FilePath,
		"bytes_written": len(args.Content),
		"overwritten":  existed,
	})
}

func backupFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	backupPath := fmt.Sprintf("%s.bak.%d", path, time.Now().UnixNano())
	return os.WriteFile(backupPath, data, 0o644)
}
