package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// DeleteFile removes a file or, with recursive set, a directory tree.
type DeleteFile struct{}

// Name returns the tool's registry name.
func (DeleteFile) Name() string { return "delete_file" }

// Schema returns delete_file's JSON Schema.
func (DeleteFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"target_path": {"type": "string"},
			"recursive": {"type": "boolean"},
			"force": {"type": "boolean"}
		},
		"required": ["target_path"]
	}`)
}

type deleteFileArgs struct {
	TargetPath string `json:"target_path"`
	Recursive  bool   `json:"recursive"`
	Force      bool   `json:"force"`
}

// Invoke deletes the target path.
func (DeleteFile) Invoke(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args deleteFileArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, err
	}

	path, err := resolvePath(ctx, args.TargetPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) && args.Force {
			return json.Marshal(map[string]any{"target_path": args.TargetPath, "deleted": false, "already_absent": true})
		}
		return nil, err
	}

	if info.IsDir() {
		if !args.Recursive {
			return nil, fmt.Errorf("target %q is a directory; set recursive to delete it", args.TargetPath)
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, err
		}
	} else if err := os.Remove(path); err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{"target_path": args.TargetPath, "deleted": true})
}
