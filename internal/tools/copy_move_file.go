package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// CopyFile copies a file from source_path to destination_path.
type CopyFile struct{}

// Name returns the tool's registry name.
func (CopyFile) Name() string { return "copy_file" }

// Schema returns copy_file's JSON Schema.
func (CopyFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"source_path": {"type": "string"},
			"destination_path": {"type": "string"},
			"overwrite": {"type": "boolean"},
			"create_destination_directory": {"type": "boolean"},
			"preserve_timestamps": {"type": "boolean"}
		},
		"required": ["source_path", "destination_path"]
	}`)
}

type copyMoveArgs struct {
	SourcePath                string `json:"source_path"`
	DestinationPath           string `json:"destination_path"`
	Overwrite                 bool   `json:"overwrite"`
	CreateDestinationDirectory bool  `json:"create_destination_directory"`
	PreserveTimestamps        bool   `json:"preserve_timestamps"`
}

// Invoke copies the source file to the destination.
func (CopyFile) Invoke(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args copyMoveArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, err
	}

	src, dst, err := resolveSrcDst(ctx, args.SourcePath, args.DestinationPath, args.Overwrite, args.CreateDestinationDirectory)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}

	if err := copyFileBytes(src, dst, info.Mode()); err != nil {
		return nil, err
	}

	if args.PreserveTimestamps {
		if err := os.Chtimes(dst, time.Now(), info.ModTime()); err != nil {
			return nil, err
		}
	}

	return json.Marshal(map[string]any{
		"source_path":      args.SourcePath,
		"destination_path": args.DestinationPath,
		"bytes_copied":     info.Size(),
	})
}

// MoveFile moves a file from source_path to destination_path.
type MoveFile struct{}

// Name returns the tool's registry name.
func (MoveFile) Name() string { return "move_file" }

// Schema returns move_file's JSON Schema.
func (MoveFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"source_path": {"type": "string"},
			"destination_path": {"type": "string"},
			"overwrite": {"type": "boolean"},
			"create_destination_directory": {"type": "boolean"}
		},
		"required": ["source_path", "destination_path"]
	}`)
}

// Invoke moves the source file to the destination, falling back to a
// copy+delete when the rename crosses filesystem boundaries.
func (MoveFile) Invoke(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args copyMoveArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, err
	}

	src, dst, err := resolveSrcDst(ctx, args.SourcePath, args.DestinationPath, args.Overwrite, args.CreateDestinationDirectory)
	if err != nil {
		return nil, err
	}

	if err := os.Rename(src, dst); err != nil {
		info, statErr := os.Stat(src)
		if statErr != nil {
			return nil, err
		}
		if copyErr := copyFileBytes(src, dst, info.Mode()); copyErr != nil {
			return nil, copyErr
		}
		if rmErr := os.Remove(src); rmErr != nil {
			return nil, rmErr
		}
	}

	return json.Marshal(map[string]any{
		"source_path":      args.SourcePath,
		"destination_path": args.DestinationPath,
	})
}

func resolveSrcDst(ctx context.Context, sourcePath, destPath string, overwrite, createDestDir bool) (string, string, error) {
	src, err := resolvePath(ctx, sourcePath)
	if err != nil {
		return "", "", err
	}
	dst, err := resolvePath(ctx, destPath)
	if err != nil {
		return "", "", err
	}

	if _, statErr := os.Stat(dst); statErr == nil && !overwrite {
		return "", "", fmt.Errorf("destination %q already exists and overwrite is false", destPath)
	}

	if createDestDir {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return "", "", err
		}
	} else if _, err := os.Stat(filepath.Dir(dst)); err != nil {
		return "", "", fmt.Errorf("destination directory does not exist: %w", err)
	}

	return src, dst, nil
}

func copyFileBytes(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
