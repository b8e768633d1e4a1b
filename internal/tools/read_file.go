package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ReadFile reads a file's content, optionally restricted to a line range.
type ReadFile struct{}

// Name returns the tool's registry name.
func (ReadFile) Name() string { return "read_file" }

// Schema returns read_file's JSON Schema.
func (ReadFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string"},
			"encoding": {"type": "string"},
			"start_line": {"type": "integer"},
			"end_line": {"type": "integer"}
		},
		"required": ["file_path"]
	}`)
}

type readFileArgs struct {
	FilePath  string `json:"file_path"`
	Encoding  string `json:"encoding"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Invoke reads the file and returns its content (and line range, if
// restricted) as JSON output.
func (ReadFile) Invoke(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args readFileArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, err
	}

	path, err := resolvePath(ctx, args.FilePath)
	if err != nil {
		return nil, err
	}

	if args.StartLine > 0 || args.EndLine > 0 {
		content, lineCount, err := readLineRange(path, args.StartLine, args.EndLine)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{
			"content":    content,
			"file_path":  args.FilePath,
			"line_count": lineCount,
		})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"content":    string(data),
		"file_path":  args.FilePath,
		"size_bytes": len(data),
	})
}

func readLineRange(path string, start, end int) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	var out strings.Builder
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if start > 0 && lineNo < start {
			continue
		}
		if end > 0 && lineNo > end {
			break
		}
		out.WriteString(scanner.Text())
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return out.String(), lineNo, nil
}
