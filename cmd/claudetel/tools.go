/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"chainguard.dev/claudetel/runner"
	"github.com/anthropics/anthropic-sdk-go"
)

// builtinTools is the local tool registry offered to the model. The
// --tool flag narrows this set; an empty selection means everything.
func builtinTools() map[string]runner.Tool {
	return map[string]runner.Tool{
		"read_file": {
			Definition: anthropic.ToolParam{
				Name:        "read_file",
				Description: anthropic.String("Read the complete content of a file."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type: "object",
					Properties: map[string]any{
						"path": map[string]any{
							"type":        "string",
							"description": "The path to the file to read",
						},
					},
					Required: []string{"path"},
				},
			},
			Run: readFile,
		},
		"write_file": {
			Definition: anthropic.ToolParam{
				Name:        "write_file",
				Description: anthropic.String("Create or overwrite a file with the given content."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type: "object",
					Properties: map[string]any{
						"path": map[string]any{
							"type":        "string",
							"description": "The path to the file to write",
						},
						"content": map[string]any{
							"type":        "string",
							"description": "The complete content to write",
						},
					},
					Required: []string{"path", "content"},
				},
			},
			Run: writeFile,
		},
		"list_files": {
			Definition: anthropic.ToolParam{
				Name:        "list_files",
				Description: anthropic.String("List the entries of a directory."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type: "object",
					Properties: map[string]any{
						"path": map[string]any{
							"type":        "string",
							"description": "The directory to list (default: current directory)",
						},
					},
				},
			},
			Run: listFiles,
		},
		"run_command": {
			Definition: anthropic.ToolParam{
				Name:        "run_command",
				Description: anthropic.String("Run a shell command and return its combined output."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type: "object",
					Properties: map[string]any{
						"command": map[string]any{
							"type":        "string",
							"description": "The shell command to run",
						},
					},
					Required: []string{"command"},
				},
			},
			Run: runCommand,
		},
	}
}

// selectTools filters the builtin registry down to the requested names.
func selectTools(names []string) (map[string]runner.Tool, error) {
	all := builtinTools()
	if len(names) == 0 {
		return all, nil
	}
	selected := make(map[string]runner.Tool, len(names))
	for _, name := range names {
		tool, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q (available: %s)", name, strings.Join(toolNames(all), ", "))
		}
		selected[name] = tool
	}
	return selected, nil
}

func toolNames(tools map[string]runner.Tool) []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func stringArg(input map[string]any, key string) (string, error) {
	v, ok := input[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return v, nil
}

func readFile(_ context.Context, input map[string]any) (map[string]any, error) {
	path, err := stringArg(input, "path")
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": string(content)}, nil
}

func writeFile(_ context.Context, input map[string]any) (map[string]any, error) {
	path, err := stringArg(input, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(input, "content")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return map[string]any{"bytes_written": len(content)}, nil
}

func listFiles(_ context.Context, input map[string]any) (map[string]any, error) {
	path, _ := input["path"].(string)
	if path == "" {
		path = "."
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return map[string]any{"entries": names}, nil
}

func runCommand(ctx context.Context, input map[string]any) (map[string]any, error) {
	command, err := stringArg(input, "command")
	if err != nil {
		return nil, err
	}
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	result := map[string]any{"output": string(out)}
	if err != nil {
		result["error"] = err.Error()
	}
	return result, nil
}
