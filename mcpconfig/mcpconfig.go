/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package mcpconfig loads MCP server definitions from a .mcp.json file and
// translates them to the shape the agent runtime expects.
package mcpconfig

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
)

// DefaultFile is the config file name looked up in the working directory.
const DefaultFile = ".mcp.json"

// Server is one MCP server connection descriptor. The runtime keys on the
// "type" field; user-facing files historically spell it "transport", so
// Load renames it. All other fields pass through untouched.
type Server map[string]any

// Load reads MCP server configuration from path, defaulting to .mcp.json
// in the working directory when path is empty.
//
// A missing file, malformed JSON, or an empty server map all yield a nil
// map rather than an error: MCP is an optional collaborator and its config
// must never stop a session from starting.
func Load(ctx context.Context, path string) map[string]Server {
	log := clog.FromContext(ctx)

	if path == "" {
		path = filepath.Join(".", DefaultFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.With("path", path).Debug("No MCP config found")
		return nil
	}

	var file struct {
		MCPServers map[string]Server `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		log.With("path", path).With("error", err).Error("Invalid JSON in MCP config")
		return nil
	}

	if len(file.MCPServers) == 0 {
		log.With("path", path).Warn("MCP config file exists but has no servers defined")
		return nil
	}

	servers := make(map[string]Server, len(file.MCPServers))
	for name, cfg := range file.MCPServers {
		server := make(Server, len(cfg))
		for k, v := range cfg {
			server[k] = v
		}
		if transport, ok := server["transport"]; ok {
			server["type"] = transport
			delete(server, "transport")
		}
		servers[name] = server
	}

	log.With("path", path).Infof("Loaded %d MCP server(s)", len(servers))
	return servers
}

// ValidateServer checks that a server descriptor carries the fields its
// type requires: http servers need a url, stdio servers need a command.
func ValidateServer(ctx context.Context, server Server) bool {
	log := clog.FromContext(ctx)

	switch server["type"] {
	case "http":
		if url, _ := server["url"].(string); url == "" {
			log.Warn("HTTP MCP server missing required 'url' field")
			return false
		}
	case "stdio":
		if command, _ := server["command"].(string); command == "" {
			log.Warn("Stdio MCP server missing required 'command' field")
			return false
		}
	default:
		log.With("type", server["type"]).Warn("Unknown MCP server type")
		return false
	}

	return true
}
