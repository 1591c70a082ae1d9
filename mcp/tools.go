// Package mcp exposes Sprout over the Model Context Protocol.
//
// NewServer builds a complete stdio MCP server on mcp-go. RegisterTools
// offers the same tools to a framework that brings its own registry.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperengineering/sprout"
)

// Registry is an interface for MCP tool registration.
type Registry interface {
	Register(tool Tool)
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
	Handler     Handler
}

// Schema defines the JSON schema for tool parameters.
type Schema map[string]ParameterDef

// ParameterDef defines a single parameter.
type ParameterDef struct {
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Required    bool           `json:"required,omitempty"`
	Items       map[string]any `json:"items,omitempty"`
}

// Handler is a function that handles tool invocations.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

var toolSchemas = map[string]Schema{
	"sprout_submit_results": {
		"learner_id": {Type: "string", Description: "Learner identifier", Required: true},
		"results": {
			Type:        "array",
			Description: "Graded answers as {item_id, quality}",
			Required:    true,
			Items: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"item_id": map[string]any{"type": "string"},
					"quality": map[string]any{"type": "integer"},
				},
			},
		},
	},
	"sprout_summary": {
		"learner_id": {Type: "string", Description: "Learner identifier", Required: true},
	},
	"sprout_plan": {
		"learner_id": {Type: "string", Description: "Learner identifier", Required: true},
		"age":        {Type: "integer", Description: "Learner age in years", Required: true},
		"name":       {Type: "string", Description: "Learner display name"},
	},
	"sprout_sync": {
		"learner_id": {Type: "string", Description: "Learner to pull (optional)"},
	},
	"sprout_stats": {},
}

// RegisterTools registers the Sprout tools with registry. Handlers share
// their implementation with the stdio server and return the formatted text;
// a tool-level failure is returned as an error.
func RegisterTools(registry Registry, client *sprout.Client) {
	s := &Server{client: client}
	for _, info := range toolInfos {
		registry.Register(Tool{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  toolSchemas[info.Name],
			Handler:     makeHandler(s, info.Name),
		})
	}
}

func makeHandler(s *Server, name string) Handler {
	return func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		args := map[string]any{}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &args); err != nil {
				return nil, fmt.Errorf("invalid parameters: %w", err)
			}
		}
		result, err := s.CallTool(ctx, name, args)
		if err != nil {
			return nil, err
		}
		if result.IsError {
			return nil, errors.New(result.Content)
		}
		return result.Content, nil
	}
}
