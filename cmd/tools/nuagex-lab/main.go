package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/nuxlab/internal/app"
	"github.com/michaelbrown/nuxlab/internal/config"
	"github.com/michaelbrown/nuxlab/internal/logging"
	"github.com/michaelbrown/nuxlab/internal/reconcile"
)

func main() {
	// stdout carries the protocol, so logs go to stderr.
	logger := logging.Setup(os.Getenv("NUX_DEBUG") != "", false, os.Stderr)

	cfg, err := config.Load(os.Getenv("NUX_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := server.ServeStdio(newServer(a)); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
	}
}

type labTools struct {
	app *app.App
}

func newServer(a *app.App) *server.MCPServer {
	t := &labTools{app: a}
	s := server.NewMCPServer("nuxlab-nuagex-lab", "0.1.0")

	s.AddTool(mcp.Tool{
		Name:        "lab_ensure",
		Description: "Make sure a NuageX lab sandbox is running (state=present) or deleted (state=absent). Returns whether anything changed and the lab's connection details.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Lab name",
				},
				"state": map[string]any{
					"type":        "string",
					"enum":        []string{"present", "absent"},
					"description": "Desired state (default: present)",
				},
				"template": map[string]any{
					"type":        "string",
					"description": "Template name or id (optional)",
				},
				"check": map[string]any{
					"type":        "boolean",
					"description": "Only report what would change",
				},
			},
			Required: []string{"name"},
		},
	}, t.handleEnsure)

	s.AddTool(mcp.Tool{
		Name:        "lab_get",
		Description: "Get the connection details of an existing NuageX lab without changing anything.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Lab name",
				},
				"template": map[string]any{
					"type":        "string",
					"description": "Only match labs built from this template (optional)",
				},
			},
			Required: []string{"name"},
		},
	}, t.handleGet)

	s.AddTool(mcp.Tool{
		Name:        "lab_templates",
		Description: "List the templates NuageX labs can be created from.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, t.handleTemplates)

	return s
}

func (t *labTools) handleEnsure(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errorResult("error: invalid arguments"), nil
	}

	name, ok := args["name"].(string)
	if !ok || name == "" {
		return errorResult("error: 'name' argument must be a non-empty string"), nil
	}
	stateArg, _ := args["state"].(string)
	state, err := reconcile.ParseState(stateArg)
	if err != nil {
		return errorResult("error: " + err.Error()), nil
	}
	template, _ := args["template"].(string)
	check, _ := args["check"].(bool)

	res, err := t.app.Ensure(ctx, reconcile.Params{
		Name:      name,
		Template:  template,
		State:     state,
		CheckMode: check,
	}, nil)
	if err != nil {
		return errorResult("error: " + err.Error()), nil
	}
	return jsonResult(res)
}

func (t *labTools) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errorResult("error: invalid arguments"), nil
	}

	name, _ := args["name"].(string)
	template, _ := args["template"].(string)

	md, err := t.app.Reconciler(nil).Lookup(ctx, name, template)
	if err != nil {
		return errorResult("error: " + err.Error()), nil
	}
	if md == nil {
		return textResult(fmt.Sprintf("no lab named %q", name)), nil
	}
	return jsonResult(md)
}

func (t *labTools) handleTemplates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templates, err := t.app.Reconciler(nil).Templates(ctx)
	if err != nil {
		return errorResult("error: " + err.Error()), nil
	}
	if len(templates) == 0 {
		return textResult("no templates available"), nil
	}
	return jsonResult(templates)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return textResult(string(data)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	r := textResult(text)
	r.IsError = true
	return r
}
