// Package mcp provides the MCP (Model Context Protocol) server for Scout.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/scoutgraph/scout-go/internal/graph"
	"github.com/scoutgraph/scout-go/internal/storage"
)

// Server represents the MCP server.
type Server struct {
	backend storage.Backend
	server  *mcp.Server
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server over a query backend.
func NewServer(backend storage.Backend) *Server {
	s := &Server{
		backend: backend,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "scout-go",
		Version: "0.1.0",
	}, nil)

	return s
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "scout_stats",
			Description: "Get node and edge counts for the indexed code graph.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "scout_node",
			Description: "Look up a single graph node by its ID and show its attributes.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string", Description: "Node ID, e.g. a relative file path or external::<name>"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "scout_dependencies",
			Description: "List the files and external modules a node imports.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string", Description: "Node ID to list imports for"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "scout_dependents",
			Description: "List the files that import a node.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string", Description: "Node ID to list importers for"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "scout_affected",
			Description: "Blast radius analysis: find every node transitively importing the given node.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id":    {Type: "string", Description: "Node ID to analyze"},
					"depth": {Type: "integer", Description: "Maximum traversal depth"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "scout_children",
			Description: "List the nodes a container node holds: packages in a project, files in a package, functions and classes in a file.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string", Description: "Container node ID"},
				},
				Required: []string{"id"},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "scout://overview",
			Name:        "Graph Overview",
			Description: "High-level statistics about the indexed code graph",
			MimeType:    "text/plain",
		},
		{
			URI:         "scout://schema",
			Name:        "Graph Schema",
			Description: "Description of the Scout code graph schema",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "scout_stats":
		return handleStats(s.backend)
	case "scout_node":
		id, _ := args["id"].(string)
		return handleNode(ctx, s.backend, id)
	case "scout_dependencies":
		id, _ := args["id"].(string)
		return handleNeighbors(ctx, s.backend.Dependencies, id, "imports")
	case "scout_dependents":
		id, _ := args["id"].(string)
		return handleNeighbors(ctx, s.backend.Dependents, id, "imported by")
	case "scout_affected":
		id, _ := args["id"].(string)
		depth, _ := args["depth"].(float64)
		if depth == 0 {
			depth = 5
		}
		return handleAffected(ctx, s.backend, id, int(depth))
	case "scout_children":
		id, _ := args["id"].(string)
		return handleNeighbors(ctx, s.backend.Children, id, "contains")
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "scout://overview":
		return getOverview(s.backend), nil
	case "scout://schema":
		return getSchema(), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run starts the MCP server with stdio transport.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	encoder := json.NewEncoder(stdout)
	// Note: Do NOT use SetIndent - MCP protocol requires compact JSON (one line per message)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req map[string]any
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		resp := s.handleRequest(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]any{
				"name":    "scout-go",
				"version": "0.1.0",
			},
			"capabilities": map[string]any{
				"tools": map[string]any{
					"listChanged": false,
				},
				"resources": map[string]any{
					"listChanged": false,
				},
			},
		},
	}
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"tools": toolList,
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": result,
				},
			},
		},
	}
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"resources": resourceList,
		},
	}
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)

	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"contents": []map[string]any{
				{
					"uri":      uri,
					"mimeType": "text/plain",
					"text":     content,
				},
			},
		},
	}
}

// Tool Handlers

func handleStats(backend storage.Backend) (string, error) {
	var sb strings.Builder
	sb.WriteString("# Code Graph Stats\n\n")
	fmt.Fprintf(&sb, "- Nodes: %d\n", backend.NodeCount())
	fmt.Fprintf(&sb, "- Edges: %d\n", backend.EdgeCount())
	return sb.String(), nil
}

func handleNode(ctx context.Context, backend storage.Backend, id string) (string, error) {
	if id == "" {
		return "No node ID provided", nil
	}

	node, err := backend.GetNode(ctx, id)
	if err != nil {
		return "", err
	}
	if node == nil {
		return fmt.Sprintf("Node not found: %s", id), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", node.ID)
	fmt.Fprintf(&sb, "- Kind: %s\n", node.Kind)
	if node.Name != "" {
		fmt.Fprintf(&sb, "- Name: %s\n", node.Name)
	}
	if node.Kind == graph.KindFile {
		fmt.Fprintf(&sb, "- Size: %d bytes (~%d tokens)\n", node.Size, node.TokenEst)
	}
	if node.IsCodeElement() {
		fmt.Fprintf(&sb, "- Lines: %d-%d\n", node.StartLine, node.EndLine)
	}
	if node.Level != nil {
		fmt.Fprintf(&sb, "- Level: %d\n", *node.Level)
	}
	return sb.String(), nil
}

type neighborFunc func(ctx context.Context, id string) ([]*graph.Node, error)

func handleNeighbors(ctx context.Context, fn neighborFunc, id, verb string) (string, error) {
	if id == "" {
		return "No node ID provided", nil
	}

	nodes, err := fn(ctx, id)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return fmt.Sprintf("%s %s nothing", id, verb), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s %s %d node(s)\n\n", id, verb, len(nodes))
	for _, n := range nodes {
		label := n.ID
		if n.Name != "" && n.Name != n.ID {
			label = fmt.Sprintf("%s (%s)", n.ID, n.Name)
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", n.Kind, label)
	}
	return sb.String(), nil
}

// handleAffected walks incoming import edges breadth-first to bound
// the blast radius of a change to the given node.
func handleAffected(ctx context.Context, backend storage.Backend, id string, depth int) (string, error) {
	if id == "" {
		return "No node ID provided", nil
	}

	start, err := backend.GetNode(ctx, id)
	if err != nil {
		return "", err
	}
	if start == nil {
		return fmt.Sprintf("Node not found: %s", id), nil
	}

	visited := map[string]bool{id: true}
	frontier := []string{id}
	type hit struct {
		node  *graph.Node
		level int
	}
	var hits []hit

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var next []string
		for _, cur := range frontier {
			dependents, err := backend.Dependents(ctx, cur)
			if err != nil {
				return "", err
			}
			for _, dep := range dependents {
				if visited[dep.ID] {
					continue
				}
				visited[dep.ID] = true
				hits = append(hits, hit{node: dep, level: level})
				next = append(next, dep.ID)
			}
		}
		frontier = next
	}

	if len(hits) == 0 {
		return fmt.Sprintf("Nothing imports %s", id), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Affected by changes to %s (%d node(s), depth %d)\n\n", id, len(hits), depth)
	for _, h := range hits {
		fmt.Fprintf(&sb, "- [depth %d] %s\n", h.level, h.node.ID)
	}
	return sb.String(), nil
}

// Resource handlers

func getOverview(backend storage.Backend) string {
	var sb strings.Builder
	sb.WriteString("# Scout Code Graph Overview\n\n")
	fmt.Fprintf(&sb, "Total nodes: %d\n", backend.NodeCount())
	fmt.Fprintf(&sb, "Total edges: %d\n", backend.EdgeCount())
	return sb.String()
}

func getSchema() string {
	return `# Scout Graph Schema

## Node kinds
- project: repository root, level 0
- package: directory with code files, level 1
- file: source file, keyed by its relative path
- function / class: code elements, keyed as <file>::<name>
- external_module: unresolved import target, keyed as external::<name>

## Edge relationships
- CONTAINS: project -> package -> file -> function/class
- IMPORTS: file -> file, or file -> external_module
`
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}
