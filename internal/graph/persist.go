package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrMalformedGraph is returned by Load when the document parses as
// JSON but lacks the required "nodes" or "links" arrays.
var ErrMalformedGraph = errors.New("malformed graph document")

// graphDoc is the persisted wire format: a node-link JSON document.
type graphDoc struct {
	Nodes []map[string]any `json:"nodes"`
	Links []map[string]any `json:"links"`
}

// Save writes the graph to path as a JSON document with "nodes" and
// "links" arrays. Node and edge attributes round-trip semantically
// (key order and whitespace are not preserved).
func (g *CodeGraph) Save(path string) error {
	nodes := g.Nodes()
	edges := g.Edges()
	doc := graphDoc{
		Nodes: make([]map[string]any, 0, len(nodes)),
		Links: make([]map[string]any, 0, len(edges)),
	}
	for _, n := range nodes {
		doc.Nodes = append(doc.Nodes, nodeToWire(n))
	}
	for _, e := range edges {
		doc.Links = append(doc.Links, edgeToWire(e))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing graph: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing graph file: %w", err)
	}
	return nil
}

// Load reads a node-link JSON document from path and replaces the
// graph's contents in place: references to the CodeGraph obtained
// before the call remain valid afterwards. Invalid JSON surfaces the
// syntax error; structurally incomplete documents (missing "nodes" or
// "links") fail with ErrMalformedGraph. The graph is left untouched on
// any failure.
func (g *CodeGraph) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading graph file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing graph file %s: %w", path, err)
	}

	rawNodes, ok := raw["nodes"]
	if !ok {
		return fmt.Errorf("%s: missing \"nodes\" array: %w", path, ErrMalformedGraph)
	}
	rawLinks, ok := raw["links"]
	if !ok {
		return fmt.Errorf("%s: missing \"links\" array: %w", path, ErrMalformedGraph)
	}

	var wireNodes []map[string]any
	if err := json.Unmarshal(rawNodes, &wireNodes); err != nil {
		return fmt.Errorf("%s: \"nodes\" is not an array of objects: %w", path, ErrMalformedGraph)
	}
	var wireLinks []map[string]any
	if err := json.Unmarshal(rawLinks, &wireLinks); err != nil {
		return fmt.Errorf("%s: \"links\" is not an array of objects: %w", path, ErrMalformedGraph)
	}

	nodes := make([]*Node, 0, len(wireNodes))
	for i, w := range wireNodes {
		n, err := nodeFromWire(w)
		if err != nil {
			return fmt.Errorf("%s: node %d: %w", path, i, err)
		}
		nodes = append(nodes, n)
	}
	edges := make([]*Edge, 0, len(wireLinks))
	for i, w := range wireLinks {
		e, err := edgeFromWire(w)
		if err != nil {
			return fmt.Errorf("%s: link %d: %w", path, i, err)
		}
		edges = append(edges, e)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
	for _, n := range nodes {
		g.nodes[n.ID] = n
	}
	for _, e := range edges {
		g.addEdgeLocked(e)
	}
	return nil
}

// MarshalJSON encodes the node as its persisted attribute map.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeToWire(n))
}

// UnmarshalJSON decodes a node from its persisted attribute map.
func (n *Node) UnmarshalJSON(data []byte) error {
	var w map[string]any
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := nodeFromWire(w)
	if err != nil {
		return err
	}
	*n = *decoded
	return nil
}

// nodeToWire flattens a node into its persisted attribute map. Typed
// fields win over same-named Extra entries.
func nodeToWire(n *Node) map[string]any {
	w := make(map[string]any, len(n.Extra)+6)
	for k, v := range n.Extra {
		w[k] = v
	}
	w["id"] = n.ID

	switch n.Kind {
	case KindFile:
		w["type"] = string(n.Kind)
		w["size"] = n.Size
		w["token_est"] = n.TokenEst
	case KindFunction, KindClass:
		w["type"] = string(n.Kind)
		w["name"] = n.Name
		w["start_line"] = n.StartLine
		w["end_line"] = n.EndLine
	case KindPackage, KindProject, KindExternalModule:
		w["type"] = string(n.Kind)
		w["name"] = n.Name
	case KindLazy:
		// Lazy nodes persist with no attributes beyond their ID.
	}
	if n.Level != nil {
		w["level"] = *n.Level
	}
	return w
}

func nodeFromWire(w map[string]any) (*Node, error) {
	id, ok := w["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("missing node id: %w", ErrMalformedGraph)
	}

	n := &Node{ID: id}
	consumed := map[string]bool{"id": true}

	if t, ok := w["type"].(string); ok {
		n.Kind = NodeKind(t)
		consumed["type"] = true
	}

	switch n.Kind {
	case KindFile:
		n.Size = wireInt64(w, "size", consumed)
		n.TokenEst = wireInt64(w, "token_est", consumed)
	case KindFunction, KindClass:
		n.Name = wireString(w, "name", consumed)
		n.StartLine = int(wireInt64(w, "start_line", consumed))
		n.EndLine = int(wireInt64(w, "end_line", consumed))
	case KindPackage, KindProject, KindExternalModule:
		n.Name = wireString(w, "name", consumed)
	}

	if _, ok := w["level"]; ok {
		n.Level = intPtr(int(wireInt64(w, "level", consumed)))
	}

	for k, v := range w {
		if consumed[k] {
			continue
		}
		if n.Extra == nil {
			n.Extra = make(map[string]any)
		}
		n.Extra[k] = v
	}
	return n, nil
}

func edgeToWire(e *Edge) map[string]any {
	w := make(map[string]any, len(e.Extra)+3)
	for k, v := range e.Extra {
		w[k] = v
	}
	w["source"] = e.Source
	w["target"] = e.Target
	w["relationship"] = string(e.Rel)
	return w
}

func edgeFromWire(w map[string]any) (*Edge, error) {
	source, ok := w["source"].(string)
	if !ok || source == "" {
		return nil, fmt.Errorf("missing link source: %w", ErrMalformedGraph)
	}
	target, ok := w["target"].(string)
	if !ok || target == "" {
		return nil, fmt.Errorf("missing link target: %w", ErrMalformedGraph)
	}
	rel, _ := w["relationship"].(string)

	e := &Edge{Source: source, Target: target, Rel: EdgeKind(rel)}
	for k, v := range w {
		switch k {
		case "source", "target", "relationship":
			continue
		}
		if e.Extra == nil {
			e.Extra = make(map[string]any)
		}
		e.Extra[k] = v
	}
	return e, nil
}

func wireString(w map[string]any, key string, consumed map[string]bool) string {
	if v, ok := w[key].(string); ok {
		consumed[key] = true
		return v
	}
	return ""
}

func wireInt64(w map[string]any, key string, consumed map[string]bool) int64 {
	switch v := w[key].(type) {
	case float64:
		consumed[key] = true
		return int64(v)
	case int64:
		consumed[key] = true
		return v
	case int:
		consumed[key] = true
		return int64(v)
	case json.Number:
		consumed[key] = true
		i, _ := v.Int64()
		return i
	}
	return 0
}
