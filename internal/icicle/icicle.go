// Package icicle prepares a merged call tree for the partition viewer.
//
// Partition layouts size a parent by summing its children, so a
// parent's exclusive time must live on a child of its own before the
// tree reaches the layout. Transform injects those exclusive self
// leaves, Output and Parse move the node set through its JSON
// interchange form and RenderHTML bakes it into the embedded viewer
// page.
package icicle

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/gsoxley/OpenMDAO/internal/callpath"
	"github.com/gsoxley/OpenMDAO/internal/errorutil"
	"github.com/gsoxley/OpenMDAO/internal/nodetree"
)

// DefaultTitle is displayed above the viewer when no title is given.
const DefaultTitle = "Profile of Method Calls by Instance"

//go:embed icicle.html
var viewerPage string

// Transform gives every node whose children account for part of its
// inclusive time a synthetic $parent leaf holding the remainder, then
// zeroes the node's own time so that summing a subtree reproduces the
// inclusive time exactly once. Nodes that already carry a $parent
// child were transformed when their trace was written and are left
// alone, which makes Transform idempotent.
func Transform(tree *nodetree.Tree) error {
	nodes := tree.Nodes()
	for _, node := range nodes {
		node.ChildTime = 0
	}

	transformed := make(map[string]struct{})
	for _, node := range nodes {
		parent, _ := callpath.Cut(node.Name)
		if node.SelfMarker {
			transformed[parent] = struct{}{}
			continue
		}
		if len(callpath.Split(node.Name)) < 2 {
			continue
		}
		parentNode, ok := tree.Get(parent)
		if !ok {
			return fmt.Errorf("icicle: %w: %q has no parent in the call tree", errorutil.ErrDataIntegrity, node.Name)
		}
		parentNode.ChildTime += node.Time
	}

	for _, node := range nodes {
		if node.SelfMarker || node.ChildTime <= 0 {
			continue
		}
		if _, ok := transformed[node.Name]; ok {
			continue
		}
		self := tree.Upsert(node.Name + callpath.Sep + callpath.Parent)
		self.Time = node.Time - node.ChildTime
		self.Count = 1
		self.SelfMarker = true
		node.Time = 0
	}
	return nil
}

// Output serializes the node set in insertion order. The result is the
// interchange form consumed by the viewer and by Parse; internal
// fields are not part of it.
func Output(tree *nodetree.Tree) ([]byte, error) {
	data, err := gojson.Marshal(tree.Nodes())
	if err != nil {
		return nil, fmt.Errorf("icicle: serializing the call graph: %w", err)
	}
	return data, nil
}

// Parse reads a node set back from its interchange form.
func Parse(data []byte) ([]*nodetree.Node, error) {
	var nodes []*nodetree.Node
	if err := gojson.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("icicle: reading the call graph: %w", err)
	}
	return nodes, nil
}

// RenderHTML writes the viewer page with the serialized call graph and
// the title substituted in. An empty title selects DefaultTitle.
func RenderHTML(w io.Writer, callGraph []byte, title string) error {
	if title == "" {
		title = DefaultTitle
	}
	page := strings.Replace(viewerPage, "$call_graph_data", string(callGraph), 1)
	page = strings.ReplaceAll(page, "$title", title)
	if _, err := io.WriteString(w, page); err != nil {
		return fmt.Errorf("icicle: writing the viewer page: %w", err)
	}
	return nil
}
