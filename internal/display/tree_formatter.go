// Package display renders a tracker's key hierarchy as an indented tree,
// the directory/file-nesting counterpart to internal/export's flat
// Mermaid/summary views, built over keys.KeyMap/grid.Grid with the same
// recursive branch-drawing walk as a call-graph tree printer.
package display

import (
	"fmt"
	"strings"

	"github.com/standardbeagle/deptrack/internal/grid"
	"github.com/standardbeagle/deptrack/internal/keys"
)

// Node is one key in the hierarchy, with its children nested by ParentOf
// and its own outgoing edge count for a quick at-a-glance density signal.
type Node struct {
	Key      string
	Path     string
	Children []*Node
	Outgoing int
}

// BuildTree reconstructs the directory/file hierarchy keyMap's keys imply,
// nesting file keys under the directory key ModuleKeyFor resolves and
// directory keys under the directory key ParentOf resolves. Root keys
// (tier 1, no parent) hang off a synthetic, path-less top node.
func BuildTree(keyMap keys.KeyMap, g grid.Grid) *Node {
	nodes := make(map[string]*Node, len(keyMap))
	for k, p := range keyMap {
		nodes[k] = &Node{Key: k, Path: p, Outgoing: outgoingCount(g, k)}
	}

	root := &Node{Key: "", Path: ""}
	for _, k := range keys.Sort(keyList(keyMap)) {
		n := nodes[k]
		parentKey := parentKeyOf(k)
		if parentKey == "" || nodes[parentKey] == nil {
			root.Children = append(root.Children, n)
		} else {
			parent := nodes[parentKey]
			parent.Children = append(parent.Children, n)
		}
	}
	return root
}

// parentKeyOf resolves a key's owning node in the tree: a file key's
// owning directory (ModuleKeyFor), or a directory key's parent directory
// (ParentOf) when ModuleKeyFor leaves it unchanged (already a directory
// key, no trailing digit run to strip).
func parentKeyOf(k string) string {
	if dir := keys.ModuleKeyFor(k); dir != k {
		return dir
	}
	return keys.ParentOf(k)
}

func outgoingCount(g grid.Grid, key string) int {
	row, ok := g[key]
	if !ok {
		return 0
	}
	count := 0
	for _, ch := range grid.Decompress(row) {
		if ch != rune(grid.EmptyChar) && ch != rune(grid.DiagonalChar) && ch != rune(grid.PlaceholderChar) {
			count++
		}
	}
	return count
}

func keyList(keyMap keys.KeyMap) []string {
	out := make([]string, 0, len(keyMap))
	for k := range keyMap {
		out = append(out, k)
	}
	return out
}

// Format renders tree as an indented ASCII tree, one line per node, each
// annotated with its key and outgoing edge count.
func Format(tree *Node) string {
	var b strings.Builder
	for i, child := range tree.Children {
		formatNode(&b, child, "", i == len(tree.Children)-1)
	}
	return b.String()
}

func formatNode(b *strings.Builder, node *Node, prefix string, isLast bool) {
	branch := "├── "
	childPrefix := prefix + "│   "
	if isLast {
		branch = "└── "
		childPrefix = prefix + "    "
	}

	name := node.Key
	if node.Path != "" {
		name = fmt.Sprintf("%s  %s", node.Key, node.Path)
	}
	fmt.Fprintf(b, "%s%s%s (%d outgoing)\n", prefix, branch, name, node.Outgoing)

	for i, child := range node.Children {
		formatNode(b, child, childPrefix, i == len(node.Children)-1)
	}
}
