package ui

import "strings"

// TreeItem is a line of a rendered hierarchy.
type TreeItem struct {
	Label    string
	Children []*TreeItem
}

// RenderTree draws root and its descendants with box-drawing connectors.
func RenderTree(root *TreeItem) string {
	if root == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(root.Label)
	sb.WriteString("\n")
	renderTreeChildren(&sb, root.Children, "")
	return sb.String()
}

func renderTreeChildren(sb *strings.Builder, items []*TreeItem, prefix string) {
	for i, item := range items {
		last := i == len(items)-1
		connector, indent := "├── ", "│   "
		if last {
			connector, indent = "└── ", "    "
		}
		sb.WriteString(prefix)
		sb.WriteString(Muted.Render(connector))
		sb.WriteString(item.Label)
		sb.WriteString("\n")
		renderTreeChildren(sb, item.Children, prefix+Muted.Render(indent))
	}
}
