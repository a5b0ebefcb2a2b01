package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/wmbridge/pkg/domain"
)

// Overlay marks attributes to highlight on the graph, by dotted path.
type Overlay struct {
	Highlight []string
}

// GenerateMermaid produces a Mermaid flowchart of an input tree snapshot.
// Branches are rectangles, terminals are rounded boxes labelled with their
// value, and entity handles under objects/faces are subroutine boxes.
func GenerateMermaid(snap *domain.Snapshot, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")
	if snap == nil || snap.Root == nil {
		return sb.String()
	}

	rootID := nodeID("", snap.Root)
	sb.WriteString(fmt.Sprintf("    %s((\"%s\"))\n", rootID, snap.Root.Name))

	var walk func(parentPath, parentID string, n *domain.SnapshotNode, entityRoot bool)
	walk = func(parentPath, parentID string, n *domain.SnapshotNode, entityRoot bool) {
		for _, c := range n.Children {
			path := c.Name
			if parentPath != "" {
				path = parentPath + "." + c.Name
			}
			id := nodeID(path, c)

			switch {
			case c.Value != nil:
				sb.WriteString(fmt.Sprintf("    %s(\"%s: %s\")\n", id, c.Name, escape(c.Value.String())))
			case entityRoot:
				sb.WriteString(fmt.Sprintf("    %s[[\"%s\"]]\n", id, c.Name))
			default:
				sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", id, c.Name))
			}
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", parentID, id))

			isEntityRoot := parentPath == "" && (c.Name == domain.KindObject.Root() || c.Name == domain.KindFace.Root())
			walk(path, id, c, isEntityRoot)
		}
	}
	walk("", rootID, snap.Root, false)

	if overlay != nil && len(overlay.Highlight) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef highlight fill:#ffeb3b,stroke:#fbc02d,stroke-width:3px,color:#000;\n")
		seen := make(map[string]bool)
		for _, path := range overlay.Highlight {
			n := snap.Lookup(path)
			if n == nil {
				continue
			}
			id := nodeID(path, n)
			if !seen[id] {
				seen[id] = true
				sb.WriteString(fmt.Sprintf("    class %s highlight;\n", id))
			}
		}
	}

	return sb.String()
}

// nodeID prefers the working memory reference, which is unique per tree.
func nodeID(path string, n *domain.SnapshotNode) string {
	if n.Ref != "" {
		return sanitizeMermaidID(string(n.Ref))
	}
	if path == "" {
		return "root"
	}
	return "n_" + sanitizeMermaidID(path)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
