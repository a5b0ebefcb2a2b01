package tui

import (
	"fmt"
	"io"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/muesli/termenv"
)

// TreePrinter renders an input tree snapshot as an indented, colored tree.
type TreePrinter struct {
	out     *termenv.Output
	refs    bool
	profile *termenv.Profile
}

// TreeOption configures a TreePrinter.
type TreeOption func(*TreePrinter)

// WithProfile forces a color profile. termenv.Ascii disables styling.
func WithProfile(p termenv.Profile) TreeOption {
	return func(tp *TreePrinter) {
		tp.profile = &p
	}
}

// WithRefs prints each node's working memory reference.
func WithRefs(show bool) TreeOption {
	return func(tp *TreePrinter) {
		tp.refs = show
	}
}

// NewTreePrinter creates a printer writing to w, detecting its color support.
func NewTreePrinter(w io.Writer, opts ...TreeOption) *TreePrinter {
	tp := &TreePrinter{}
	for _, opt := range opts {
		opt(tp)
	}
	if tp.profile != nil {
		tp.out = termenv.NewOutput(w, termenv.WithProfile(*tp.profile))
	} else {
		tp.out = termenv.NewOutput(w)
	}
	return tp
}

// Print writes the snapshot.
func (tp *TreePrinter) Print(snap *domain.Snapshot) {
	if snap == nil || snap.Root == nil {
		fmt.Fprintln(tp.out, tp.out.String("(empty)").Faint())
		return
	}
	header := tp.out.String(snap.Root.Name).Bold().String()
	if tp.refs && snap.Root.Ref != "" {
		header += " " + tp.out.String("("+string(snap.Root.Ref)+")").Faint().String()
	}
	fmt.Fprintf(tp.out, "%s %s\n", header, tp.out.String(fmt.Sprintf("agent=%s cycle=%d", snap.Agent, snap.Cycle)).Faint())
	tp.children(snap.Root, "")
}

func (tp *TreePrinter) children(n *domain.SnapshotNode, prefix string) {
	for i, c := range n.Children {
		last := i == len(n.Children)-1
		branch, next := "├── ", "│   "
		if last {
			branch, next = "└── ", "    "
		}
		fmt.Fprintf(tp.out, "%s%s%s\n", prefix, branch, tp.label(c))
		tp.children(c, prefix+next)
	}
}

func (tp *TreePrinter) label(n *domain.SnapshotNode) string {
	if n.Value != nil {
		return fmt.Sprintf("%s: %s", n.Name, tp.value(*n.Value))
	}
	s := tp.out.String(n.Name).Bold().String()
	if tp.refs && n.Ref != "" {
		s += " " + tp.out.String("("+string(n.Ref)+")").Faint().String()
	}
	return s
}

func (tp *TreePrinter) value(v domain.Value) string {
	color := "2"
	switch v.Kind {
	case domain.KindInt:
		color = "6"
	case domain.KindFloat:
		color = "3"
	}
	return tp.out.String(v.String()).Foreground(tp.out.Color(color)).String()
}
