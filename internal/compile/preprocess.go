package compile

import (
	"github.com/deagahelio/vm/internal/ast"
	"github.com/deagahelio/vm/internal/types"
)

// preprocess applies the source-level macros of §4.3 ("Preprocessing
// macros") to a parsed root list, before either compiler pass walks it:
//
//   - (define name expr): registers a substitution, applied to every bare
//     Word node named `name` elsewhere in the tree. The defining form
//     itself is dropped from the output.
//   - (zero T|N): expands to a list of N (or sizeof(T)) integer zero nodes.
//   - (str "text"): expands to (addr (data uint8 (bytes...))).
//
// Definitions are collected in one pass over the top-level forms, then
// substituted and macro-expanded in a single recursive rewrite, so a define
// also applies to forms that precede it. (The assembler's `.define` pragma,
// by contrast, applies only to the lines after it.)
func preprocess(root *ast.Node) *ast.Node {
	defs := map[string]*ast.Node{}
	kept := make([]*ast.Node, 0, len(root.Children))

	for _, n := range root.Children {
		if n.Kind == ast.List && n.Head() == "define" && n.Len() == 3 {
			name := n.At(1)
			if name.Kind == ast.Word {
				defs[name.WordVal] = n.At(2)
				continue
			}
		}
		kept = append(kept, n)
	}

	out := make([]*ast.Node, len(kept))
	for i, n := range kept {
		out[i] = rewrite(n, defs)
	}
	return ast.NewList(out, root.Pos)
}

func rewrite(n *ast.Node, defs map[string]*ast.Node) *ast.Node {
	switch n.Kind {
	case ast.Word:
		if repl, ok := defs[n.WordVal]; ok {
			return rewrite(clone(repl), defs)
		}
		return n

	case ast.Int:
		return n

	case ast.List:
		switch n.Head() {
		case "zero":
			return rewrite(expandZero(n), defs)
		case "str":
			return rewrite(expandStr(n), defs)
		}
		children := make([]*ast.Node, len(n.Children))
		for i, c := range n.Children {
			children[i] = rewrite(c, defs)
		}
		return ast.NewList(children, n.Pos)
	}
	return n
}

// expandZero lowers `(zero T)` or `(zero N)` to a list of zero-valued int
// nodes: N copies when the argument is an integer literal, sizeof(T)
// copies when it names a declared type.
func expandZero(n *ast.Node) *ast.Node {
	if n.Len() != 2 {
		return n
	}
	arg := n.At(1)
	count := 0
	switch {
	case arg.Kind == ast.Int:
		count = int(arg.IntVal)
	case arg.Kind == ast.Word && types.Known(arg.WordVal):
		count = types.Size(types.Name(arg.WordVal))
	default:
		return n
	}
	children := make([]*ast.Node, count)
	for i := range children {
		children[i] = ast.NewInt(0, n.Pos)
	}
	return ast.NewList(children, n.Pos)
}

// expandStr lowers `(str "text")` to `(addr (data uint8 (bytes...)))`,
// reusing the already-null-terminated byte list the parser produced for
// the string literal.
func expandStr(n *ast.Node) *ast.Node {
	if n.Len() != 2 || n.At(1).Kind != ast.List {
		return n
	}
	bytes := n.At(1)
	data := ast.NewList([]*ast.Node{
		ast.NewWord("data", n.Pos),
		ast.NewWord("uint8", n.Pos),
		bytes,
	}, n.Pos)
	return ast.NewList([]*ast.Node{
		ast.NewWord("addr", n.Pos),
		data,
	}, n.Pos)
}

func clone(n *ast.Node) *ast.Node {
	if n.Kind != ast.List {
		cp := *n
		return &cp
	}
	children := make([]*ast.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = clone(c)
	}
	return ast.NewList(children, n.Pos)
}
