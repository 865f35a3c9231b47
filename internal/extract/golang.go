package extract

import (
	"strings"

	"github.com/codescope/codescope/internal/chunk"
)

type goLang struct{}

func (goLang) extract(tree *chunk.Tree, fileID string, b *builder) {
	for _, node := range tree.Root.Children {
		switch node.Type {
		case "import_declaration":
			extractGoImports(node, fileID, b)
		case "function_declaration":
			extractGoFunction(node, fileID, b)
		case "method_declaration":
			extractGoMethod(node, fileID, b)
		case "type_declaration":
			extractGoTypes(node, fileID, b)
		case "var_declaration", "const_declaration":
			extractGoVars(node, fileID, b)
		}
	}
}

func extractGoImports(node *chunk.Node, fileID string, b *builder) {
	node.Walk(func(n *chunk.Node) bool {
		if n.Type != "import_spec" {
			return true
		}
		lit := firstChild(n, "interpreted_string_literal", "raw_string_literal")
		if lit == nil {
			return false
		}
		path := strings.Trim(b.nodeText(lit), "\"`")
		if path == "" {
			return false
		}
		mod := b.addEntity(KindModule, path, path, startLine(n), endLine(n))
		b.addRel(fileID, mod.ID, RelImports, nil)
		return false
	})
}

func extractGoFunction(node *chunk.Node, fileID string, b *builder) {
	name := firstChild(node, "identifier")
	if name == nil {
		return
	}
	fn := b.addEntity(KindFunction, b.nodeText(name), b.nodeText(name), startLine(node), endLine(node))
	b.addRel(fileID, fn.ID, RelContains, nil)
	collectCalls(node, fn.ID, b, goCallTarget)
}

func extractGoMethod(node *chunk.Node, fileID string, b *builder) {
	name := firstChild(node, "field_identifier")
	if name == nil {
		return
	}
	recv := ""
	if params := firstChild(node, "parameter_list"); params != nil {
		if t := findDescendant(params, "type_identifier"); t != nil {
			recv = b.nodeText(t)
		}
	}
	qualified := b.nodeText(name)
	if recv != "" {
		qualified = recv + "." + qualified
	}
	m := b.addEntity(KindMethod, b.nodeText(name), qualified, startLine(node), endLine(node))

	// The receiver type owns the method; a placeholder type entity is
	// materialized when the type is declared elsewhere.
	if recv != "" {
		b.addReverseRef(refType, m.ID, recv, RelContains, startLine(node))
	} else {
		b.addRel(fileID, m.ID, RelContains, nil)
	}
	collectCalls(node, m.ID, b, goCallTarget)
}

func extractGoTypes(node *chunk.Node, fileID string, b *builder) {
	node.Walk(func(n *chunk.Node) bool {
		if n.Type != "type_spec" {
			return true
		}
		name := firstChild(n, "type_identifier")
		if name == nil {
			return false
		}
		t := b.addEntity(KindType, b.nodeText(name), b.nodeText(name), startLine(node), endLine(node))
		b.addRel(fileID, t.ID, RelContains, nil)
		return false
	})
}

func extractGoVars(node *chunk.Node, fileID string, b *builder) {
	node.Walk(func(n *chunk.Node) bool {
		if n.Type != "var_spec" && n.Type != "const_spec" {
			return true
		}
		for _, child := range n.Children {
			if child.Type != "identifier" {
				continue
			}
			v := b.addEntity(KindVariable, b.nodeText(child), b.nodeText(child), startLine(n), endLine(n))
			b.addRel(fileID, v.ID, RelContains, nil)
		}
		return false
	})
}

// goCallTarget extracts the callee name from a call_expression: the plain
// identifier, or the final selector field of a qualified call.
func goCallTarget(call *chunk.Node, b *builder) string {
	if len(call.Children) == 0 {
		return ""
	}
	fn := call.Children[0]
	switch fn.Type {
	case "identifier":
		return b.nodeText(fn)
	case "selector_expression":
		if field := firstChild(fn, "field_identifier"); field != nil {
			return b.nodeText(field)
		}
	}
	return ""
}

// collectCalls walks a declaration body and records call references from the
// enclosing entity. Calls that never resolve to a symbol in this file are
// dropped at resolution time.
func collectCalls(node *chunk.Node, fromID string, b *builder, target func(*chunk.Node, *builder) string) {
	node.Walk(func(n *chunk.Node) bool {
		if n.Type != "call_expression" && n.Type != "call" {
			return true
		}
		if name := target(n, b); name != "" {
			b.addRef(refCall, fromID, name, RelCalls, startLine(n))
		}
		return true
	})
}
