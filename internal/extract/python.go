package extract

import (
	"github.com/codescope/codescope/internal/chunk"
)

type pyLang struct{}

func (pyLang) extract(tree *chunk.Tree, fileID string, b *builder) {
	for _, node := range tree.Root.Children {
		extractPyTopLevel(node, fileID, b)
	}
}

func extractPyTopLevel(node *chunk.Node, fileID string, b *builder) {
	switch node.Type {
	case "import_statement", "import_from_statement":
		extractPyImport(node, fileID, b)
	case "function_definition":
		extractPyFunction(node, fileID, b)
	case "class_definition":
		extractPyClass(node, fileID, b)
	case "decorated_definition":
		// Unwrap the decorator and extract the definition underneath.
		if inner := firstChild(node, "function_definition"); inner != nil {
			extractPyFunction(inner, fileID, b)
		} else if inner := firstChild(node, "class_definition"); inner != nil {
			extractPyClass(inner, fileID, b)
		}
	case "expression_statement":
		extractPyAssignment(node, fileID, b)
	}
}

func extractPyImport(node *chunk.Node, fileID string, b *builder) {
	mod := firstChild(node, "dotted_name", "aliased_import", "relative_import")
	if mod == nil {
		return
	}
	if mod.Type == "aliased_import" {
		if inner := firstChild(mod, "dotted_name"); inner != nil {
			mod = inner
		}
	}
	name := b.nodeText(mod)
	if name == "" {
		return
	}
	m := b.addEntity(KindModule, name, name, startLine(node), endLine(node))
	b.addRel(fileID, m.ID, RelImports, nil)
}

func extractPyFunction(node *chunk.Node, fileID string, b *builder) {
	name := firstChild(node, "identifier")
	if name == nil {
		return
	}
	fn := b.addEntity(KindFunction, b.nodeText(name), b.nodeText(name), startLine(node), endLine(node))
	b.addRel(fileID, fn.ID, RelContains, nil)
	collectCalls(node, fn.ID, b, pyCallTarget)
}

func extractPyClass(node *chunk.Node, fileID string, b *builder) {
	name := firstChild(node, "identifier")
	if name == nil {
		return
	}
	className := b.nodeText(name)
	cls := b.addEntity(KindClass, className, className, startLine(node), endLine(node))
	b.addRel(fileID, cls.ID, RelContains, nil)

	// Superclasses in the argument list become EXTENDS edges; targets not
	// declared in this file get placeholder type entities.
	if args := firstChild(node, "argument_list"); args != nil {
		for _, arg := range args.Children {
			if arg.Type == "identifier" || arg.Type == "attribute" {
				b.addRef(refType, cls.ID, b.nodeText(arg), RelExtends, startLine(node))
			}
		}
	}

	body := firstChild(node, "block")
	if body == nil {
		return
	}
	for _, member := range body.Children {
		def := member
		if def.Type == "decorated_definition" {
			if inner := firstChild(def, "function_definition"); inner != nil {
				def = inner
			}
		}
		if def.Type != "function_definition" {
			continue
		}
		mname := firstChild(def, "identifier")
		if mname == nil {
			continue
		}
		m := b.addEntity(KindMethod, b.nodeText(mname), className+"."+b.nodeText(mname), startLine(def), endLine(def))
		b.addRel(cls.ID, m.ID, RelContains, nil)
		collectCalls(def, m.ID, b, pyCallTarget)
	}
}

// extractPyAssignment records module-level assignments as variables.
func extractPyAssignment(node *chunk.Node, fileID string, b *builder) {
	assign := firstChild(node, "assignment")
	if assign == nil {
		return
	}
	target := firstChild(assign, "identifier")
	if target == nil {
		return
	}
	v := b.addEntity(KindVariable, b.nodeText(target), b.nodeText(target), startLine(node), endLine(node))
	b.addRel(fileID, v.ID, RelContains, nil)
}

// pyCallTarget extracts the callee name from a call node: the plain
// identifier, or the final attribute of a dotted call.
func pyCallTarget(call *chunk.Node, b *builder) string {
	if len(call.Children) == 0 {
		return ""
	}
	fn := call.Children[0]
	switch fn.Type {
	case "identifier":
		return b.nodeText(fn)
	case "attribute":
		var last *chunk.Node
		for _, child := range fn.Children {
			if child.Type == "identifier" {
				last = child
			}
		}
		if last != nil {
			return b.nodeText(last)
		}
	}
	return ""
}
