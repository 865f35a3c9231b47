package extract

import (
	"strings"

	"github.com/codescope/codescope/internal/chunk"
)

// jsLang handles javascript, jsx, typescript, and tsx. The grammars share
// the node types used here; typescript adds interfaces and implements
// clauses on top.
type jsLang struct{}

func (jsLang) extract(tree *chunk.Tree, fileID string, b *builder) {
	for _, node := range tree.Root.Children {
		extractJSTopLevel(node, fileID, b)
	}
}

func extractJSTopLevel(node *chunk.Node, fileID string, b *builder) {
	switch node.Type {
	case "import_statement":
		extractJSImport(node, fileID, b)
	case "function_declaration", "generator_function_declaration":
		extractJSFunction(node, fileID, b)
	case "class_declaration":
		extractJSClass(node, fileID, b)
	case "interface_declaration":
		extractJSInterface(node, fileID, b)
	case "lexical_declaration", "variable_declaration":
		extractJSVariables(node, fileID, b)
	case "export_statement":
		// Extract the exported declaration as if it were top-level.
		for _, child := range node.Children {
			extractJSTopLevel(child, fileID, b)
		}
	case "type_alias_declaration", "enum_declaration":
		if name := firstChild(node, "type_identifier", "identifier"); name != nil {
			t := b.addEntity(KindType, b.nodeText(name), b.nodeText(name), startLine(node), endLine(node))
			b.addRel(fileID, t.ID, RelContains, nil)
		}
	}
}

func extractJSImport(node *chunk.Node, fileID string, b *builder) {
	src := firstChild(node, "string")
	if src == nil {
		return
	}
	path := strings.Trim(b.nodeText(src), "\"'`")
	if path == "" {
		return
	}
	m := b.addEntity(KindModule, path, path, startLine(node), endLine(node))
	b.addRel(fileID, m.ID, RelImports, nil)
}

func extractJSFunction(node *chunk.Node, fileID string, b *builder) {
	name := firstChild(node, "identifier")
	if name == nil {
		return
	}
	fn := b.addEntity(KindFunction, b.nodeText(name), b.nodeText(name), startLine(node), endLine(node))
	b.addRel(fileID, fn.ID, RelContains, nil)
	collectCalls(node, fn.ID, b, jsCallTarget)
}

func extractJSClass(node *chunk.Node, fileID string, b *builder) {
	name := firstChild(node, "identifier", "type_identifier")
	if name == nil {
		return
	}
	className := b.nodeText(name)
	cls := b.addEntity(KindClass, className, className, startLine(node), endLine(node))
	b.addRel(fileID, cls.ID, RelContains, nil)

	if heritage := firstChild(node, "class_heritage"); heritage != nil {
		extractJSHeritage(heritage, cls.ID, b)
	}

	body := firstChild(node, "class_body")
	if body == nil {
		return
	}
	for _, member := range body.Children {
		switch member.Type {
		case "method_definition":
			mname := firstChild(member, "property_identifier")
			if mname == nil {
				continue
			}
			m := b.addEntity(KindMethod, b.nodeText(mname), className+"."+b.nodeText(mname), startLine(member), endLine(member))
			b.addRel(cls.ID, m.ID, RelContains, nil)
			collectCalls(member, m.ID, b, jsCallTarget)
		case "field_definition", "public_field_definition":
			fname := firstChild(member, "property_identifier")
			if fname == nil {
				continue
			}
			f := b.addEntity(KindField, b.nodeText(fname), className+"."+b.nodeText(fname), startLine(member), endLine(member))
			b.addRel(cls.ID, f.ID, RelContains, nil)
		}
	}
}

// extractJSHeritage walks extends/implements clauses. In the typescript
// grammar these are extends_clause and implements_clause children; in plain
// javascript the heritage node holds the superclass expression directly.
func extractJSHeritage(heritage *chunk.Node, classID string, b *builder) {
	relFor := func(clauseType string) string {
		if clauseType == "implements_clause" {
			return RelImplements
		}
		return RelExtends
	}
	handled := false
	for _, clause := range heritage.Children {
		if clause.Type != "extends_clause" && clause.Type != "implements_clause" {
			continue
		}
		handled = true
		for _, target := range clause.Children {
			if target.Type == "identifier" || target.Type == "type_identifier" {
				b.addRef(refType, classID, b.nodeText(target), relFor(clause.Type), startLine(clause))
			}
		}
	}
	if !handled {
		if target := findDescendant(heritage, "identifier", "type_identifier"); target != nil {
			b.addRef(refType, classID, b.nodeText(target), RelExtends, startLine(heritage))
		}
	}
}

func extractJSInterface(node *chunk.Node, fileID string, b *builder) {
	name := firstChild(node, "type_identifier", "identifier")
	if name == nil {
		return
	}
	t := b.addEntity(KindType, b.nodeText(name), b.nodeText(name), startLine(node), endLine(node))
	b.addRel(fileID, t.ID, RelContains, nil)

	if heritage := firstChild(node, "extends_type_clause", "extends_clause"); heritage != nil {
		for _, target := range heritage.Children {
			if target.Type == "type_identifier" || target.Type == "identifier" {
				b.addRef(refType, t.ID, b.nodeText(target), RelExtends, startLine(heritage))
			}
		}
	}
}

// extractJSVariables records const/let/var declarators. Arrow functions and
// function expressions assigned to a name are treated as functions.
func extractJSVariables(node *chunk.Node, fileID string, b *builder) {
	for _, decl := range node.Children {
		if decl.Type != "variable_declarator" {
			continue
		}
		name := firstChild(decl, "identifier")
		if name == nil {
			continue
		}
		kind := KindVariable
		if firstChild(decl, "arrow_function", "function_expression", "function") != nil {
			kind = KindFunction
		}
		e := b.addEntity(kind, b.nodeText(name), b.nodeText(name), startLine(decl), endLine(decl))
		b.addRel(fileID, e.ID, RelContains, nil)
		if kind == KindFunction {
			collectCalls(decl, e.ID, b, jsCallTarget)
		}
	}
}

// jsCallTarget extracts the callee name from a call_expression.
func jsCallTarget(call *chunk.Node, b *builder) string {
	if len(call.Children) == 0 {
		return ""
	}
	fn := call.Children[0]
	switch fn.Type {
	case "identifier":
		return b.nodeText(fn)
	case "member_expression":
		var last *chunk.Node
		for _, child := range fn.Children {
			if child.Type == "property_identifier" {
				last = child
			}
		}
		if last != nil {
			return b.nodeText(last)
		}
	}
	return ""
}
