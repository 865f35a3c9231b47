package chunk

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Tree is a parsed syntax tree decoupled from the parser bindings.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is one syntax node. Lines are 0-indexed rows as reported by the
// grammar; callers convert to 1-indexed when building chunks.
type Node struct {
	Type      string
	StartByte uint32
	EndByte   uint32
	StartRow  uint32
	EndRow    uint32
	Children  []*Node
	HasError  bool
}

// Parser wraps tree-sitter parsing. The underlying sitter parsers are
// not safe for concurrent use, so each Parse call checks one out of a
// pool; Parse itself may be called from any number of goroutines.
type Parser struct {
	pool     sync.Pool
	registry *LanguageRegistry
}

// NewParser creates a parser using the shared language registry.
func NewParser() *Parser {
	return NewParserWithRegistry(DefaultRegistry())
}

// NewParserWithRegistry creates a parser with a custom registry.
func NewParserWithRegistry(registry *LanguageRegistry) *Parser {
	return &Parser{
		pool: sync.Pool{
			New: func() any { return sitter.NewParser() },
		},
		registry: registry,
	}
}

// Parse parses source code and returns the syntax tree. Safe for
// concurrent use.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}

	sp := p.pool.Get().(*sitter.Parser)
	defer p.pool.Put(sp)
	sp.SetLanguage(tsLang)

	tsTree, err := sp.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("failed to parse source: nil tree")
	}
	defer tsTree.Close()

	return &Tree{
		Root:     convertNode(tsTree.RootNode()),
		Source:   source,
		Language: language,
	}, nil
}

func convertNode(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}
	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartRow:  tsNode.StartPoint().Row,
		EndRow:    tsNode.EndPoint().Row,
		HasError:  tsNode.HasError(),
		Children:  make([]*Node, 0, int(tsNode.ChildCount())),
	}
	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		if child := tsNode.Child(int(i)); child != nil {
			node.Children = append(node.Children, convertNode(child))
		}
	}
	return node
}

// Content returns the source text covered by the node.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// Span returns the node's size in bytes.
func (n *Node) Span() int {
	return int(n.EndByte - n.StartByte)
}

// Walk visits the node and its descendants depth-first. The visitor returns
// false to skip a subtree.
func (n *Node) Walk(visit func(*Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(visit)
	}
}
