package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig describes which node types form declarations for a language.
type LanguageConfig struct {
	Name          string
	Extensions    []string
	FunctionTypes []string
	MethodTypes   []string
	ClassTypes    []string
	TypeDefTypes  []string
	ImportTypes   []string
	CommentTypes  []string
}

// LanguageRegistry manages supported languages and their grammars.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with the default languages.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}
	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()
	return r
}

// GetByName returns the language configuration by name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.configs[name]
	return config, ok
}

// GetByExtension returns the language configuration for a file extension.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage returns the grammar for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// Supports reports whether AST splitting is available for a language.
func (r *LanguageRegistry) Supports(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tsLanguages[name]
	return ok
}

// declarationType returns the chunk type for a declaration node type, or ""
// if the node is not a declaration in this language.
func (c *LanguageConfig) declarationType(nodeType string) Type {
	for _, t := range c.FunctionTypes {
		if t == nodeType {
			return TypeFunction
		}
	}
	for _, t := range c.MethodTypes {
		if t == nodeType {
			return TypeMethod
		}
	}
	for _, t := range c.ClassTypes {
		if t == nodeType {
			return TypeClass
		}
	}
	for _, t := range c.TypeDefTypes {
		if t == nodeType {
			return TypeStatement
		}
	}
	return ""
}

// isComment reports whether a node type is a comment in this language.
func (c *LanguageConfig) isComment(nodeType string) bool {
	for _, t := range c.CommentTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}

func (r *LanguageRegistry) registerLanguage(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang
	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

func (r *LanguageRegistry) registerGo() {
	config := &LanguageConfig{
		Name:          "go",
		Extensions:    []string{".go"},
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_declaration"},
		TypeDefTypes:  []string{"type_declaration", "const_declaration", "var_declaration"},
		ImportTypes:   []string{"import_declaration"},
		CommentTypes:  []string{"comment"},
	}
	r.registerLanguage(config, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	tsConfig := &LanguageConfig{
		Name:          "typescript",
		Extensions:    []string{".ts"},
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration", "interface_declaration"},
		TypeDefTypes:  []string{"type_alias_declaration", "enum_declaration", "lexical_declaration", "variable_declaration"},
		ImportTypes:   []string{"import_statement"},
		CommentTypes:  []string{"comment"},
	}
	r.registerLanguage(tsConfig, typescript.GetLanguage())

	tsxConfig := *tsConfig
	tsxConfig.Name = "tsx"
	tsxConfig.Extensions = []string{".tsx"}
	r.registerLanguage(&tsxConfig, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	jsConfig := &LanguageConfig{
		Name:          "javascript",
		Extensions:    []string{".js", ".mjs", ".cjs"},
		FunctionTypes: []string{"function_declaration", "generator_function_declaration"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
		TypeDefTypes:  []string{"lexical_declaration", "variable_declaration"},
		ImportTypes:   []string{"import_statement"},
		CommentTypes:  []string{"comment"},
	}
	r.registerLanguage(jsConfig, javascript.GetLanguage())

	jsxConfig := *jsConfig
	jsxConfig.Name = "jsx"
	jsxConfig.Extensions = []string{".jsx"}
	r.registerLanguage(&jsxConfig, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	config := &LanguageConfig{
		Name:          "python",
		Extensions:    []string{".py"},
		FunctionTypes: []string{"function_definition", "decorated_definition"},
		ClassTypes:    []string{"class_definition"},
		ImportTypes:   []string{"import_statement", "import_from_statement"},
		CommentTypes:  []string{"comment"},
	}
	r.registerLanguage(config, python.GetLanguage())
}

// defaultRegistry is shared by all splitters.
var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the shared language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
