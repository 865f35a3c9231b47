package scanner

import (
	"path/filepath"
	"strings"
)

// languageMap maps file extensions to language names.
var languageMap = map[string]string{
	".go": "go",

	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",

	".py":  "python",
	".pyi": "python",

	".java":  "java",
	".kt":    "kotlin",
	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",

	".md":       "markdown",
	".markdown": "markdown",

	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".sql":  "sql",
}

// DetectLanguage returns the language for a file path, or "" when unknown.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	return languageMap[ext]
}

// SupportedExtensions returns the extensions the scanner recognizes.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(languageMap))
	for ext := range languageMap {
		exts = append(exts, ext)
	}
	return exts
}
