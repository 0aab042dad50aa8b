package chunk

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry maps language names to tree-sitter grammars.
// Languages without a grammar fall back to blank-line splitting.
type LanguageRegistry struct {
	mu        sync.RWMutex
	languages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with the built-in grammars.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{languages: make(map[string]*sitter.Language)}
	r.Register("go", golang.GetLanguage())
	r.Register("python", python.GetLanguage())
	r.Register("javascript", javascript.GetLanguage())
	r.Register("typescript", typescript.GetLanguage())
	r.Register("tsx", tsx.GetLanguage())
	return r
}

// Register adds or replaces a grammar for a language name.
func (r *LanguageRegistry) Register(name string, lang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languages[name] = lang
}

// Get returns the grammar for a language name.
func (r *LanguageRegistry) Get(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.languages[name]
	return lang, ok
}

// defaultRegistry is the shared registry used by NewSplitter.
var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the shared language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
