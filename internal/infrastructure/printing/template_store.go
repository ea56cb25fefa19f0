package printing

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

// DefaultTemplate is used when a render request names no template
const DefaultTemplate = "default"

// TemplateStore holds the invoice HTML templates by name. Templates from an
// external directory override embedded ones with the same file name and
// may add new ones.
type TemplateStore struct {
	externalDir string
	mu          sync.RWMutex
	templates   map[string]string
}

// TemplateStoreConfig configures the template store
type TemplateStoreConfig struct {
	// ExternalDir is scanned for *.html files; empty or missing means
	// embedded templates only.
	ExternalDir string
}

// NewTemplateStore loads every template
func NewTemplateStore(config *TemplateStoreConfig) (*TemplateStore, error) {
	s := &TemplateStore{}
	if config != nil {
		s.externalDir = config.ExternalDir
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rereads embedded and external templates
func (s *TemplateStore) Reload() error {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return err
	}
	templates, err := readTemplates(sub)
	if err != nil {
		return fmt.Errorf("load embedded templates: %w", err)
	}

	if s.externalDir != "" {
		if info, err := os.Stat(s.externalDir); err == nil && info.IsDir() {
			external, err := readTemplates(os.DirFS(s.externalDir))
			if err != nil {
				return fmt.Errorf("load templates from %s: %w", s.externalDir, err)
			}
			for name, content := range external {
				templates[name] = content
			}
		}
	}

	s.mu.Lock()
	s.templates = templates
	s.mu.Unlock()
	return nil
}

func readTemplates(fsys fs.FS) (map[string]string, error) {
	matches, err := fs.Glob(fsys, "*.html")
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(matches))
	for _, m := range matches {
		content, err := fs.ReadFile(fsys, m)
		if err != nil {
			return nil, err
		}
		out[strings.TrimSuffix(path.Base(m), ".html")] = string(content)
	}
	return out, nil
}

// Get returns the template content by name
func (s *TemplateStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.templates[name]
	return content, ok
}

// Names lists template names in sorted order
func (s *TemplateStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
