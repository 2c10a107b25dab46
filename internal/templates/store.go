package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrTemplateNotFound = errors.New("template not found")

// Store is a file-backed template registry. Each template lives in its own
// document under dir; the file stem is the template name.
type Store struct {
	dir    string
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]Template
}

func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:       dir,
		logger:    logger,
		templates: make(map[string]Template),
	}
}

func (s *Store) Dir() string {
	return s.dir
}

// Load (re)reads every *.json, *.yaml and *.yml document in the store
// directory. Malformed documents are logged and skipped.
func (s *Store) Load() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create templates dir: %w", err)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read templates dir: %w", err)
	}

	loaded := make(map[string]Template, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		path := filepath.Join(s.dir, e.Name())

		tpl, err := readDocument(name, path, ext)
		if err != nil {
			s.logger.Warn("skipping template", "file", e.Name(), "error", err)
			continue
		}
		loaded[name] = tpl
	}

	s.mu.Lock()
	s.templates = loaded
	s.mu.Unlock()

	s.logger.Info("templates loaded", "count", len(loaded), "dir", s.dir)
	return nil
}

func readDocument(name, path, ext string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, err
	}
	var doc map[string]any
	if ext == ".json" {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return Template{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if doc == nil {
		return Template{}, fmt.Errorf("empty document")
	}
	return FromDocument(name, doc), nil
}

// Get returns a private copy of the named template.
func (s *Store) Get(name string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return tpl.Clone(), nil
}

// List returns copies of all templates sorted by name.
func (s *Store) List() []Template {
	s.mu.RLock()
	out := make([]Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Save upserts tpl and persists it as <name>.json, replacing any YAML
// document of the same name.
func (s *Store) Save(tpl Template) error {
	name := strings.TrimSpace(tpl.Name)
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := tpl.Validate(); err != nil {
		return err
	}
	tpl.Name = name

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create templates dir: %w", err)
	}

	b, err := json.MarshalIndent(tpl, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, name+".json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp template file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp template file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name+".json")); err != nil {
		return fmt.Errorf("rename template file: %w", err)
	}
	for _, ext := range []string{".yaml", ".yml"} {
		_ = os.Remove(filepath.Join(s.dir, name+ext))
	}

	s.templates[name] = tpl.Clone()
	s.logger.Info("template saved", "name", name)
	return nil
}

// ValidateName rejects names that are empty or could escape the store
// directory.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("template name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid template name %q", name)
	}
	return nil
}
