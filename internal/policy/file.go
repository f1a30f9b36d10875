package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDir parses every *.yaml / *.yml policy document in dir into a MemoryStore.
func LoadDir(dir string) (*MemoryStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read policy dir: %w", err)
	}

	s := NewMemoryStore()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := loadFile(s, path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func loadFile(s *MemoryStore, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse policy file %s: %w", filepath.Base(path), err)
	}
	p, err := doc.ToPolicy()
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	s.Put(p)
	return nil
}
