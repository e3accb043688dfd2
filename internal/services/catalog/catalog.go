// Package catalog holds the technical section catalog and seeds it into the
// store at startup.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
)

//go:embed sections.yaml
var defaultSections []byte

type sectionYAML struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	SectionType    string   `yaml:"section_type"`
	Order          int      `yaml:"order"`
	Obligatory     bool     `yaml:"obligatory"`
	AllowedFormats []string `yaml:"allowed_formats"`
}

// Default returns the embedded catalog.
func Default() []domain.TechnicalSection {
	out, err := Parse(defaultSections)
	if err != nil {
		panic(fmt.Sprintf("embedded sections invalid: %v", err))
	}
	return out
}

// Parse decodes a YAML list of sections. IDs must be unique and non-empty.
func Parse(raw []byte) ([]domain.TechnicalSection, error) {
	var items []sectionYAML
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse sections: %w", err)
	}
	seen := make(map[string]bool, len(items))
	out := make([]domain.TechnicalSection, 0, len(items))
	for i, it := range items {
		id := strings.TrimSpace(it.ID)
		if id == "" {
			return nil, fmt.Errorf("section %d: id is required", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("section %s: duplicate id", id)
		}
		seen[id] = true
		formats := make([]string, 0, len(it.AllowedFormats))
		for _, f := range it.AllowedFormats {
			formats = append(formats, strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), ".")))
		}
		out = append(out, domain.TechnicalSection{
			ID: id, Name: it.Name, SectionType: it.SectionType, Order: it.Order,
			Obligatory: it.Obligatory, AllowedFormats: formats,
		})
	}
	return out, nil
}

// Seed upserts every section, so edits to the catalog reach existing stores.
func Seed(ctx context.Context, repo ports.SectionRepository, sections []domain.TechnicalSection) error {
	for _, s := range sections {
		if err := repo.UpsertSection(ctx, s); err != nil {
			return fmt.Errorf("seed section %s: %w", s.ID, err)
		}
	}
	return nil
}
