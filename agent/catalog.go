package agent

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/supportmesh/core"
)

//go:embed directives.yaml
var defaultCatalog []byte

// Definition describes one handler of the catalog.
type Definition struct {
	IssueType          core.IssueType `yaml:"issue_type"`
	Name               string         `yaml:"name"`
	DisplayName        string         `yaml:"display_name"`
	HandoffDescription string         `yaml:"handoff_description"`
	Capabilities       []string       `yaml:"capabilities"`
	Directive          string         `yaml:"directive"`
}

// Catalog holds the triage definition and one definition per specialist.
type Catalog struct {
	Triage      Definition   `yaml:"triage"`
	Specialists []Definition `yaml:"specialists"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a YAML catalog from r.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(b)
}

// ParseCatalog decodes and validates a YAML catalog. Every issue type must
// have exactly one specialist.
func ParseCatalog(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if strings.TrimSpace(c.Triage.Name) == "" {
		return nil, fmt.Errorf("catalog: triage name is required")
	}

	seen := make(map[core.IssueType]bool, len(c.Specialists))
	for _, d := range c.Specialists {
		if !d.IssueType.Valid() {
			return nil, fmt.Errorf("catalog: specialist %q has invalid issue type %q", d.Name, d.IssueType)
		}
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("catalog: specialist for %s has no name", d.IssueType)
		}
		if seen[d.IssueType] {
			return nil, fmt.Errorf("catalog: duplicate specialist for %s", d.IssueType)
		}
		seen[d.IssueType] = true
	}

	for _, t := range core.IssueTypes() {
		if !seen[t] {
			return nil, fmt.Errorf("catalog: missing specialist for %s", t)
		}
	}

	return &c, nil
}

// Specialist returns the definition for t.
func (c *Catalog) Specialist(t core.IssueType) (Definition, bool) {
	for _, d := range c.Specialists {
		if d.IssueType == t {
			return d, true
		}
	}
	return Definition{}, false
}
