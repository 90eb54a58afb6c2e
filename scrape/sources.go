package scrape

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sources.yaml
var sourcesYAML []byte

// Source is a named market data page.
type Source struct {
	Name     string `yaml:"name" json:"name"`
	URL      string `yaml:"url" json:"url"`
	Category string `yaml:"-" json:"category"`
}

type sourceGroup struct {
	Category string   `yaml:"category"`
	Sources  []Source `yaml:"sources"`
}

// Catalog lists the built-in sources in file order.
func Catalog() ([]Source, error) {
	return parseCatalog(sourcesYAML)
}

func parseCatalog(data []byte) ([]Source, error) {
	var groups []sourceGroup
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse source catalog: %w", err)
	}
	var out []Source
	for _, g := range groups {
		for _, s := range g.Sources {
			s.Category = g.Category
			out = append(out, s)
		}
	}
	return out, nil
}

// ResolveTarget returns arg itself when it looks like a URL, else the URL of
// the catalog entry with that name.
func ResolveTarget(arg string) (string, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return arg, nil
	}
	sources, err := Catalog()
	if err != nil {
		return "", err
	}
	for _, s := range sources {
		if s.Name == arg {
			return s.URL, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", arg)
}
