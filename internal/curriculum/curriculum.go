package curriculum

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog maps subject codes to subject names. Timetables often print a
// shortened code ("B11CI311", "CI311" for "15B11CI311"), so every code is
// also registered under its common suffixes.
type Catalog struct {
	names map[string]string
}

// aliasOffsets are the prefix lengths dropped to form short codes:
// 15B11CI311 -> B11CI311, 11CI311, CI311.
var aliasOffsets = []int{2, 3, 5}

// file is the on-disk layout: a mapping of full subject code to name.
type file struct {
	Courses map[string]string `yaml:"courses"`
}

// New builds a catalog from full codes. An alias claimed by codes with
// different names is ambiguous and is not registered.
func New(courses map[string]string) *Catalog {
	c := &Catalog{names: make(map[string]string, len(courses)*4)}
	ambiguous := make(map[string]bool)
	for code, name := range courses {
		for _, off := range aliasOffsets {
			if len(code) <= off {
				continue
			}
			alias := code[off:]
			if prev, ok := c.names[alias]; ok && prev != name {
				ambiguous[alias] = true
			}
			c.names[alias] = name
		}
	}
	for alias := range ambiguous {
		delete(c.names, alias)
	}
	// Full codes win over aliases.
	for code, name := range courses {
		c.names[code] = name
	}
	return c
}

// Load reads a YAML curriculum file. An empty path yields an empty catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return New(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("curriculum: read %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("curriculum: parse %s: %w", path, err)
	}
	return New(f.Courses), nil
}

// Lookup returns the subject name for code.
func (c *Catalog) Lookup(code string) (string, bool) {
	if c == nil {
		return "", false
	}
	name, ok := c.names[code]
	return name, ok
}

// Len reports the number of registered codes including aliases.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}
