// Package catalog holds the read-only subject registry: subject codes
// mapped to display names and origin URLs. The registry is optional; an
// absent file simply yields an empty catalog.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Subject describes one course in the registry.
type Subject struct {
	Code    string   `json:"-"`
	Name    string   `json:"name"`
	Sources []string `json:"sources,omitempty"`
}

// Catalog is an immutable set of subjects keyed by canonical code.
type Catalog struct {
	subjects map[string]Subject
}

// Canonical normalises a subject code the way the registry stores them.
func Canonical(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Load reads the registry file. A missing file is not an error; it means
// no registry is configured and every subject code is acceptable.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &Catalog{subjects: map[string]Subject{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	catalog, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return catalog, nil
}

// Parse decodes a registry document: a JSON object mapping subject codes
// to their metadata.
func Parse(r io.Reader) (*Catalog, error) {
	var raw map[string]Subject
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	subjects := make(map[string]Subject, len(raw))
	for code, subject := range raw {
		canonical := Canonical(code)
		if canonical == "" {
			continue
		}
		subject.Code = canonical
		subjects[canonical] = subject
	}
	return &Catalog{subjects: subjects}, nil
}

// Lookup finds a subject by code, tolerating case and whitespace.
func (c *Catalog) Lookup(code string) (Subject, bool) {
	subject, ok := c.subjects[Canonical(code)]
	return subject, ok
}

// Has reports whether the code is registered.
func (c *Catalog) Has(code string) bool {
	_, ok := c.subjects[Canonical(code)]
	return ok
}

// Subjects returns every registered subject sorted by code.
func (c *Catalog) Subjects() []Subject {
	out := make([]Subject, 0, len(c.subjects))
	for _, subject := range c.subjects {
		out = append(out, subject)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Len is the number of registered subjects. Zero disables subject
// validation downstream.
func (c *Catalog) Len() int {
	return len(c.subjects)
}
