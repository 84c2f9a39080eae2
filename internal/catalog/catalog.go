// Package catalog holds the fixed habitat templates and credit packages.
package catalog

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Style       string `json:"style"`
	Capacity    string `json:"capacity"`
}

// Package is a purchasable bundle of credits. Price is in cents.
type Package struct {
	Credits int64  `json:"credits"`
	Price   int64  `json:"price"`
	Name    string `json:"name"`
}

var templates = mustTemplates(
	Template{Name: "The Martian Dome", Description: "Classic geodesic dome with panoramic views", Style: "Futuristic", Capacity: "4-6 people"},
	Template{Name: "Underground Bunker", Description: "Radiation-shielded subterranean habitat", Style: "Survival", Capacity: "8-12 people"},
	Template{Name: "Modular Station", Description: "Expandable modular design for growing colonies", Style: "Modular", Capacity: "10-20 people"},
	Template{Name: "Lava Tube Home", Description: "Natural cave system converted to living space", Style: "Natural", Capacity: "6-10 people"},
)

var packages = map[string]Package{
	"starter":  {Credits: 50, Price: 299, Name: "Starter Pack"},
	"explorer": {Credits: 150, Price: 799, Name: "Explorer Pack"},
	"colonist": {Credits: 500, Price: 1999, Name: "Colonist Pack"},
	"pioneer":  {Credits: 1200, Price: 3999, Name: "Pioneer Pack"},
}

// TemplateID derives a stable 128-bit BLAKE2b id from the fields that
// identify a template. The write order is fixed.
func TemplateID(name, style, capacity string) (string, error) {
	h, err := blake2b.New(16, nil)
	if err != nil {
		return "", fmt.Errorf("create blake2b-128 hasher: %w", err)
	}
	for _, part := range []string{name, style, capacity} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func mustTemplates(list ...Template) []Template {
	for i := range list {
		id, err := TemplateID(list[i].Name, list[i].Style, list[i].Capacity)
		if err != nil {
			panic(err)
		}
		list[i].ID = id
	}
	return list
}

// Templates returns a copy of the catalog in display order.
func Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// Lookup finds a template by name. Unknown names fall back to the first
// template and report false.
func Lookup(name string) (Template, bool) {
	for _, t := range templates {
		if t.Name == name {
			return t, true
		}
	}
	return templates[0], false
}

// Packages returns a copy of the package table keyed by package id.
func Packages() map[string]Package {
	out := make(map[string]Package, len(packages))
	for id, p := range packages {
		out[id] = p
	}
	return out
}

func PackageByID(id string) (Package, bool) {
	p, ok := packages[id]
	return p, ok
}
