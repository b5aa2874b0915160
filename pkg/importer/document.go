package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Document is one import file.
//
//	{"objects": [
//	  {"ref": "ada", "entity": "Author", "attributes": {"name": "Ada"}},
//	  {"entity": "Post", "attributes": {"title": "Hello"}, "links": {"author": ["ada"]}}
//	]}
type Document struct {
	Objects []Object `json:"objects"`
}

// Object describes one object to insert or, when Key is set, to update.
type Object struct {
	// Ref names the object so links elsewhere in the document can point at
	// it. Optional.
	Ref string `json:"ref,omitempty"`

	Entity string `json:"entity"`

	// Key selects an existing stored object to update instead of inserting.
	Key string `json:"key,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty"`

	// Links maps relationship names to targets: refs from this document or
	// stored identities written as "<entity>/<key>".
	Links map[string][]string `json:"links,omitempty"`
}

// ParseDocument decodes a document, keeping numbers exact.
func ParseDocument(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse import document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks that every object names an entity and that refs are
// unique within the document.
func (d *Document) Validate() error {
	refs := make(map[string]struct{}, len(d.Objects))
	for i, o := range d.Objects {
		if o.Entity == "" {
			return fmt.Errorf("object %d: entity is required", i)
		}
		if o.Ref == "" {
			continue
		}
		if _, dup := refs[o.Ref]; dup {
			return fmt.Errorf("object %d: ref %q used twice", i, o.Ref)
		}
		refs[o.Ref] = struct{}{}
	}
	return nil
}

// ReadDocument reads and parses a document file.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	return ParseDocument(data)
}
