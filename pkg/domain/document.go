// Package domain defines the versioned document model, the storage contract
// implemented by every backend, and the store error taxonomy.
package domain

import "time"

// Document is one immutable version snapshot of a logical document.
//
// Versions of a given ID form a dense, gapless sequence starting at 1.
// CreatedAt is fixed at version 1 and copied unchanged into every later
// version; LastModified is refreshed on each write that produces a new
// version. Exactly one version per ID carries Latest=true once the document
// exists.
type Document struct {
	ID           string            `json:"id"`
	Version      int               `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	LastModified time.Time         `json:"last_modified"`
	Latest       bool              `json:"latest"`
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (d Document) Clone() Document {
	cp := d
	if d.Attributes != nil {
		cp.Attributes = make(map[string]string, len(d.Attributes))
		for k, v := range d.Attributes {
			cp.Attributes[k] = v
		}
	}
	return cp
}

// DocumentDraft carries the caller-supplied payload for Create.
type DocumentDraft struct {
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// DocumentPatch describes a partial update. Nil pointer fields leave the
// corresponding payload field untouched. Attributes are merged key by key
// into the existing attribute set, never replaced wholesale.
type DocumentPatch struct {
	Title      *string           `json:"title,omitempty"`
	Content    *string           `json:"content,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Apply merges the patch into the document's payload fields. Version
// metadata is untouched; advancing it is the backend's responsibility.
func (p DocumentPatch) Apply(doc *Document) {
	if p.Title != nil {
		doc.Title = *p.Title
	}
	if p.Content != nil {
		doc.Content = *p.Content
	}
	if len(p.Attributes) > 0 {
		if doc.Attributes == nil {
			doc.Attributes = make(map[string]string, len(p.Attributes))
		}
		for k, v := range p.Attributes {
			doc.Attributes[k] = v
		}
	}
}
