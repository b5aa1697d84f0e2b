// Package content models the structured block-content tree of a page.
// The editor stores documents as an ordered tree of typed nodes
// (paragraphs, headings, lists, text leaves with marks). This package
// only cares about serialization, structural equality and a handful of
// derived views; rendering belongs to the frontend.
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Node is one node in the document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is a text formatting mark (bold, link, ...).
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Doc is the top-level ordered list of block nodes.
type Doc []Node

// Decode parses raw JSON into a Doc. A null or empty payload decodes to
// an empty Doc rather than an error.
func Decode(raw []byte) (Doc, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return Doc{}, nil
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return doc, nil
}

// Encode serializes a Doc to its canonical JSON form. Map keys are
// emitted in sorted order, so two structurally identical documents
// always encode to the same bytes.
func (d Doc) Encode() ([]byte, error) {
	if d == nil {
		d = Doc{}
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	return data, nil
}

// Equal reports whether two documents are structurally identical.
// Comparison goes through the canonical encoding, so a document that
// took a detour through JSON (attrs numbers widened to float64, nil vs
// empty slices) still compares equal to its original.
func Equal(a, b Doc) bool {
	ab, err := a.Encode()
	if err != nil {
		return false
	}
	bb, err := b.Encode()
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Empty returns the blank document the editor opens with: a single
// paragraph holding an empty text run.
func Empty() Doc {
	return Doc{{Type: "paragraph", Content: []Node{{Type: "text"}}}}
}

// IsBlank reports whether the document carries no substance: no nodes
// at all, or a single paragraph whose text is all whitespace. Anything
// else - a second block, an image, a heading, non-whitespace text -
// counts as content.
func (d Doc) IsBlank() bool {
	if len(d) == 0 {
		return true
	}
	if len(d) > 1 {
		return false
	}
	node := d[0]
	if node.Type != "paragraph" {
		return false
	}
	return blankTextOnly(node.Content)
}

func blankTextOnly(nodes []Node) bool {
	for _, n := range nodes {
		if n.Type != "text" {
			return false
		}
		if strings.TrimSpace(n.Text) != "" {
			return false
		}
	}
	return true
}

// PlainText flattens the tree into the concatenated text of its leaves,
// with block nodes separated by newlines. Used for search indexing.
func (d Doc) PlainText() string {
	var b strings.Builder
	for _, node := range d {
		writeText(&b, node)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func writeText(b *strings.Builder, node Node) {
	if node.Type == "text" {
		b.WriteString(node.Text)
		return
	}
	for i, child := range node.Content {
		if i > 0 && isBlock(child.Type) {
			b.WriteString("\n")
		}
		writeText(b, child)
	}
}

func isBlock(nodeType string) bool {
	switch nodeType {
	case "paragraph", "heading", "blockquote", "codeBlock", "bulletList", "orderedList", "listItem":
		return true
	}
	return false
}
