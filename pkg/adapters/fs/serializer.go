package fs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/commentmail/pkg/core"
)

// frontmatter is the YAML header of a document file.
//
//	---
//	title: Page1
//	author: XWiki.alice
//	objects:
//	  - class: XWiki.XWikiComments
//	    number: 0
//	    fields: {comment: Nice page, author: XWiki.bob}
//	---
//	page content
type frontmatter struct {
	Title   string         `yaml:"title,omitempty"`
	Author  string         `yaml:"author,omitempty"`
	Objects []objectRecord `yaml:"objects,omitempty"`
	Extra   map[string]any `yaml:",inline"`
}

type objectRecord struct {
	Class string `yaml:"class"`
	// Number defaults to the object's position among objects of the same class.
	Number *int           `yaml:"number,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

// parseDocument reads a markdown file with an optional YAML frontmatter.
// User references in the frontmatter are relative to the document's wiki.
func parseDocument(r io.Reader, ref core.DocumentReference) (core.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Document{}, err
	}

	doc := core.Document{Reference: ref, Metadata: make(core.Metadata)}

	header, body, ok, err := splitFrontmatter(data)
	if err != nil {
		return core.Document{}, err
	}
	if !ok {
		doc.Content = string(data)
		return doc, nil
	}
	doc.Content = body

	var fm frontmatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return core.Document{}, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	doc.Title = fm.Title
	for k, v := range fm.Extra {
		doc.Metadata[k] = v
	}

	if strings.TrimSpace(fm.Author) != "" {
		author, err := core.ParseDocumentReference(fm.Author, ref.Wiki)
		if err != nil {
			return core.Document{}, fmt.Errorf("author: %w", err)
		}
		doc.Author = author
	}

	objects, err := buildObjects(fm.Objects)
	if err != nil {
		return core.Document{}, err
	}
	doc.Objects = objects

	return doc, nil
}

func buildObjects(records []objectRecord) ([]core.Object, error) {
	next := make(map[string]int)
	seen := make(map[string]map[int]bool)
	objects := make([]core.Object, 0, len(records))

	for i, rec := range records {
		if strings.TrimSpace(rec.Class) == "" {
			return nil, fmt.Errorf("object %d has no class", i)
		}
		number := next[rec.Class]
		if rec.Number != nil {
			number = *rec.Number
		}
		if number < 0 {
			return nil, fmt.Errorf("object %s[%d]: negative number", rec.Class, number)
		}
		if seen[rec.Class] == nil {
			seen[rec.Class] = make(map[int]bool)
		}
		if seen[rec.Class][number] {
			return nil, fmt.Errorf("duplicate object %s[%d]", rec.Class, number)
		}
		seen[rec.Class][number] = true
		if number >= next[rec.Class] {
			next[rec.Class] = number + 1
		}

		fields := core.Metadata(rec.Fields)
		if fields == nil {
			fields = core.Metadata{}
		}
		objects = append(objects, core.Object{Class: rec.Class, Number: number, Fields: fields})
	}
	return objects, nil
}

// splitFrontmatter separates the YAML header from the body. ok is false when
// the data does not start with a "---" line.
func splitFrontmatter(data []byte) (header []byte, body string, ok bool, err error) {
	var rest []byte
	switch {
	case bytes.HasPrefix(data, []byte("---\n")):
		rest = data[4:]
	case bytes.HasPrefix(data, []byte("---\r\n")):
		rest = data[5:]
	default:
		return nil, "", false, nil
	}

	normalized := bytes.ReplaceAll(rest, []byte("\r\n"), []byte("\n"))
	if bytes.HasPrefix(normalized, []byte("---\n")) || bytes.Equal(normalized, []byte("---")) {
		return nil, strings.TrimPrefix(string(normalized), "---\n"), true, nil
	}
	end := bytes.Index(normalized, []byte("\n---\n"))
	if end < 0 {
		if bytes.HasSuffix(normalized, []byte("\n---")) {
			return normalized[:len(normalized)-4], "", true, nil
		}
		return nil, "", false, errors.New("frontmatter started but no closing delimiter found")
	}
	return normalized[:end], string(normalized[end+5:]), true, nil
}

// serializeDocument renders doc back into the markdown + frontmatter layout.
func serializeDocument(doc core.Document) ([]byte, error) {
	fm := frontmatter{Title: doc.Title}
	if len(doc.Metadata) > 0 {
		fm.Extra = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			fm.Extra[k] = v
		}
	}
	if !doc.Author.IsZero() {
		fm.Author = doc.Author.String()
	}
	for _, o := range doc.Objects {
		n := o.Number
		fm.Objects = append(fm.Objects, objectRecord{Class: o.Class, Number: &n, Fields: o.Fields})
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(fm); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("---\n")
	buf.WriteString(doc.Content)
	return buf.Bytes(), nil
}
