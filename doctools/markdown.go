package doctools

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Heading is an entry of a document outline.
type Heading struct {
	Level int
	Title string
	Line  int
}

// ImageRef is a markdown image reference.
type ImageRef struct {
	Alt         string
	Destination string
}

func (r ImageRef) Markdown() string {
	return "![" + r.Alt + "](" + r.Destination + ")"
}

var markdown = goldmark.New()

func parse(source []byte) ast.Node {
	return markdown.Parser().Parse(text.NewReader(source))
}

// outline returns the document's headings with their 1-based line numbers.
func outline(content string) []Heading {
	source := []byte(content)
	var headings []Heading
	_ = ast.Walk(parse(source), func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		line := 0
		if segs := h.Lines(); segs.Len() > 0 {
			line = bytes.Count(source[:segs.At(0).Start], []byte("\n")) + 1
		}
		headings = append(headings, Heading{
			Level: h.Level,
			Title: string(h.Text(source)),
			Line:  line,
		})
		return ast.WalkSkipChildren, nil
	})
	return headings
}

// images returns the image references in content.
func images(content string) []ImageRef {
	source := []byte(content)
	var refs []ImageRef
	_ = ast.Walk(parse(source), func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if img, ok := n.(*ast.Image); ok {
			refs = append(refs, ImageRef{
				Alt:         string(img.Text(source)),
				Destination: string(img.Destination),
			})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return refs
}
