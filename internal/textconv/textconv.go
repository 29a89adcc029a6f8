// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package textconv turns source documents into plain text for the
// extraction service. Text files pass through (GB18030 input is decoded),
// HTML is flattened with its tables kept row by row, and binary office
// formats go through the markitdown container image.
package textconv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/pdiddy/fiscal-engine/internal/container"
)

// Converter extracts the text of one document.
type Converter interface {
	Convert(ctx context.Context, path string) (string, error)
}

// Router dispatches to a converter by file extension.
type Router struct {
	byExt map[string]Converter
}

// NewRouter returns a router for text and HTML documents. Binary formats
// are added with Handle.
func NewRouter() *Router {
	r := &Router{byExt: make(map[string]Converter)}
	for _, ext := range []string{".txt", ".md", ".csv"} {
		r.byExt[ext] = Text{}
	}
	for _, ext := range []string{".html", ".htm"} {
		r.byExt[ext] = HTML{}
	}
	return r
}

// Handle registers c for the given extensions.
func (r *Router) Handle(c Converter, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = c
	}
}

// Supported reports whether a converter is registered for path.
func (r *Router) Supported(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Convert extracts the text of path.
func (r *Router) Convert(ctx context.Context, path string) (string, error) {
	c, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("no converter for %s", filepath.Base(path))
	}
	text, err := c.Convert(ctx, path)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s contains no text", filepath.Base(path))
	}
	return text, nil
}

// Text reads plain-text documents.
type Text struct{}

// Convert returns the file contents, decoding GB18030 when the bytes are
// not valid UTF-8.
func (Text) Convert(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return decode(data)
}

func decode(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decoding GB18030: %w", err)
	}
	return string(out), nil
}

// HTML extracts the visible text of HTML documents.
type HTML struct{}

// Convert flattens the document: block elements start new lines, table
// cells are separated by tabs, and script and style content is dropped.
func (HTML) Convert(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return htmlText(f)
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Tr: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Table: true, atom.Section: true, atom.Article: true,
}

func htmlText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var (
		b    strings.Builder
		skip int
	)
	newline := func() {
		s := b.String()
		if s != "" && !strings.HasSuffix(s, "\n") {
			b.WriteByte('\n')
		}
	}
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return collapseBlankLines(b.String()), nil
			}
			return "", fmt.Errorf("parsing HTML: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch {
			case tok.DataAtom == atom.Script || tok.DataAtom == atom.Style:
				skip++
			case tok.DataAtom == atom.Td || tok.DataAtom == atom.Th:
				s := b.String()
				if s != "" && !strings.HasSuffix(s, "\n") {
					b.WriteByte('\t')
				}
			case blockElements[tok.DataAtom]:
				newline()
			}
		case html.EndTagToken:
			tok := z.Token()
			switch {
			case tok.DataAtom == atom.Script || tok.DataAtom == atom.Style:
				skip = max(skip-1, 0)
			case blockElements[tok.DataAtom]:
				newline()
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := strings.Join(strings.Fields(string(z.Text())), " "); text != "" {
				b.WriteString(text)
			}
		}
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// ImageMarkitdown is the container image used for binary documents.
const ImageMarkitdown = "markitdown:latest"

// Markitdown converts PDF and office documents by piping them through the
// markitdown container image.
type Markitdown struct {
	runtime container.Runtime
	image   string
}

// MarkitdownExts lists the extensions Markitdown handles.
var MarkitdownExts = []string{".pdf", ".docx", ".doc", ".xlsx", ".xls", ".pptx"}

// NewMarkitdown verifies that image exists in rt. An empty image selects
// ImageMarkitdown.
func NewMarkitdown(ctx context.Context, rt container.Runtime, image string) (*Markitdown, error) {
	if image == "" {
		image = ImageMarkitdown
	}
	if err := rt.ImageExists(ctx, image); err != nil {
		return nil, fmt.Errorf("markitdown image not available in %s: %w", rt.Name(), err)
	}
	return &Markitdown{runtime: rt, image: image}, nil
}

// Convert pipes the document through the container and returns its output.
func (m *Markitdown) Convert(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := m.runtime.Run(ctx, m.image, f, &out); err != nil {
		return "", fmt.Errorf("converting %s with markitdown: %w", filepath.Base(path), err)
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("markitdown produced empty output for %s", filepath.Base(path))
	}
	return out.String(), nil
}
