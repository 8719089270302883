// Package notes renders stored note content to HTML so that a plain static
// viewer can display notes without carrying a renderer for every format.
package notes

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/niklasfasching/go-org/org"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	ghhtml "github.com/yuin/goldmark/renderer/html"
)

// Note formats. Mirrors the format tags stored on notes records.
const (
	FormatOrg      = "org"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatDelta    = "delta"
	FormatText     = "text"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Table,
		extension.TaskList,
		extension.Strikethrough,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		ghhtml.WithUnsafe(),
	),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
)

// markdownCSSRe matches the first-line CSS pragma of markdown notes:
// [//]: # (css...)
var markdownCSSRe = regexp.MustCompile(`^\[//]: # \((.*?)\)$`)

// textCSSRe matches the first-line CSS pragma of plain-text notes.
var textCSSRe = regexp.MustCompile(`^CSS:(.*)$`)

// Render converts note content to HTML according to its format. Rich-text
// (delta) notes pass through their pre-rendered HTML; an empty org document
// renders to an empty string.
func Render(format, content, preRendered string) (string, error) {
	switch format {
	case FormatText:
		return textToHTML(content), nil
	case FormatMarkdown:
		return markdownToHTML(content)
	case FormatHTML:
		return content, nil
	case FormatDelta:
		return preRendered, nil
	case FormatOrg, "":
		if content == "" {
			return "", nil
		}
		return orgToHTML(content)
	default:
		return "", fmt.Errorf("unknown notes format: %q", format)
	}
}

func markdownToHTML(content string) (string, error) {
	var out strings.Builder

	if first, _, ok := strings.Cut(content, "\n"); ok || first != "" {
		if m := markdownCSSRe.FindStringSubmatch(strings.TrimSpace(first)); m != nil {
			out.WriteString("<style>" + html.EscapeString(m[1]) + "</style>")
		}
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown notes: %w", err)
	}
	out.Write(buf.Bytes())

	return out.String(), nil
}

func textToHTML(content string) string {
	var out strings.Builder

	if first, rest, ok := strings.Cut(content, "\n"); ok {
		if m := textCSSRe.FindStringSubmatch(strings.TrimSpace(first)); m != nil {
			out.WriteString("<style>" + html.EscapeString(m[1]) + "</style>")
			content = rest
		}
	}

	out.WriteString(`<pre class="plaintext">` + html.EscapeString(content) + `</pre>`)
	return out.String()
}

func orgToHTML(content string) (string, error) {
	doc := org.New().Parse(strings.NewReader(content), "")
	html, err := doc.Write(org.NewHTMLWriter())
	if err != nil {
		return "", fmt.Errorf("failed to render org notes: %w", err)
	}

	return html, nil
}
