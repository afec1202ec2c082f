// Package extract turns document files into plain text.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"pdfrag/internal/applog"
)

// Parser converts the bytes of one document format into plain text.
type Parser interface {
	Parse(r io.Reader, filename string) (string, error)
	// SupportedTypes lists lower-case extensions including the dot.
	SupportedTypes() []string
}

// PDFParser concatenates the text of every page in page order.
type PDFParser struct{}

func (p *PDFParser) SupportedTypes() []string { return []string{".pdf"} }

func (p *PDFParser) Parse(r io.Reader, filename string) (text string, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pdf data: %w", err)
	}

	// ledongthuc/pdf panics on some malformed xref tables.
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("parse pdf %s: %v", filename, rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			applog.Warn("[extract] failed to read page text", "file", filename, "page", i, "error", err)
			continue
		}
		if pageText = strings.TrimSpace(pageText); pageText != "" {
			sb.WriteString(pageText)
			sb.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(cleanExtraNewlines(sb.String())), nil
}

// DOCXParser extracts paragraph text from Word documents.
type DOCXParser struct{}

var (
	reDocxParagraphEnd = regexp.MustCompile(`</w:p>`)
	reXMLTag           = regexp.MustCompile(`<[^>]+>`)
)

func (p *DOCXParser) SupportedTypes() []string { return []string{".docx"} }

func (p *DOCXParser) Parse(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read docx data: %w", err)
	}
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	content = reDocxParagraphEnd.ReplaceAllString(content, "\n")
	content = reXMLTag.ReplaceAllString(content, "")

	var sb strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(unescapeXML(sb.String())), nil
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string { return xmlEntities.Replace(s) }

// MarkdownParser strips Markdown markup and keeps the prose.
type MarkdownParser struct{}

var (
	reMarkdownHeader = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reMarkdownBold   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reMarkdownItalic = regexp.MustCompile(`\*(.+?)\*`)
	reMarkdownCode   = regexp.MustCompile("```[\\s\\S]*?```")
	reMarkdownInline = regexp.MustCompile("`([^`]+)`")
	reMarkdownLink   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reMarkdownImage  = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	reMarkdownHTML   = regexp.MustCompile(`<[^>]+>`)
)

func (p *MarkdownParser) SupportedTypes() []string { return []string{".md", ".markdown"} }

func (p *MarkdownParser) Parse(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read markdown: %w", err)
	}
	text := reMarkdownCode.ReplaceAllStringFunc(string(data), func(s string) string {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		return strings.TrimSpace(strings.TrimSuffix(s, "```"))
	})
	text = reMarkdownImage.ReplaceAllString(text, "$1")
	text = reMarkdownLink.ReplaceAllString(text, "$1")
	text = reMarkdownBold.ReplaceAllString(text, "$1")
	text = reMarkdownItalic.ReplaceAllString(text, "$1")
	text = reMarkdownInline.ReplaceAllString(text, "$1")
	text = reMarkdownHeader.ReplaceAllString(text, "")
	text = reMarkdownHTML.ReplaceAllString(text, "")
	return strings.TrimSpace(cleanExtraNewlines(text)), nil
}

// PlainTextParser returns the file contents unchanged apart from trimming.
type PlainTextParser struct{}

func (p *PlainTextParser) SupportedTypes() []string { return []string{".txt", ".text"} }

func (p *PlainTextParser) Parse(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

var reMultiNewlines = regexp.MustCompile(`\n{3,}`)

func cleanExtraNewlines(text string) string {
	return reMultiNewlines.ReplaceAllString(text, "\n\n")
}

func extOf(path string) string { return strings.ToLower(filepath.Ext(path)) }
