package pdf

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Exporter renders a markdown answer to a downloadable PDF
type Exporter struct {
	logger arbor.ILogger
}

// NewExporter creates a new markdown-to-PDF exporter
func NewExporter(logger arbor.ILogger) *Exporter {
	return &Exporter{logger: logger}
}

// Export converts markdown content to a PDF byte slice. Title goes into the
// document metadata; the content's own H1 renders the visible title.
func (e *Exporter) Export(markdown, title string) ([]byte, error) {
	e.logger.Debug().
		Int("markdown_len", len(markdown)).
		Str("title", title).
		Msg("Exporting markdown to PDF")

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 9)

	md := goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	renderer := &answerRenderer{
		pdf:    pdf,
		source: source,
		font:   "Arial",
		size:   9,
	}

	if err := ast.Walk(doc, renderer.walk); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	e.logger.Debug().Int("pdf_size", buf.Len()).Msg("PDF export complete")
	return buf.Bytes(), nil
}

type answerRenderer struct {
	pdf       *fpdf.Fpdf
	source    []byte
	font      string
	size      float64
	bold      bool
	italic    bool
	listLevel int
}

func (r *answerRenderer) restoreFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(r.font, style, r.size)
}

func (r *answerRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(6)
			size := 14.0
			switch node.Level {
			case 1:
				size = 14
			case 2:
				size = 12
			case 3:
				size = 11
			default:
				size = 10
			}
			r.pdf.SetFont(r.font, "B", size)
		} else {
			r.pdf.Ln(6)
			r.restoreFont()
		}

	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(7)
		}

	case *ast.Text:
		if entering {
			r.pdf.Write(5, string(node.Text(r.source)))
		}

	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.restoreFont()

	case *ast.CodeSpan:
		if entering {
			r.pdf.SetFont("Courier", "", 10)
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if textNode, ok := c.(*ast.Text); ok {
					r.pdf.Write(5, string(textNode.Segment.Value(r.source)))
				}
			}
		} else {
			r.restoreFont()
		}
		return ast.WalkSkipChildren, nil

	case *ast.FencedCodeBlock:
		if entering {
			r.writeCodeLines(node.Lines())
			return ast.WalkSkipChildren, nil
		}

	case *ast.CodeBlock:
		if entering {
			r.writeCodeLines(node.Lines())
			return ast.WalkSkipChildren, nil
		}

	case *ast.List:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
			if r.listLevel == 0 {
				r.pdf.Ln(2)
			}
		}

	case *ast.ListItem:
		if entering {
			r.pdf.Ln(5)
			indent := float64(r.listLevel) * 5.0
			r.pdf.SetX(15 + indent)
			r.pdf.Write(5, "- ")
		}

	case *ast.ThematicBreak:
		if entering {
			r.pdf.Ln(2)
			r.pdf.Line(15, r.pdf.GetY(), 195, r.pdf.GetY())
			r.pdf.Ln(2)
		}
	}

	return ast.WalkContinue, nil
}

func (r *answerRenderer) writeCodeLines(lines *text.Segments) {
	r.pdf.Ln(2)
	r.pdf.SetFont("Courier", "", 9)
	r.pdf.SetFillColor(245, 245, 245)

	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		r.pdf.MultiCell(0, 5, string(line.Value(r.source)), "", "L", true)
	}

	r.pdf.SetFillColor(255, 255, 255)
	r.restoreFont()
	r.pdf.Ln(2)
}
