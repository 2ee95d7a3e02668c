package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/pkg/errors"
)

// ExtractMarkdown renders markdown source as plain text. The first level-1
// heading becomes the result title.
func ExtractMarkdown(source []byte) (*Result, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var buf strings.Builder
	var title string

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
		case *ast.AutoLink:
			if entering {
				buf.Write(node.URL(source))
			}
		case *ast.FencedCodeBlock:
			if entering {
				writeBlockLines(&buf, source, n)
			} else {
				buf.WriteString("\n\n")
			}
		case *ast.CodeBlock:
			if entering {
				writeBlockLines(&buf, source, n)
			} else {
				buf.WriteString("\n\n")
			}
		case *ast.Heading:
			if entering {
				if title == "" && node.Level == 1 {
					title = strings.TrimSpace(nodeText(source, n))
				}
			} else {
				buf.WriteString("\n\n")
			}
		default:
			if !entering && n.Type() == ast.TypeBlock {
				buf.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to walk markdown tree")
	}

	result := &Result{
		Text:        strings.TrimSpace(buf.String()),
		Title:       title,
		ContentType: "text/markdown",
	}
	result.calculateStats()
	return result, nil
}

// writeBlockLines copies the raw source lines of a block node.
func writeBlockLines(buf *strings.Builder, source []byte, n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
}

// nodeText collects the text content of a node's subtree.
func nodeText(source []byte, n ast.Node) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := child.(*ast.Text); ok {
				sb.Write(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
