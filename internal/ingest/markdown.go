package ingest

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New().Parser()

var blankRuns = regexp.MustCompile(`\n{3,}`)

// FlattenMarkdown converts markdown to plain text for embedding. The
// first level-one heading becomes the title and is left out of the body.
func FlattenMarkdown(src []byte) (title, body string) {
	doc := markdownParser.Parse(text.NewReader(src))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading:
			if entering && node.Level == 1 && title == "" {
				title = inlineText(node, src)
				return ast.WalkSkipChildren, nil
			}
			if !entering {
				sb.WriteString("\n\n")
			}
		case *ast.Paragraph:
			if !entering {
				sb.WriteString("\n\n")
			}
		case *ast.TextBlock:
			if !entering {
				sb.WriteString("\n")
			}
		case *ast.List:
			if !entering {
				sb.WriteString("\n")
			}
		case *ast.ListItem:
			if entering {
				sb.WriteString("- ")
			}
		case *ast.Text:
			if entering {
				sb.Write(node.Segment.Value(src))
				switch {
				case node.HardLineBreak():
					sb.WriteString("\n")
				case node.SoftLineBreak():
					sb.WriteString(" ")
				}
			}
		case *ast.String:
			if entering {
				sb.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				sb.Write(node.Label(src))
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					sb.Write(seg.Value(src))
				}
				sb.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return title, normalizeSpace(sb.String())
}

// inlineText concatenates the text under n.
func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				sb.WriteString(" ")
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}
