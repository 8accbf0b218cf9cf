package slack

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

// ToMrkdwn converts model Markdown into Slack mrkdwn: **bold** becomes
// *bold*, headings become bold lines, links become <url|text>, and
// lists are rendered with bullets or numbers.
func ToMrkdwn(md string) string {
	src := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(src))

	r := &mrkdwnRenderer{src: src}
	_ = ast.Walk(doc, r.visit)
	return strings.TrimSpace(r.out.String())
}

type mrkdwnRenderer struct {
	src []byte
	out bytes.Buffer

	// lists tracks the next ordinal of each open list; 0 means bullets.
	lists []int
	quote int
}

func (r *mrkdwnRenderer) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Document:

	case *ast.Heading:
		if entering {
			r.blockStart(n)
			r.out.WriteByte('*')
		} else {
			r.out.WriteString("*\n")
		}

	case *ast.Paragraph, *ast.TextBlock:
		if entering {
			if _, inItem := n.Parent().(*ast.ListItem); !inItem || n.PreviousSibling() != nil {
				r.blockStart(n)
			}
		} else {
			r.endLine()
		}

	case *ast.ThematicBreak:
		if entering {
			r.blockStart(n)
			r.out.WriteString("――――――\n")
		}

	case *ast.Blockquote:
		if entering {
			if r.out.Len() > 0 && n.PreviousSibling() != nil && len(r.lists) == 0 {
				r.out.WriteByte('\n')
			}
			r.quote++
		} else {
			r.quote--
		}

	case *ast.List:
		if entering {
			r.blockStart(n)
			ordinal := 0
			if node.IsOrdered() {
				ordinal = node.Start
				if ordinal == 0 {
					ordinal = 1
				}
			}
			r.lists = append(r.lists, ordinal)
		} else {
			r.lists = r.lists[:len(r.lists)-1]
		}

	case *ast.ListItem:
		if entering {
			depth := len(r.lists)
			r.linePrefix()
			r.out.WriteString(strings.Repeat("    ", depth-1))
			if ord := r.lists[depth-1]; ord > 0 {
				r.out.WriteString(strconv.Itoa(ord) + ". ")
				r.lists[depth-1]++
			} else {
				r.out.WriteString("• ")
			}
		}

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			r.blockStart(n)
			r.out.WriteString("```\n")
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				r.out.Write(seg.Value(r.src))
			}
			r.out.WriteString("```\n")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Emphasis:
		mark := "_"
		if node.Level >= 2 {
			mark = "*"
		}
		r.out.WriteString(mark)

	case *east.Strikethrough:
		r.out.WriteByte('~')

	case *ast.CodeSpan:
		r.out.WriteByte('`')

	case *ast.Link:
		if entering {
			r.out.WriteString("<" + string(node.Destination) + "|")
		} else {
			r.out.WriteByte('>')
		}

	case *ast.AutoLink:
		if entering {
			url := string(node.URL(r.src))
			if node.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(url, "mailto:") {
				url = "mailto:" + url
			}
			r.out.WriteString("<" + url + "|" + string(node.Label(r.src)) + ">")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Image:
		if entering {
			r.out.WriteString("<" + string(node.Destination) + "|")
		} else {
			r.out.WriteByte('>')
		}

	case *ast.Text:
		if entering {
			r.out.Write(escapeMrkdwn(node.Segment.Value(r.src)))
			switch {
			case node.HardLineBreak():
				r.out.WriteByte('\n')
				r.linePrefix()
			case node.SoftLineBreak():
				r.out.WriteByte('\n')
				r.linePrefix()
			}
		}

	case *ast.String:
		if entering {
			r.out.Write(escapeMrkdwn(node.Value))
		}

	case *ast.RawHTML, *ast.HTMLBlock:
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

// blockStart separates a block from the one before it with a blank
// line (a plain newline inside lists) and writes any quote prefix.
func (r *mrkdwnRenderer) blockStart(n ast.Node) {
	if r.out.Len() > 0 && n.PreviousSibling() != nil {
		if len(r.lists) == 0 {
			r.out.WriteByte('\n')
		}
	}
	r.linePrefix()
}

func (r *mrkdwnRenderer) endLine() {
	if b := r.out.Bytes(); len(b) > 0 && b[len(b)-1] != '\n' {
		r.out.WriteByte('\n')
	}
}

func (r *mrkdwnRenderer) linePrefix() {
	if r.quote > 0 {
		r.out.WriteString(strings.Repeat("> ", r.quote))
	}
}

// escapeMrkdwn escapes the three characters Slack treats as control
// sequences.
func escapeMrkdwn(b []byte) []byte {
	if !bytes.ContainsAny(b, "&<>") {
		return b
	}
	s := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(string(b))
	return []byte(s)
}
