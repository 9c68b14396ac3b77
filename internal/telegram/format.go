package telegram

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// maxMessage leaves headroom under Telegram's 4096 limit for HTML tags
const maxMessage = 4000

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRenderer(renderer.NewRenderer(
		renderer.WithNodeRenderers(util.Prioritized(htmlRenderer{}, 100)),
	)),
)

// htmlRenderer emits the subset of HTML Telegram accepts
type htmlRenderer struct{}

// wrap renders a node as open ... close
func wrap(open, close string) renderer.NodeRendererFunc {
	return func(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			w.WriteString(open)
		} else {
			w.WriteString(close)
		}
		return ast.WalkContinue, nil
	}
}

func (htmlRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindDocument, wrap("", ""))
	reg.Register(ast.KindParagraph, wrap("", "\n\n"))
	reg.Register(ast.KindHeading, wrap("<b>", "</b>\n\n"))
	reg.Register(ast.KindBlockquote, wrap("<blockquote>", "</blockquote>\n"))
	reg.Register(ast.KindList, wrap("", "\n"))
	reg.Register(ast.KindListItem, wrap("• ", "\n"))
	reg.Register(ast.KindThematicBreak, wrap("\n---\n", ""))
	reg.Register(ast.KindCodeBlock, renderCode)
	reg.Register(ast.KindFencedCodeBlock, renderCode)
	reg.Register(ast.KindHTMLBlock, skip)
	reg.Register(ast.KindRawHTML, skip)

	reg.Register(ast.KindText, renderText)
	reg.Register(ast.KindString, renderString)
	reg.Register(ast.KindEmphasis, renderEmphasis)
	reg.Register(ast.KindCodeSpan, renderCodeSpan)
	reg.Register(ast.KindLink, renderLink)
	reg.Register(ast.KindAutoLink, renderAutoLink)
	reg.Register(east.KindStrikethrough, wrap("<s>", "</s>"))

	reg.Register(east.KindTable, renderTable)
	reg.Register(east.KindTableHeader, wrap("", ""))
	reg.Register(east.KindTableRow, wrap("", ""))
	reg.Register(east.KindTableCell, wrap("", ""))
}

func skip(util.BufWriter, []byte, ast.Node, bool) (ast.WalkStatus, error) {
	return ast.WalkSkipChildren, nil
}

func renderCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	w.WriteString("<pre>")
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		w.WriteString(escapeHTML(string(line.Value(source))))
	}
	w.WriteString("</pre>\n")
	return ast.WalkSkipChildren, nil
}

func renderText(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		n := node.(*ast.Text)
		w.WriteString(escapeHTML(string(n.Segment.Value(source))))
		if n.SoftLineBreak() || n.HardLineBreak() {
			w.WriteString("\n")
		}
	}
	return ast.WalkContinue, nil
}

func renderString(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		w.WriteString(escapeHTML(string(node.(*ast.String).Value)))
	}
	return ast.WalkContinue, nil
}

func renderEmphasis(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if node.(*ast.Emphasis).Level == 2 {
		return wrap("<b>", "</b>")(w, source, node, entering)
	}
	return wrap("<i>", "</i>")(w, source, node, entering)
}

func renderCodeSpan(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	w.WriteString("<code>")
	w.WriteString(escapeHTML(plainText(source, node)))
	w.WriteString("</code>")
	return ast.WalkSkipChildren, nil
}

func renderLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	dest := escapeHTML(string(node.(*ast.Link).Destination))
	return wrap(`<a href="`+dest+`">`, "</a>")(w, source, node, entering)
}

func renderAutoLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	url := escapeHTML(string(node.(*ast.AutoLink).URL(source)))
	w.WriteString(`<a href="` + url + `">` + url + "</a>")
	return ast.WalkSkipChildren, nil
}

// renderTable lays a GFM table out as aligned preformatted text
func renderTable(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	var rows [][]string
	var widths []int
	for row := node.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			text := strings.TrimSpace(plainText(source, cell))
			if col := len(cells); col >= len(widths) {
				widths = append(widths, runewidth.StringWidth(text))
			} else if sw := runewidth.StringWidth(text); sw > widths[col] {
				widths[col] = sw
			}
			cells = append(cells, text)
		}
		rows = append(rows, cells)
	}

	var sb strings.Builder
	for i, cells := range rows {
		sb.WriteString("|")
		for col, text := range cells {
			sb.WriteString(" " + runewidth.FillRight(text, widths[col]) + " |")
		}
		sb.WriteString("\n")
		if i == 0 {
			sb.WriteString("|")
			for _, width := range widths {
				sb.WriteString(strings.Repeat("-", width+2) + "|")
			}
			sb.WriteString("\n")
		}
	}
	w.WriteString("<pre>" + escapeHTML(sb.String()) + "</pre>\n")
	return ast.WalkSkipChildren, nil
}

// plainText concatenates the text content under node
func plainText(source []byte, node ast.Node) string {
	var buf bytes.Buffer
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
		case *ast.String:
			buf.Write(t.Value)
		default:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				walk(c)
			}
		}
	}
	walk(node)
	return buf.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// FormatHTML converts a markdown reply to Telegram HTML. ok is false when
// conversion failed and the input is returned unchanged.
func FormatHTML(md string) (string, bool) {
	if md == "" {
		return "", true
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return md, false
	}
	out := strings.TrimSpace(buf.String())
	if out == "" {
		return md, false
	}
	return out, true
}

// SplitMessage cuts text into chunks of at most maxLen bytes, preferring
// paragraph, line, sentence and word boundaries, never splitting a rune.
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxLen {
		at := findSplitPoint(remaining, maxLen)
		if chunk := strings.TrimSpace(remaining[:at]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimSpace(remaining[at:])
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func findSplitPoint(text string, maxLen int) int {
	area := text[:maxLen]
	for _, sep := range []string{"\n\n", "\n", ". ", "! ", "? ", " "} {
		if idx := strings.LastIndex(area, sep); idx > maxLen/2 {
			return idx + len(sep)
		}
	}
	// hard split on a rune boundary
	at := maxLen
	for at > 0 && !utf8.RuneStart(text[at]) {
		at--
	}
	return at
}
