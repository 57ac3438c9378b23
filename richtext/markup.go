// Package richtext splits, measures and lays out the HTML markup stored on
// rich-text pages.
package richtext

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Block is a top-level element of page markup. Start and End are byte
// offsets into the markup the block was cut from.
type Block struct {
	Tag   string
	Start int
	End   int
	Raw   string
}

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Ul: true, atom.Ol: true,
	atom.Blockquote: true, atom.Pre: true, atom.Hr: true, atom.Table: true,
	atom.Section: true, atom.Article: true,
}

var voidTags = map[atom.Atom]bool{
	atom.Br: true, atom.Hr: true, atom.Img: true, atom.Input: true, atom.Wbr: true,
	atom.Meta: true, atom.Link: true, atom.Col: true, atom.Area: true, atom.Source: true,
}

// Blocks cuts markup into its top-level block elements. Runs of bare text and
// inline elements between blocks become paragraph blocks. Whitespace between
// blocks belongs to no block.
func Blocks(markup string) []Block {
	var (
		blocks []Block
		pos    int
		depth  int
		open   = -1
		tag    string
		inline bool
	)

	closeBlock := func(end int) {
		if open >= 0 {
			blocks = append(blocks, Block{Tag: tag, Start: open, End: end, Raw: markup[open:end]})
		}
		open = -1
		inline = false
	}

	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		start := pos
		raw := z.Raw()
		pos += len(raw)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if depth == 0 && blockTags[a] {
				closeBlock(start)
				open, tag = start, a.String()
			} else if depth == 0 && open < 0 {
				open, tag, inline = start, "p", true
			}
			if tt == html.StartTagToken && !voidTags[a] {
				depth++
			}
			if depth == 0 && !inline {
				closeBlock(pos)
			}
		case html.EndTagToken:
			if depth > 0 {
				depth--
			}
			if depth == 0 && !inline {
				closeBlock(pos)
			}
		case html.TextToken:
			if depth == 0 {
				if len(bytes.TrimSpace(raw)) == 0 {
					continue
				}
				if open < 0 {
					open, tag, inline = start, "p", true
				}
			}
		}
	}
	if open >= 0 {
		end := len(strings.TrimRight(markup, " \t\r\n"))
		if end < open {
			end = len(markup)
		}
		closeBlock(end)
	}
	return blocks
}

// Style is the typeface variant of a run of text.
type Style struct {
	Bold   bool
	Italic bool
	Mono   bool
}

// Word is an unbreakable run of text.
type Word struct {
	Text  string
	Style Style
}

// Para is a line-wrapped unit of a block: a paragraph, a heading, a list
// item or one line of preformatted text.
type Para struct {
	Words      []Word
	Size       float64
	Indent     float64
	SpaceAfter float64
	Prefix     string
	NoWrap     bool
	Rule       bool
}

const (
	BaseSize   = 12.0
	LineHeight = 1.35
	ListIndent = 18.0
)

var headingSizes = map[atom.Atom]float64{
	atom.H1: 24, atom.H2: 20, atom.H3: 16, atom.H4: 14, atom.H5: 12, atom.H6: 11,
}

type listState struct {
	ordered bool
	n       int
}

type paraBuilder struct {
	paras   []Para
	cur     *Para
	bold    int
	italic  int
	mono    int
	pre     int
	size    float64
	indent  float64
	lists   []listState
	glue    bool
	keepNil bool
}

func (b *paraBuilder) style() Style {
	return Style{Bold: b.bold > 0, Italic: b.italic > 0, Mono: b.mono > 0}
}

func (b *paraBuilder) begin(prefix string, keepEmpty bool) {
	b.flush()
	size := b.size
	if size == 0 {
		size = BaseSize
	}
	b.cur = &Para{Size: size, Indent: b.indent, SpaceAfter: size / 2, Prefix: prefix, NoWrap: b.pre > 0}
	b.keepNil = keepEmpty
	b.glue = false
}

func (b *paraBuilder) flush() {
	if b.cur == nil {
		return
	}
	if len(b.cur.Words) > 0 || b.cur.Prefix != "" || b.keepNil || b.cur.Rule {
		b.paras = append(b.paras, *b.cur)
	}
	b.cur = nil
	b.glue = false
}

func (b *paraBuilder) text(s string) {
	if b.cur == nil {
		b.begin("", false)
	}
	if b.pre > 0 {
		if len(b.cur.Words) == 0 {
			s = strings.TrimPrefix(s, "\n")
		}
		lines := strings.Split(s, "\n")
		for i, line := range lines {
			if i > 0 {
				b.begin("", true)
			}
			if line != "" {
				b.cur.Words = append(b.cur.Words, Word{Text: line, Style: b.style()})
			}
		}
		return
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		b.glue = false
		return
	}
	startsWithSpace := s != "" && strings.TrimLeft(s, " \t\r\n") != s
	st := b.style()
	for i, f := range fields {
		if i == 0 && b.glue && !startsWithSpace && len(b.cur.Words) > 0 {
			b.cur.Words[len(b.cur.Words)-1].Text += f
			continue
		}
		b.cur.Words = append(b.cur.Words, Word{Text: f, Style: st})
	}
	b.glue = strings.TrimRight(s, " \t\r\n") == s
}

// Paras extracts the wrappable paragraphs of a block.
func (blk Block) Paras() []Para {
	b := &paraBuilder{}
	z := html.NewTokenizer(strings.NewReader(blk.Raw))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			b.start(atom.Lookup(name))
		case html.EndTagToken:
			name, _ := z.TagName()
			b.end(atom.Lookup(name))
		case html.TextToken:
			b.text(string(z.Text()))
		}
	}
	b.flush()
	return b.paras
}

func (b *paraBuilder) start(a atom.Atom) {
	switch a {
	case atom.B, atom.Strong:
		b.bold++
	case atom.I, atom.Em:
		b.italic++
	case atom.Code:
		b.mono++
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		b.size = headingSizes[a]
		b.bold++
		b.begin("", false)
	case atom.P, atom.Div, atom.Tr:
		b.begin("", a == atom.P)
	case atom.Pre:
		b.mono++
		b.pre++
		b.begin("", true)
	case atom.Blockquote:
		b.indent += ListIndent
		b.italic++
		b.begin("", false)
	case atom.Ul, atom.Ol:
		b.flush()
		b.lists = append(b.lists, listState{ordered: a == atom.Ol})
		b.indent += ListIndent
	case atom.Li:
		prefix := "•"
		if n := len(b.lists); n > 0 {
			l := &b.lists[n-1]
			l.n++
			if l.ordered {
				prefix = strconv.Itoa(l.n) + "."
			}
		}
		b.begin(prefix, false)
	case atom.Br:
		if b.cur == nil {
			b.begin("", true)
		}
		if len(b.cur.Words) == 0 && b.cur.Prefix == "" {
			b.keepNil = true
			return
		}
		b.cur.SpaceAfter = 0
		b.begin("", true)
	case atom.Hr:
		b.flush()
		b.paras = append(b.paras, Para{Size: BaseSize, Rule: true, SpaceAfter: BaseSize / 2})
	}
}

func (b *paraBuilder) end(a atom.Atom) {
	switch a {
	case atom.B, atom.Strong:
		if b.bold > 0 {
			b.bold--
		}
	case atom.I, atom.Em:
		if b.italic > 0 {
			b.italic--
		}
	case atom.Code:
		if b.mono > 0 {
			b.mono--
		}
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		b.flush()
		b.size = 0
		if b.bold > 0 {
			b.bold--
		}
	case atom.P, atom.Div, atom.Tr, atom.Li:
		b.flush()
	case atom.Pre:
		b.flush()
		if b.mono > 0 {
			b.mono--
		}
		if b.pre > 0 {
			b.pre--
		}
	case atom.Blockquote:
		b.flush()
		b.indent -= ListIndent
		if b.italic > 0 {
			b.italic--
		}
	case atom.Ul, atom.Ol:
		b.flush()
		if n := len(b.lists); n > 0 {
			b.lists = b.lists[:n-1]
			b.indent -= ListIndent
		}
	}
}
