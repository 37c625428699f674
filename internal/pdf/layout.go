package pdf

import (
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LayoutParams controls how positioned glyphs are grouped into lines and
// text boxes. All values are ratios of glyph or line size.
type LayoutParams struct {
	CharMargin  float64 // Max horizontal gap between glyphs of one line, times glyph width
	LineOverlap float64 // Min vertical overlap of glyphs on one line, times glyph height
	WordMargin  float64 // Gap that inserts a space, times glyph size
	LineMargin  float64 // Max vertical gap between lines of one box, times line height
}

// DefaultLayoutParams returns the thresholds tuned for academic papers.
func DefaultLayoutParams() LayoutParams {
	return LayoutParams{
		CharMargin:  1.5,
		LineOverlap: 0.7,
		WordMargin:  0.1,
		LineMargin:  0.5,
	}
}

type glyph struct {
	x0, x1, y0, y1 float64
	s              string
}

func newGlyph(t pdf.Text) glyph {
	size := t.FontSize
	if size <= 0 {
		size = 1
	}
	// Fonts without a Widths array report zero advance.
	w := t.W
	if w <= 0 {
		w = size / 2
	}
	return glyph{x0: t.X, x1: t.X + w, y0: t.Y, y1: t.Y + size, s: t.S}
}

func (g glyph) width() float64  { return g.x1 - g.x0 }
func (g glyph) height() float64 { return g.y1 - g.y0 }

type textLine struct {
	glyphs         []glyph
	x0, x1, y0, y1 float64
}

func newLine(g glyph) *textLine {
	return &textLine{glyphs: []glyph{g}, x0: g.x0, x1: g.x1, y0: g.y0, y1: g.y1}
}

func (l *textLine) add(g glyph) {
	l.glyphs = append(l.glyphs, g)
	l.x0 = math.Min(l.x0, g.x0)
	l.x1 = math.Max(l.x1, g.x1)
	l.y0 = math.Min(l.y0, g.y0)
	l.y1 = math.Max(l.y1, g.y1)
}

func (l *textLine) height() float64 { return l.y1 - l.y0 }

// text joins the glyphs, inserting a space wherever the gap between two
// glyphs is wider than the word margin.
func (l *textLine) text(wordMargin float64) string {
	var b strings.Builder
	for i, g := range l.glyphs {
		if i > 0 {
			prev := l.glyphs[i-1]
			gap := g.x0 - prev.x1
			if gap > wordMargin*math.Max(prev.width(), prev.height()) &&
				!strings.HasSuffix(prev.s, " ") && !strings.HasPrefix(g.s, " ") {
				b.WriteByte(' ')
			}
		}
		b.WriteString(g.s)
	}
	return strings.TrimSpace(b.String())
}

// overlap returns the length shared by [a0,a1] and [b0,b1], or 0.
func overlap(a0, a1, b0, b1 float64) float64 {
	return math.Max(0, math.Min(a1, b1)-math.Max(a0, b0))
}

// distance returns the gap between [a0,a1] and [b0,b1], or 0 if they overlap.
func distance(a0, a1, b0, b1 float64) float64 {
	if overlap(a0, a1, b0, b1) > 0 {
		return 0
	}
	return math.Min(math.Abs(b0-a1), math.Abs(a0-b1))
}

func sameLine(a, b glyph, p LayoutParams) bool {
	v := overlap(a.y0, a.y1, b.y0, b.y1)
	if v <= p.LineOverlap*math.Min(a.height(), b.height()) {
		return false
	}
	return distance(a.x0, a.x1, b.x0, b.x1) < p.CharMargin*math.Max(a.width(), b.width())
}

func sameBox(a, b *textLine, p LayoutParams) bool {
	if overlap(a.x0, a.x1, b.x0, b.x1) <= 0 {
		return false
	}
	return distance(a.y0, a.y1, b.y0, b.y1) <= p.LineMargin*math.Max(a.height(), b.height())
}

// groupLines walks glyphs in content stream order and starts a new line
// whenever a glyph does not continue the previous one.
func groupLines(texts []pdf.Text, p LayoutParams) []*textLine {
	var lines []*textLine
	var cur *textLine
	var prev glyph
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		g := newGlyph(t)
		if cur != nil && sameLine(prev, g, p) {
			cur.add(g)
		} else {
			cur = newLine(g)
			lines = append(lines, cur)
		}
		prev = g
	}
	return lines
}

// groupBoxes merges consecutive lines that sit close together and share
// horizontal extent. A column break starts a new box.
func groupBoxes(lines []*textLine, p LayoutParams) [][]*textLine {
	var boxes [][]*textLine
	for _, l := range lines {
		n := len(boxes)
		if n > 0 && sameBox(boxes[n-1][len(boxes[n-1])-1], l, p) {
			boxes[n-1] = append(boxes[n-1], l)
			continue
		}
		boxes = append(boxes, []*textLine{l})
	}
	return boxes
}

// layoutText renders one page: box lines separated by newlines, boxes by a
// blank line.
func layoutText(texts []pdf.Text, p LayoutParams) string {
	var b strings.Builder
	for _, box := range groupBoxes(groupLines(texts, p), p) {
		for _, l := range box {
			if s := l.text(p.WordMargin); s != "" {
				b.WriteString(s)
				b.WriteByte('\n')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// layoutLines returns the non-empty text lines of one page in reading order.
func layoutLines(texts []pdf.Text, p LayoutParams) []string {
	var out []string
	for _, l := range groupLines(texts, p) {
		if s := l.text(p.WordMargin); s != "" {
			out = append(out, s)
		}
	}
	return out
}
