// Package document 定义解析后的文档模型，以及解析、分类、清理和扫描页检测等能力。
//
// 坐标使用 PDF 用户空间：原点在页面左下角，单位为 point。
package document

import "math"

// Kind classifies a region.
type Kind int

const (
	KindText Kind = iota
	KindTable
	KindFormula
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTable:
		return "table"
	case KindFormula:
		return "formula"
	default:
		return "unknown"
	}
}

// Rect is an axis-aligned box; (X, Y) is its bottom-left corner.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Area() float64 {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Intersect returns the overlap of r and o, or the zero Rect.
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.X+r.W, o.X+o.W)
	y1 := math.Min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// IoU is the intersection-over-union of two boxes.
func (r Rect) IoU(o Rect) float64 {
	inter := r.Intersect(o).Area()
	if inter == 0 {
		return 0
	}
	return inter / (r.Area() + o.Area() - inter)
}

// Region 页面中的一个文本区域
type Region struct {
	Kind     Kind
	Text     string
	Box      Rect
	FontSize float64
}

// Opaque reports whether the region passes through untranslated.
func (r Region) Opaque() bool {
	return r.Kind == KindTable || r.Kind == KindFormula
}

// Page is one source page. Regions are in reading order.
type Page struct {
	// Index 从 0 开始
	Index      int
	Width      float64
	Height     float64
	Regions    []Region
	ImageCount int
	// Scanned is set by scanned-page detection.
	Scanned bool
}

// TextLength counts the non-space runes of all regions.
func (p Page) TextLength() int {
	n := 0
	for _, r := range p.Regions {
		for _, c := range r.Text {
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				n++
			}
		}
	}
	return n
}

// Document 解析后的文档，页序与源文件一致
type Document struct {
	SourcePath string
	Pages      []Page
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// Text joins all region texts, mainly for language detection.
func (d *Document) Text() string {
	var n int
	for _, p := range d.Pages {
		for _, r := range p.Regions {
			n += len(r.Text) + 1
		}
	}
	buf := make([]byte, 0, n)
	for _, p := range d.Pages {
		for _, r := range p.Regions {
			if r.Kind != KindText {
				continue
			}
			buf = append(buf, r.Text...)
			buf = append(buf, '\n')
		}
	}
	return string(buf)
}
