package document

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	// DefaultFontSize is used when the text layer carries no size.
	DefaultFontSize = 10.0
	// 无 MediaBox 时按 US Letter 处理
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
	maxTreeDepth      = 32
	maxFormDepth      = 8
)

// Parser turns a PDF file into a Document.
type Parser interface {
	Parse(ctx context.Context, path string) (*Document, error)
}

// PDFParser 基于 ledongthuc/pdf 解释内容流，按基线提取文本
type PDFParser struct {
	classifier Classifier
}

// NewPDFParser creates a parser. A nil classifier uses HeuristicClassifier.
func NewPDFParser(classifier Classifier) *PDFParser {
	if classifier == nil {
		classifier = HeuristicClassifier{}
	}
	return &PDFParser{classifier: classifier}
}

// Parse reads every page. Failure to open the file or to walk the page tree
// is a ParseFailure; a page whose text layer cannot be read is kept with no
// regions.
func (p *PDFParser) Parse(ctx context.Context, path string) (doc *Document, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrParseFailure, "cannot access source document", err)
	}
	if info.IsDir() {
		return nil, types.NewAppErrorWithDetails(types.ErrParseFailure, "cannot access source document", "path is a directory", nil)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrParseFailure, "cannot open PDF", err)
	}
	defer f.Close()

	// ledongthuc/pdf panics on some malformed structures
	defer func() {
		if rec := recover(); rec != nil {
			doc = nil
			err = types.NewAppErrorWithDetails(types.ErrParseFailure, "corrupt PDF structure", fmt.Sprint(rec), nil)
		}
	}()

	total := r.NumPage()
	if total == 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrParseFailure, "cannot open PDF", "document has no pages", nil)
	}

	doc = &Document{SourcePath: path, Pages: make([]Page, 0, total)}
	for pageNum := 1; pageNum <= total; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(pageNum)
		if page.V.IsNull() {
			return nil, types.NewAppErrorWithDetails(types.ErrParseFailure, "corrupt PDF structure",
				fmt.Sprintf("page %d missing from page tree", pageNum), nil)
		}

		w, h := mediaBox(page.V)
		out := Page{
			Index:      pageNum - 1,
			Width:      w,
			Height:     h,
			ImageCount: countImages(page.V),
		}
		out.Regions = p.extractRegions(page, pageNum)
		doc.Pages = append(doc.Pages, out)
	}

	logger.Debug("parsed PDF", logger.String("path", path), logger.Int("pages", total))
	return doc, nil
}

func (p *PDFParser) extractRegions(page pdf.Page, pageNum int) (regions []Region) {
	if page.V.Key("Contents").Kind() == pdf.Null {
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("failed to read text layer", logger.Int("page", pageNum), logger.Any("panic", rec))
			regions = nil
		}
	}()

	for _, r := range textRuns(page.Content().Text) {
		text := strings.TrimSpace(r.text.String())
		if text == "" || isPostScriptCode(text) || hasExcessiveNonPrintable(text) {
			continue
		}

		fontSize := r.sizes / float64(r.glyphs)
		if fontSize <= 0 {
			fontSize = DefaultFontSize
		}

		// 没有 /Widths 的字体宽度为 0，取估算值与实际跨度的较大者
		width := float64(utf8.RuneCountInString(text)) * fontSize * 0.5
		if span := r.maxX - r.minX; span > width {
			width = span
		}

		regions = append(regions, Region{
			Kind:     p.classifier.Classify(text, fontSize),
			Text:     text,
			FontSize: fontSize,
			// y 是基线，框向下包含 0.2 倍字号的下沉部分
			Box: Rect{X: r.minX, Y: r.y - 0.2*fontSize, W: width, H: 1.2 * fontSize},
		})
	}

	// 阅读顺序：从上到下，同一行从左到右
	sort.SliceStable(regions, func(i, j int) bool {
		bi, bj := regions[i].Box, regions[j].Box
		if abs(bi.Y-bj.Y) < 1 {
			return bi.X < bj.X
		}
		return bi.Y > bj.Y
	})
	return regions
}

// run is consecutive glyphs on one baseline, in content stream order.
type run struct {
	text       strings.Builder
	y          float64
	minX, maxX float64
	lastX      float64
	lastEnd    float64
	sizes      float64
	glyphs     int
}

// textRuns groups glyphs into runs. A run ends when the baseline moves or
// the next glyph starts left of the previous one. Word gaps without a space
// glyph become a space.
func textRuns(glyphs []pdf.Text) []*run {
	var runs []*run
	var cur *run
	for _, g := range glyphs {
		if g.S == "" || g.S == "\n" || g.S == "\r" {
			continue
		}
		size := abs(g.FontSize)
		if size == 0 {
			size = DefaultFontSize
		}

		if cur == nil || abs(g.Y-cur.y) > 0.5 || g.X+0.5*size < cur.lastX {
			cur = &run{y: g.Y, minX: g.X, maxX: g.X}
			runs = append(runs, cur)
		} else if gapBefore(cur, g, size) {
			cur.text.WriteByte(' ')
		}

		end := g.X + g.W
		cur.text.WriteString(g.S)
		cur.minX = min(cur.minX, g.X)
		cur.maxX = max(cur.maxX, end)
		cur.lastX, cur.lastEnd = g.X, end
		cur.sizes += size
		cur.glyphs++
	}
	return runs
}

func gapBefore(r *run, g pdf.Text, size float64) bool {
	if r.glyphs == 0 || strings.HasSuffix(r.text.String(), " ") || strings.TrimSpace(g.S) == "" {
		return false
	}
	if r.lastEnd > r.lastX {
		return g.X-r.lastEnd > 0.15*size
	}
	// 宽度未知时只认明显的跳跃
	return g.X-r.lastX > size
}

// inherited looks key up on v and its Parent chain.
func inherited(v pdf.Value, key string) pdf.Value {
	for depth := 0; depth < maxTreeDepth && !v.IsNull(); depth++ {
		if val := v.Key(key); !val.IsNull() {
			return val
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

func mediaBox(v pdf.Value) (w, h float64) {
	box := inherited(v, "MediaBox")
	if box.Kind() != pdf.Array || box.Len() != 4 {
		return defaultPageWidth, defaultPageHeight
	}
	w = box.Index(2).Float64() - box.Index(0).Float64()
	h = box.Index(3).Float64() - box.Index(1).Float64()
	if w <= 0 || h <= 0 {
		return defaultPageWidth, defaultPageHeight
	}
	return w, h
}

func countImages(v pdf.Value) int {
	return countResourceImages(inherited(v, "Resources"), 0)
}

// countResourceImages counts Image XObjects of res, including those drawn
// by nested Form XObjects.
func countResourceImages(res pdf.Value, depth int) int {
	xobjects := res.Key("XObject")
	if xobjects.Kind() != pdf.Dict || depth > maxFormDepth {
		return 0
	}
	n := 0
	for _, name := range xobjects.Keys() {
		xobj := xobjects.Key(name)
		switch xobj.Key("Subtype").Name() {
		case "Image":
			n++
		case "Form":
			n += countResourceImages(xobj.Key("Resources"), depth+1)
		}
	}
	return n
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
