// Package pdfgen 用 pdfcpu 生成简单的 PDF：空白画布和只含文字的页面。
//
// 文字只使用 base-14 的 Helvetica 字体，适合 WinAnsiEncoding 可表示的文本。
package pdfgen

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/create"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/draw"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// FontName is the only font the writer draws with.
const FontName = "Helvetica"

const fontKey = "F1"

// Text is one line of text drawn at (X, Y), the baseline origin in points.
type Text struct {
	X, Y  float64
	Size  float64
	Value string
}

// Page is one output page.
type Page struct {
	Width, Height float64
	Texts         []Text
}

// Document is an ordered list of pages.
type Document struct {
	Pages []Page
}

// Build renders doc into a new pdfcpu context.
func Build(doc Document) (*model.Context, error) {
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("pdfgen: document has no pages")
	}
	for i, p := range doc.Pages {
		if p.Width <= 0 || p.Height <= 0 {
			return nil, fmt.Errorf("pdfgen: page %d has invalid size %gx%g", i, p.Width, p.Height)
		}
	}

	first := doc.Pages[0]
	ctx, err := pdfcpu.CreateContextWithXRefTable(Configuration(), &types.Dim{Width: first.Width, Height: first.Height})
	if err != nil {
		return nil, fmt.Errorf("pdfgen: %w", err)
	}

	fonts := model.FontMap{}
	pages := make([]*model.Page, len(doc.Pages))
	for i, p := range doc.Pages {
		pages[i] = buildPage(ctx.XRefTable, p, fonts)
	}
	if _, _, err := create.UpdatePageTree(ctx, pages, fonts); err != nil {
		return nil, fmt.Errorf("pdfgen: %w", err)
	}
	return ctx, nil
}

func buildPage(xRefTable *model.XRefTable, p Page, fonts model.FontMap) *model.Page {
	mediaBox := types.RectForDim(p.Width, p.Height)
	page := model.NewPage(mediaBox, mediaBox)

	for _, t := range p.Texts {
		if t.Value == "" {
			continue
		}
		size := int(math.Round(t.Size))
		if size <= 0 {
			size = 10
		}
		if _, ok := fonts[FontName]; !ok {
			fonts[FontName] = model.FontResource{}
		}
		page.Fm[FontName] = model.FontResource{Res: model.Resource{ID: fontKey}}

		model.WriteMultiLine(xRefTable, page.Buf, mediaBox, nil, model.TextDescriptor{
			Text:     t.Value,
			FontName: FontName,
			FontKey:  fontKey,
			FontSize: size,
			// 负坐标在 pdfcpu 中表示居中
			X:        math.Max(0, t.X),
			Y:        math.Max(0, t.Y),
			Scale:    1,
			ScaleAbs: true,
			HAlign:   types.AlignLeft,
			VAlign:   types.AlignBaseline,
			RMode:    draw.RMFill,
			FillCol:  color.Black,
		})
	}
	return &page
}

// Write serializes doc as PDF.
func Write(w io.Writer, doc Document) error {
	ctx, err := Build(doc)
	if err != nil {
		return err
	}
	return api.WriteContext(ctx, w)
}

// WriteFile writes doc to path, replacing any existing file.
func WriteFile(path string, doc Document) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, doc); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Bytes renders doc in memory.
func Bytes(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
