// Package compose 在源 PDF 页面上组合译文，生成单语和双语（并排或交替）文档。
package compose

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdf-translator/internal/document"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/pdfgen"
	"pdf-translator/internal/types"
)

// Watermark stamp parameters.
const (
	WatermarkText     = "WATERMARK"
	WatermarkFontSize = 16
	WatermarkRotate   = 45.0
	WatermarkGray     = 0.7
	WatermarkOffset   = 72.0
)

// Intermediate files written into Job.Dir.
const (
	translatedName      = "translated.pdf"
	translatedStampName = "translated.stamped.pdf"
	originalStampName   = "original.stamped.pdf"
	dualName            = "dual.composed.pdf"
)

// DualMode is how the dual document pairs original and translated content.
type DualMode int

const (
	// DualSideBySide 原文与译文在同一页
	DualSideBySide DualMode = iota
	// DualAlternating 原文页后紧跟译文页
	DualAlternating
)

// Area is where the translated area sits on a side-by-side page.
type Area int

const (
	AreaRight Area = iota
	AreaBottom
)

// ParseArea accepts "right" (default) and "bottom".
func ParseArea(s string) (Area, error) {
	switch s {
	case "", "right":
		return AreaRight, nil
	case "bottom":
		return AreaBottom, nil
	default:
		return AreaRight, fmt.Errorf("unknown dual layout %q", s)
	}
}

func (a Area) String() string {
	if a == AreaBottom {
		return "bottom"
	}
	return "right"
}

// Layout is the side-by-side geometry.
type Layout struct {
	Area Area
	// Gap between the original and translated areas, in points.
	Gap float64
}

// Options 组合参数，由配置派生
type Options struct {
	DualMode  DualMode
	Watermark types.WatermarkMode
	Layout    Layout
	Fonts     FontConfig
}

// Job is one composition: the parsed document, its translations and the
// PDF the document was parsed from.
type Job struct {
	Source string
	Doc    *document.Document
	// Translations are aligned with Doc pages and regions; an empty string
	// keeps the original text.
	Translations [][]string
	// Dir receives every file the composition writes.
	Dir  string
	Mono bool
	Dual bool
}

// Result names the composed files in Job.Dir. A path is empty when that
// output was not requested.
type Result struct {
	MonoPath  string
	MonoPages int
	DualPath  string
	DualPages int
}

// Composer produces output documents. It holds no per-run state and is safe
// to reuse.
type Composer struct {
	opts  Options
	fonts *FontSet
}

func New(opts Options) *Composer {
	return &Composer{opts: opts, fonts: NewFontSet(opts.Fonts)}
}

func (c *Composer) Options() Options {
	return c.opts
}

// Compose writes the requested outputs. Mono pages are translated pages;
// dual pairs every original page with its translated page, side by side on
// one page or as consecutive pages.
func (c *Composer) Compose(ctx context.Context, job Job) (*Result, error) {
	if err := check(job); err != nil {
		return nil, err
	}
	n := len(job.Doc.Pages)

	translated := filepath.Join(job.Dir, translatedName)
	if err := c.overlay(job.Source, translated, job.Doc, job.Translations); err != nil {
		return nil, err
	}
	if c.opts.Watermark == types.Both {
		stamped := filepath.Join(job.Dir, translatedStampName)
		if err := stampWatermark(translated, stamped); err != nil {
			return nil, err
		}
		translated = stamped
	}

	res := &Result{}
	if job.Mono {
		res.MonoPath, res.MonoPages = translated, n
	}
	if !job.Dual {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	original := job.Source
	if c.opts.Watermark != types.NoWatermark {
		original = filepath.Join(job.Dir, originalStampName)
		if err := stampWatermark(job.Source, original); err != nil {
			return nil, err
		}
	}

	res.DualPath = filepath.Join(job.Dir, dualName)
	if c.opts.DualMode == DualAlternating {
		if err := alternate(original, translated, n, res.DualPath); err != nil {
			return nil, err
		}
		res.DualPages = 2 * n
	} else {
		if err := c.sideBySide(original, translated, job.Doc, res.DualPath); err != nil {
			return nil, err
		}
		res.DualPages = n
	}

	logger.Debug("pages composed",
		logger.Int("pages", n),
		logger.String("watermark", string(c.opts.Watermark)),
		logger.Int("dualPages", res.DualPages))
	return res, nil
}

func check(job Job) error {
	if job.Doc == nil || len(job.Doc.Pages) == 0 {
		return types.NewAppErrorWithDetails(types.ErrCompositionFailure, "inconsistent page geometry", "document has no pages", nil)
	}
	if len(job.Translations) != len(job.Doc.Pages) {
		return types.NewAppErrorWithDetails(types.ErrCompositionFailure, "translations do not match pages",
			fmt.Sprintf("document has %d pages, got %d", len(job.Doc.Pages), len(job.Translations)), nil)
	}
	for i, page := range job.Doc.Pages {
		if page.Width <= 0 || page.Height <= 0 {
			return types.NewAppErrorWithDetails(types.ErrCompositionFailure, "inconsistent page geometry",
				fmt.Sprintf("page %d has size %gx%g", page.Index, page.Width, page.Height), nil)
		}
		if len(job.Translations[i]) != len(page.Regions) {
			return types.NewAppErrorWithDetails(types.ErrCompositionFailure, "translations do not match page regions",
				fmt.Sprintf("page %d has %d regions, got %d translations", page.Index, len(page.Regions), len(job.Translations[i])), nil)
		}
	}
	return nil
}

func newWatermark() (*model.Watermark, error) {
	desc := fmt.Sprintf("fontname:%s, points:%d, rotation:%s, fillcolor:%s %s %s, position:bl, offset:%s %s, scalefactor:1 abs, opacity:1",
		CoreFont, WatermarkFontSize, num(WatermarkRotate),
		num(WatermarkGray), num(WatermarkGray), num(WatermarkGray),
		num(WatermarkOffset), num(WatermarkOffset))
	return api.TextWatermark(WatermarkText, desc, true, false, pdftypes.POINTS)
}

// stampWatermark writes in to out with the watermark on every page.
func stampWatermark(in, out string) error {
	wm, err := newWatermark()
	if err != nil {
		return failed("invalid watermark", err)
	}
	if err := api.AddWatermarksFile(in, out, nil, wm, pdfgen.Configuration()); err != nil {
		return failed("cannot stamp watermark", err)
	}
	return nil
}

// alternate writes original page i followed by translated page i.
func alternate(original, translated string, n int, out string) error {
	merged := out + ".merged"
	defer os.Remove(merged)
	if err := api.MergeCreateFile([]string{original, translated}, merged, false, pdfgen.Configuration()); err != nil {
		return failed("cannot merge original and translated pages", err)
	}

	order := make([]string, 0, 2*n)
	for i := 1; i <= n; i++ {
		order = append(order, strconv.Itoa(i), strconv.Itoa(n+i))
	}
	if err := api.CollectFile(merged, out, order, pdfgen.Configuration()); err != nil {
		return failed("cannot interleave pages", err)
	}
	return nil
}

// placement is where both areas of a side-by-side page go, as offsets of
// their bottom-left corners.
type placement struct {
	width, height  float64
	origX, origY   float64
	transX, transY float64
}

func (c *Composer) place(page document.Page) placement {
	gap := c.opts.Layout.Gap
	if gap < 0 {
		gap = 0
	}
	if c.opts.Layout.Area == AreaBottom {
		// 原文在上，译文在下
		return placement{width: page.Width, height: 2*page.Height + gap, origY: page.Height + gap}
	}
	return placement{width: 2*page.Width + gap, height: page.Height, transX: page.Width + gap}
}

// sideBySide stamps original and translated page i onto a blank page large
// enough for both.
func (c *Composer) sideBySide(original, translated string, doc *document.Document, out string) error {
	origData, err := os.ReadFile(original)
	if err != nil {
		return failed("cannot read original pages", err)
	}
	transData, err := os.ReadFile(translated)
	if err != nil {
		return failed("cannot read translated pages", err)
	}

	canvas := pdfgen.Document{Pages: make([]pdfgen.Page, len(doc.Pages))}
	stamps := make(map[int][]*model.Watermark, len(doc.Pages))
	for i, page := range doc.Pages {
		pl := c.place(page)
		canvas.Pages[i] = pdfgen.Page{Width: pl.width, Height: pl.height}

		orig, err := pageStamp(origData, i+1, pl.origX, pl.origY)
		if err != nil {
			return err
		}
		trans, err := pageStamp(transData, i+1, pl.transX, pl.transY)
		if err != nil {
			return err
		}
		stamps[i+1] = []*model.Watermark{orig, trans}
	}

	canvasPath := out + ".canvas"
	defer os.Remove(canvasPath)
	if err := pdfgen.WriteFile(canvasPath, canvas); err != nil {
		return failed("cannot write dual pages", err)
	}
	if err := api.AddWatermarksSliceMapFile(canvasPath, out, stamps, pdfgen.Configuration()); err != nil {
		return failed("cannot place pages side by side", err)
	}
	return nil
}

// pageStamp places page pageNr of data unscaled with its bottom-left corner
// at (dx, dy).
func pageStamp(data []byte, pageNr int, dx, dy float64) (*model.Watermark, error) {
	desc := fmt.Sprintf("position:bl, offset:%s %s, scalefactor:1 abs, rotation:0", num(dx), num(dy))
	wm, err := api.PDFWatermarkForReadSeeker(bytes.NewReader(data), pageNr, desc, true, false, pdftypes.POINTS)
	if err != nil {
		return nil, failed(fmt.Sprintf("cannot place page %d", pageNr), err)
	}
	return wm, nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
