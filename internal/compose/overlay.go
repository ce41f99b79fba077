package compose

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/create"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/draw"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdf-translator/internal/document"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/pdfgen"
	"pdf-translator/internal/types"
)

// rightMargin 译文可以向右延伸到距页面右边缘这么远
const rightMargin = 36.0

// overlay writes a copy of src to out where every translated region is
// covered with white and the translation is drawn in its place. Pages with
// nothing translated are copied unchanged, so images and vector graphics of
// the source survive.
func (c *Composer) overlay(src, out string, doc *document.Document, translations [][]string) error {
	f, err := os.Open(src)
	if err != nil {
		return failed("cannot read source pages", err)
	}
	defer f.Close()

	ctx, err := api.ReadAndValidate(f, pdfgen.Configuration())
	if err != nil {
		return failed("cannot read source pages", err)
	}

	if ctx.PageCount != len(doc.Pages) {
		return types.NewAppErrorWithDetails(types.ErrCompositionFailure, "inconsistent page geometry",
			fmt.Sprintf("source has %d pages, document has %d", ctx.PageCount, len(doc.Pages)), nil)
	}

	fonts := model.FontMap{}
	pages := make([]*model.Page, len(doc.Pages))
	drawn := 0

	// 所有页面先排版完成再写入字体，子集才包含全部用到的字形
	for i, page := range doc.Pages {
		n, p, err := c.overlayPage(ctx, i+1, page, translations[i], fonts)
		if err != nil {
			return err
		}
		pages[i] = p
		drawn += n
	}

	if _, _, err := create.UpdatePageTree(ctx, pages, fonts); err != nil {
		return failed("cannot update pages", err)
	}
	if err := api.WriteContextFile(ctx, out); err != nil {
		return failed("cannot write translated pages", err)
	}

	logger.Debug("translated pages written", logger.String("path", out), logger.Int("regions", drawn))
	return nil
}

// overlayPage returns the content drawn over page pageNr, or nil when the
// page keeps its original content.
func (c *Composer) overlayPage(ctx *model.Context, pageNr int, page document.Page, translations []string, fonts model.FontMap) (int, *model.Page, error) {
	var work []int
	for i, r := range page.Regions {
		if !r.Opaque() && strings.TrimSpace(translations[i]) != "" {
			work = append(work, i)
		}
	}
	if len(work) == 0 {
		return 0, nil, nil
	}

	_, _, inh, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return 0, nil, failed(fmt.Sprintf("cannot read page %d", pageNr), err)
	}
	mediaBox := inh.MediaBox
	if mediaBox == nil {
		mediaBox = pdftypes.RectForDim(page.Width, page.Height)
	}
	p := model.NewPage(mediaBox, inh.CropBox)
	keys := pageFontKeys{used: existingFontKeys(inh.Resources)}

	for _, i := range work {
		r := page.Regions[i]
		text := strings.ReplaceAll(translations[i], "\t", " ")

		name, err := c.fonts.Pick(text)
		if err != nil {
			return 0, nil, err
		}
		if _, ok := fonts[name]; !ok {
			fonts[name] = model.FontResource{}
		}
		key := keys.forFont(p.Fm, name)

		size := int(math.Round(r.FontSize))
		if size <= 0 {
			size = int(document.DefaultFontSize)
		}

		// 译文从区域左上开始排，可用宽度延伸到页面右边距
		maxWidth := r.Box.W
		if avail := mediaBox.UR.X - r.Box.X - rightMargin; avail > maxWidth {
			maxWidth = avail
		}
		fitted, lines := fitText(text, size, maxWidth, fontMeasure(name))

		draw.FillRectNoBorder(p.Buf, pdftypes.NewRectangle(r.Box.X, r.Box.Y, r.Box.X+r.Box.W, r.Box.Y+r.Box.H), color.White)
		model.WriteMultiLine(ctx.XRefTable, p.Buf, mediaBox, nil, model.TextDescriptor{
			Text:     strings.Join(lines, "\n"),
			FontName: name,
			FontKey:  key,
			Embed:    true,
			FontSize: fitted,
			X:        math.Max(0, r.Box.X-mediaBox.LL.X),
			Y:        math.Max(0, r.Box.Y+r.Box.H-mediaBox.LL.Y),
			Scale:    1,
			ScaleAbs: true,
			HAlign:   pdftypes.AlignLeft,
			VAlign:   pdftypes.AlignTop,
			RMode:    draw.RMFill,
			FillCol:  color.Black,
		})
	}
	return len(work), &p, nil
}

// pageFontKeys hands out font resource names unused on a page.
type pageFontKeys struct {
	used map[string]bool
	next int
}

func (k *pageFontKeys) forFont(fm model.FontMap, name string) string {
	if fr, ok := fm[name]; ok {
		return fr.Res.ID
	}
	for {
		key := fmt.Sprintf("TrF%d", k.next)
		k.next++
		if !k.used[key] {
			k.used[key] = true
			fm[name] = model.FontResource{Res: model.Resource{ID: key}}
			return key
		}
	}
}

func existingFontKeys(res pdftypes.Dict) map[string]bool {
	used := map[string]bool{}
	if res == nil {
		return used
	}
	if d, ok := res["Font"].(pdftypes.Dict); ok {
		for k := range d {
			used[k] = true
		}
	}
	return used
}

func failed(message string, err error) error {
	return types.NewAppError(types.ErrCompositionFailure, message, err)
}
