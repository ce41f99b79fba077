package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/pdfgen"
	"pdf-translator/internal/types"
)

// SourceCleaner rewrites the source PDF into a normalized copy before parsing.
type SourceCleaner interface {
	Clean(ctx context.Context, src, workDir string) (string, error)
}

// PDFCPUCleaner 使用 pdfcpu 重写源文件：去除重复对象、修复交叉引用表。
// 无法被 pdfcpu 读取的文件视为损坏。
type PDFCPUCleaner struct{}

const cleanedSourceName = "source.cleaned.pdf"

func (PDFCPUCleaner) Clean(ctx context.Context, src, workDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", types.NewAppError(types.ErrPersistenceFailure, "cannot create working directory", err)
	}

	out := filepath.Join(workDir, cleanedSourceName)
	if err := api.OptimizeFile(src, out, pdfgen.Configuration()); err != nil {
		os.Remove(out)
		return "", types.NewAppError(types.ErrParseFailure, "source document is corrupt beyond tolerance", err)
	}

	logger.Debug("cleaned source document", logger.String("src", src), logger.String("out", out))
	return out, nil
}

// LayoutCleaner 依赖版面的清理：规范空白、去掉空区域和重叠的重复区域。
type LayoutCleaner struct {
	// DuplicateIoU is the overlap above which two regions with the same
	// text count as duplicates. Default 0.8.
	DuplicateIoU float64
}

// Clean returns the cleaned page and, for every kept region, its index in
// the input page. The input page is not modified.
func (c LayoutCleaner) Clean(p Page) (Page, []int) {
	threshold := c.DuplicateIoU
	if threshold <= 0 {
		threshold = 0.8
	}

	out := p
	out.Regions = make([]Region, 0, len(p.Regions))
	kept := make([]int, 0, len(p.Regions))

	for i, r := range p.Regions {
		r.Text = normalizeSpace(r.Text)
		if r.Text == "" {
			continue
		}
		if isDuplicate(out.Regions, r, threshold) {
			continue
		}
		out.Regions = append(out.Regions, r)
		kept = append(kept, i)
	}
	return out, kept
}

func isDuplicate(existing []Region, r Region, threshold float64) bool {
	for _, e := range existing {
		if e.Text == r.Text && e.Box.IoU(r.Box) >= threshold {
			return true
		}
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
