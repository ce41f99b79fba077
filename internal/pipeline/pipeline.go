// Package pipeline 编排一次 PDF 翻译：解析、逐页翻译、组合、落盘。
//
// 状态机：Resolved -> Parsed -> PerPageTranslating -> Composing -> Persisted -> Done，
// 任一非终止状态都可能进入 Failed。
package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"pdf-translator/internal/compose"
	"pdf-translator/internal/config"
	"pdf-translator/internal/document"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/translator"
	"pdf-translator/internal/types"
)

// LayoutCleaner is the layout-dependent clean-up applied to every page.
type LayoutCleaner interface {
	Clean(p document.Page) (document.Page, []int)
}

// languageBinder is implemented by translators that can be rebound to the
// run's language pair.
type languageBinder interface {
	ForLanguages(langIn, langOut string) translator.Translator
}

// Deps are the collaborators of an Orchestrator. Nil fields get defaults.
type Deps struct {
	Parser        document.Parser
	ScanDetector  document.ScanDetector
	SourceCleaner document.SourceCleaner
	LayoutCleaner LayoutCleaner
	OnStatus      StatusFunc
}

// Orchestrator runs translations. It keeps no per-run state, so one
// Orchestrator may serve concurrent runs.
type Orchestrator struct {
	deps Deps
}

func New(deps Deps) *Orchestrator {
	if deps.Parser == nil {
		deps.Parser = document.NewPDFParser(nil)
	}
	if deps.ScanDetector == nil {
		deps.ScanDetector = document.HeuristicScanDetector{}
	}
	if deps.SourceCleaner == nil {
		deps.SourceCleaner = document.PDFCPUCleaner{}
	}
	if deps.LayoutCleaner == nil {
		deps.LayoutCleaner = document.LayoutCleaner{}
	}
	return &Orchestrator{deps: deps}
}

// run is the state of one Translate call.
type run struct {
	cfg    *config.Config
	tr     translator.Translator
	langIn string
	// source is the file the document was parsed from; composition draws
	// on its pages.
	source string
	doc    *document.Document
	trans  [][]string
	status *reporter
	runDir string
}

// Translate runs the whole pipeline for cfg. On success at least one output
// path is set; a path is set iff that output was requested. Every error
// carries exactly one of the types error codes.
func (o *Orchestrator) Translate(ctx context.Context, cfg *config.Config) (*types.TranslateResult, error) {
	if cfg == nil {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidConfiguration, "configuration is required", "nil config", nil)
	}

	r := &run{cfg: cfg, tr: cfg.Translator(), langIn: cfg.LangIn(), status: &reporter{fn: o.deps.OnStatus}}

	runCtx := ctx
	if cfg.Timeout() > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout())
		defer cancel()
	}

	start := time.Now()
	r.status.set(PhaseResolved, 0, "configuration resolved")

	result, err := o.execute(runCtx, r)
	if err != nil {
		err = classify(ctx, runCtx, err)
		r.status.fail(err)
		logger.Error("translation failed", err,
			logger.String("input", cfg.InputFile()),
			logger.String("code", string(types.CodeOf(err))),
			logger.Duration("elapsed", time.Since(start)))
		return nil, err
	}

	r.status.set(PhaseDone, 100, "translation complete")
	logger.Info("translation complete",
		logger.String("input", cfg.InputFile()),
		logger.String("mono", result.MonoPDFPath),
		logger.String("dual", result.DualPDFPath),
		logger.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (*types.TranslateResult, error) {
	if err := os.MkdirAll(r.cfg.WorkingDir(), 0755); err != nil {
		return nil, types.NewAppError(types.ErrPersistenceFailure, "cannot create working directory", err)
	}
	runDir, err := os.MkdirTemp(r.cfg.WorkingDir(), "run-")
	if err != nil {
		return nil, types.NewAppError(types.ErrPersistenceFailure, "cannot create working directory", err)
	}
	defer os.RemoveAll(runDir)
	r.runDir = runDir

	if err := o.parse(ctx, r); err != nil {
		return nil, err
	}

	if r.cfg.DualTranslateFirst() {
		// 先翻译原始区域，再清理并按保留下标重排译文
		if err := o.translate(ctx, r); err != nil {
			return nil, err
		}
		o.cleanLayout(r)
	} else {
		o.cleanLayout(r)
		if err := o.translate(ctx, r); err != nil {
			return nil, err
		}
	}

	composed, err := o.compose(ctx, r)
	if err != nil {
		return nil, err
	}
	return o.persist(ctx, r, composed)
}

func (o *Orchestrator) parse(ctx context.Context, r *run) error {
	src := r.cfg.InputFile()
	if !r.cfg.SkipClean() {
		cleaned, err := o.deps.SourceCleaner.Clean(ctx, src, r.runDir)
		if err != nil {
			return err
		}
		src = cleaned
	}

	doc, err := o.deps.Parser.Parse(ctx, src)
	if err != nil {
		return err
	}
	doc.SourcePath = r.cfg.InputFile()
	r.source = src

	if !r.cfg.SkipScannedDetection() {
		for i := range doc.Pages {
			if o.deps.ScanDetector.IsScanned(doc.Pages[i]) {
				doc.Pages[i].Scanned = true
				logger.Info("scanned page detected, skipping translation", logger.Int("page", doc.Pages[i].Index+1))
			}
		}
	}

	if r.langIn == config.LangAuto {
		code, _ := document.DetectLanguage(doc)
		if code == "" {
			code = config.DefaultLangIn
			logger.Warn("source language not detected, using default", logger.String("lang", code))
		}
		r.langIn = code
	}
	if b, ok := r.tr.(languageBinder); ok {
		r.tr = b.ForLanguages(r.langIn, r.cfg.LangOut())
	}

	r.doc = doc
	r.status.set(PhaseParsed, 10, "document parsed")
	logger.Info("document parsed",
		logger.String("input", r.cfg.InputFile()),
		logger.Int("pages", doc.PageCount()),
		logger.String("langIn", r.langIn),
		logger.String("langOut", r.cfg.LangOut()))
	return nil
}

// cleanLayout cleans every page and keeps r.trans aligned with the regions.
func (o *Orchestrator) cleanLayout(r *run) {
	for i, page := range r.doc.Pages {
		cleaned, kept := o.deps.LayoutCleaner.Clean(page)
		r.doc.Pages[i] = cleaned
		if r.trans == nil {
			continue
		}
		remapped := make([]string, len(kept))
		for j, k := range kept {
			remapped[j] = r.trans[i][k]
		}
		r.trans[i] = remapped
	}
}

type task struct {
	page, region int
	text         string
}

func (o *Orchestrator) tasks(r *run) []task {
	var out []task
	for p, page := range r.doc.Pages {
		if page.Scanned || !r.cfg.Pages().Contains(page.Index) {
			continue
		}
		for i, region := range page.Regions {
			if region.Opaque() {
				continue
			}
			text := strings.TrimSpace(region.Text)
			if text == "" || utf8.RuneCountInString(text) < r.cfg.MinTextLength() {
				continue
			}
			out = append(out, task{page: p, region: i, text: region.Text})
		}
	}
	return out
}

func (o *Orchestrator) translate(ctx context.Context, r *run) error {
	r.trans = make([][]string, len(r.doc.Pages))
	for i, page := range r.doc.Pages {
		r.trans[i] = make([]string, len(page.Regions))
	}

	tasks := o.tasks(r)
	r.status.total(len(tasks))
	r.status.set(PhaseTranslating, 10, "translating")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency())

	for _, t := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := r.tr.Translate(gctx, t.text)
			if err != nil {
				return err
			}
			// 每个任务只写自己的槽位
			r.trans[t.page][t.region] = out
			r.status.regionDone()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	logger.Info("regions translated", logger.Int("regions", len(tasks)))
	return nil
}

func (o *Orchestrator) compose(ctx context.Context, r *run) (*compose.Result, error) {
	r.status.set(PhaseComposing, 85, "composing pages")
	c := compose.New(r.cfg.ComposeOptions())

	return c.Compose(ctx, compose.Job{
		Source:       r.source,
		Doc:          r.doc,
		Translations: r.trans,
		Dir:          r.runDir,
		Mono:         !r.cfg.NoMono(),
		Dual:         !r.cfg.NoDual(),
	})
}

func (o *Orchestrator) persist(ctx context.Context, r *run, composed *compose.Result) (*types.TranslateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if composed.MonoPath != "" {
		if err := verify(composed.MonoPath, MonoFileName, composed.MonoPages); err != nil {
			return nil, err
		}
	}
	if composed.DualPath != "" {
		if err := verify(composed.DualPath, DualFileName, composed.DualPages); err != nil {
			return nil, err
		}
	}

	// 超时后不再向输出目录写入
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &types.TranslateResult{}
	var err error
	if composed.MonoPath != "" {
		if result.MonoPDFPath, err = publish(composed.MonoPath, r.cfg.OutputDir(), MonoFileName); err != nil {
			return nil, err
		}
	}
	if composed.DualPath != "" {
		if result.DualPDFPath, err = publish(composed.DualPath, r.cfg.OutputDir(), DualFileName); err != nil {
			return nil, err
		}
	}

	r.status.set(PhasePersisted, 95, "outputs written")
	return result, nil
}

// classify maps err onto exactly one error code. Expiry of the run deadline
// or of the caller's context is TimeoutExceeded.
func classify(parent, runCtx context.Context, err error) error {
	if runCtx.Err() != nil {
		msg := "translation run timed out"
		if errors.Is(parent.Err(), context.Canceled) {
			msg = "translation run canceled"
		}
		return types.NewAppError(types.ErrTimeoutExceeded, msg, runCtx.Err())
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.NewAppError(types.ErrTimeoutExceeded, "translation run timed out", err)
	}
	return types.NewAppError(types.ErrInternal, "unexpected error", err)
}
