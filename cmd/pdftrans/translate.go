package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"pdf-translator/internal/cache"
	"pdf-translator/internal/config"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/pipeline"
	"pdf-translator/internal/translator"
)

const (
	envOpenAIAPIKey  = "OPENAI_API_KEY"
	envOpenAIBaseURL = "OPENAI_BASE_URL"
	envOpenAIModel   = "OPENAI_MODEL"
	envLLMModel      = "OPENAI_LLM_MODEL"
	defaultModel     = "gpt-4o-mini"
)

type translateFlags struct {
	optionsFile string

	langIn, langOut string
	noMono, noDual  bool
	alternating     bool
	watermark       string
	enhanceCompat   bool
	ocrWorkaround   bool
	workingDir      string
	outputDir       string
	pages           string
	minTextLength   int
	concurrency     int
	timeout         time.Duration
	dualLayout      string
	dualGap         float64
	fontFile        string

	noLLM       bool
	callTimeout time.Duration
	maxAttempts int
	rps         float64
	burst       int
	tps         float64
	rateWait    time.Duration
	ignoreCache bool
	cacheFile   string
	cacheDB     string
	redisAddr   string
	redisPrefix string
	redisTTL    time.Duration
}

var tf translateFlags

var translateCmd = &cobra.Command{
	Use:   "translate <input.pdf>",
	Short: "Translate a PDF into mono and dual outputs",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranslate,
}

func init() {
	f := translateCmd.Flags()
	f.StringVarP(&tf.optionsFile, "config", "c", "", "options file (JSON or YAML)")

	f.StringVar(&tf.langIn, "lang-in", "", "source language, or \"auto\"")
	f.StringVar(&tf.langOut, "lang-out", "", "target language")
	f.BoolVar(&tf.noMono, "no-mono", false, "do not produce the mono PDF")
	f.BoolVar(&tf.noDual, "no-dual", false, "do not produce the dual PDF")
	f.BoolVar(&tf.alternating, "alternating", false, "dual PDF alternates original and translated pages")
	f.StringVar(&tf.watermark, "watermark", "", "watermark mode: no_watermark, watermarked, both")
	f.BoolVar(&tf.enhanceCompat, "enhance-compatibility", false, "skip source cleaning and translate before layout clean-up")
	f.BoolVar(&tf.ocrWorkaround, "ocr-workaround", false, "translate pages that look scanned")
	f.StringVar(&tf.workingDir, "working-dir", "", "directory for intermediate files")
	f.StringVarP(&tf.outputDir, "output", "o", "", "output directory (default: next to the input)")
	f.StringVar(&tf.pages, "pages", "", "pages to translate, e.g. \"1,3-5\"")
	f.IntVar(&tf.minTextLength, "min-text-length", 0, "skip regions shorter than this many characters")
	f.IntVar(&tf.concurrency, "concurrency", 0, "concurrent translation calls")
	f.DurationVar(&tf.timeout, "timeout", 0, "run timeout, 0 for none")
	f.StringVar(&tf.dualLayout, "dual-layout", "", "side-by-side layout: right or bottom")
	f.Float64Var(&tf.dualGap, "dual-gap", 0, "gap between original and translation, in points")
	f.StringVar(&tf.fontFile, "font", "", "TrueType font (.ttf/.ttc) for the translated text")

	f.BoolVar(&tf.noLLM, "no-llm", false, "disable the LLM fallback path")
	f.DurationVar(&tf.callTimeout, "call-timeout", translator.DefaultCallTimeout, "timeout of a single backend call")
	f.IntVar(&tf.maxAttempts, "max-attempts", translator.DefaultMaxAttempts, "attempts per backend path")
	f.Float64Var(&tf.rps, "rps", 0, "backend requests per second, 0 for unlimited")
	f.IntVar(&tf.burst, "burst", 1, "request burst size")
	f.Float64Var(&tf.tps, "tps", 0, "estimated tokens per second, 0 for unlimited")
	f.DurationVar(&tf.rateWait, "rate-wait", 0, "give up when the rate budget is not available within this time")
	f.BoolVar(&tf.ignoreCache, "ignore-cache", false, "neither read nor write the translation cache")
	f.StringVar(&tf.cacheFile, "cache-file", "", "JSON translation cache file")
	f.StringVar(&tf.cacheDB, "cache-db", "", "SQLite translation cache database")
	f.StringVar(&tf.redisAddr, "redis-addr", "", "Redis address for a shared translation cache")
	f.StringVar(&tf.redisPrefix, "redis-prefix", "", "Redis key prefix")
	f.DurationVar(&tf.redisTTL, "redis-ttl", 0, "Redis entry TTL, 0 for none")

	rootCmd.AddCommand(translateCmd)
}

// options merges the options file, the environment and the flags, in that
// order of precedence.
func (f *translateFlags) options(cmd *cobra.Command, input string) (config.Options, error) {
	opts, err := config.LoadOptions(f.optionsFile)
	if err != nil {
		return opts, err
	}
	opts.ApplyEnv()
	opts.InputFile = input

	changed := cmd.Flags().Changed
	if changed("lang-in") {
		opts.LangIn = f.langIn
	}
	if changed("lang-out") {
		opts.LangOut = f.langOut
	}
	if changed("no-mono") {
		opts.NoMono = f.noMono
	}
	if changed("no-dual") {
		opts.NoDual = f.noDual
	}
	if changed("alternating") {
		opts.UseAlternatingPagesDual = f.alternating
	}
	if changed("watermark") {
		opts.WatermarkOutputMode = f.watermark
	}
	if changed("enhance-compatibility") {
		opts.EnhanceCompatibility = f.enhanceCompat
	}
	if changed("ocr-workaround") {
		opts.OCRWorkaround = f.ocrWorkaround
	}
	if changed("working-dir") {
		opts.WorkingDir = f.workingDir
	}
	if changed("output") {
		opts.OutputDir = f.outputDir
	}
	if changed("pages") {
		opts.Pages = f.pages
	}
	if changed("min-text-length") {
		opts.MinTextLength = f.minTextLength
	}
	if changed("concurrency") {
		opts.Concurrency = f.concurrency
	}
	if changed("timeout") {
		opts.Timeout = config.Duration(f.timeout)
	}
	if changed("dual-layout") {
		opts.DualLayout = f.dualLayout
	}
	if changed("dual-gap") {
		opts.DualGap = f.dualGap
	}
	if changed("font") {
		opts.FontFile = f.fontFile
	}
	return opts, nil
}

func runTranslate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts, err := tf.options(cmd, args[0])
	if err != nil {
		return err
	}

	store, err := tf.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	adapter, err := tf.buildAdapter(ctx, store)
	if err != nil {
		return err
	}

	cfg, err := config.Resolve(opts, adapter)
	if err != nil {
		return err
	}

	orch := pipeline.New(pipeline.Deps{
		OnStatus: func(s pipeline.Status) {
			logger.Debug("status",
				logger.String("phase", string(s.Phase)),
				logger.Int("progress", s.Progress),
				logger.Int("completed", s.CompletedRegions),
				logger.Int("total", s.TotalRegions))
		},
	})

	result, err := orch.Translate(ctx, cfg)
	if err != nil {
		return err
	}

	stats := adapter.CacheStats()
	logger.Info("cache statistics",
		logger.Int64("hits", stats.Hits),
		logger.Int64("misses", stats.Misses),
		logger.Int64("shared", stats.Shared))

	if result.MonoPDFPath != "" {
		fmt.Printf("Mono: %s\n", result.MonoPDFPath)
	}
	if result.DualPDFPath != "" {
		fmt.Printf("Dual: %s\n", result.DualPDFPath)
	}
	return nil
}

func (f *translateFlags) openStore() (cache.Store, error) {
	switch {
	case f.redisAddr != "":
		return cache.NewRedisStore(cache.RedisConfig{
			Addr:     f.redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			Prefix:   f.redisPrefix,
			TTL:      f.redisTTL,
		})
	case f.cacheDB != "":
		return cache.NewSQLiteStore(f.cacheDB)
	case f.cacheFile != "":
		return cache.OpenFileStore(f.cacheFile)
	default:
		return cache.NewMemoryStore(), nil
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (f *translateFlags) buildAdapter(ctx context.Context, store cache.Store) (*translator.Adapter, error) {
	apiKey := os.Getenv(envOpenAIAPIKey)
	baseURL := os.Getenv(envOpenAIBaseURL)
	model := envOr(envOpenAIModel, defaultModel)

	limit := translator.RateLimit{
		RequestsPerSecond: f.rps,
		Burst:             f.burst,
		TokensPerSecond:   f.tps,
		WaitTimeout:       f.rateWait,
	}
	retry := translator.RetryPolicy{MaxAttempts: f.maxAttempts}

	opts := translator.Options{
		Plain: translator.Path{
			Backend: translator.NewHTTPBackend(translator.HTTPBackendConfig{
				APIKey:  apiKey,
				BaseURL: baseURL,
				Model:   model,
				Timeout: f.callTimeout,
			}),
			RateLimit: limit,
			Retry:     retry,
		},
		CallTimeout: f.callTimeout,
		IgnoreCache: f.ignoreCache,
		Store:       store,
	}

	if !f.noLLM && apiKey != "" {
		llm, err := translator.NewOpenAILLMBackend(ctx, translator.LLMConfig{
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   envOr(envLLMModel, model),
		})
		if err != nil {
			return nil, err
		}
		opts.LLM = &translator.Path{Backend: llm, RateLimit: limit, Retry: retry}
	}

	logger.Info("translator configured",
		logger.String("model", model),
		logger.Bool("llm", opts.LLM != nil),
		logger.Bool("ignoreCache", f.ignoreCache))
	return translator.New(opts)
}
