// Package config loads translation options and resolves them into a frozen Config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"pdf-translator/internal/compose"
	"pdf-translator/internal/document"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/translator"
	"pdf-translator/internal/types"
)

const (
	// DefaultLangIn is the default source language
	DefaultLangIn = "en"
	// DefaultLangOut is the default target language
	DefaultLangOut = "zh"
	// LangAuto asks for source language detection
	LangAuto = "auto"
	// DefaultConcurrency is the default number of concurrent translation calls
	DefaultConcurrency = 3
	// DefaultWorkDirName is created under the system temp dir when no working dir is set
	DefaultWorkDirName = "pdf-translator"

	// EnvLangIn is the environment variable for the source language
	EnvLangIn = "PDFTRANS_LANG_IN"
	// EnvLangOut is the environment variable for the target language
	EnvLangOut = "PDFTRANS_LANG_OUT"
	// EnvOutputDir is the environment variable for the output directory
	EnvOutputDir = "PDFTRANS_OUTPUT_DIR"
	// EnvFontFile is the environment variable for the translation font
	EnvFontFile = "PDFTRANS_FONT_FILE"
)

// Duration is a time.Duration read from strings such as "90s" or "5m".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "0" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Options 原始配置项，来自配置文件、环境变量或命令行
type Options struct {
	InputFile               string   `json:"input_file" yaml:"input_file"`
	LangIn                  string   `json:"lang_in" yaml:"lang_in"`
	LangOut                 string   `json:"lang_out" yaml:"lang_out"`
	NoMono                  bool     `json:"no_mono" yaml:"no_mono"`
	NoDual                  bool     `json:"no_dual" yaml:"no_dual"`
	UseAlternatingPagesDual bool     `json:"use_alternating_pages_dual" yaml:"use_alternating_pages_dual"`
	WatermarkOutputMode     string   `json:"watermark_output_mode" yaml:"watermark_output_mode"`
	EnhanceCompatibility    bool     `json:"enhance_compatibility" yaml:"enhance_compatibility"`
	OCRWorkaround           bool     `json:"ocr_workaround" yaml:"ocr_workaround"`
	WorkingDir              string   `json:"working_dir" yaml:"working_dir"`
	OutputDir               string   `json:"output_dir" yaml:"output_dir"`
	Pages                   string   `json:"pages" yaml:"pages"`
	MinTextLength           int      `json:"min_text_length" yaml:"min_text_length"`
	Concurrency             int      `json:"concurrency" yaml:"concurrency"`
	Timeout                 Duration `json:"timeout" yaml:"timeout"`
	DualLayout              string   `json:"dual_layout" yaml:"dual_layout"`
	DualGap                 float64  `json:"dual_gap" yaml:"dual_gap"`
	// FontFile is a TrueType font (.ttf/.ttc) for the translated text.
	FontFile                string   `json:"font_file" yaml:"font_file"`
	// FontDirs replaces the system font directories searched for CJK fonts.
	FontDirs                []string `json:"font_dirs" yaml:"font_dirs"`
}

// DefaultOptions returns Options with default values
func DefaultOptions() Options {
	return Options{
		LangIn:              DefaultLangIn,
		LangOut:             DefaultLangOut,
		WatermarkOutputMode: string(types.Watermarked),
		Concurrency:         DefaultConcurrency,
		DualLayout:          compose.AreaRight.String(),
	}
}

// LoadOptions reads options from a JSON or YAML file (by extension).
// A missing file yields the defaults; fields absent from the file keep
// their default values.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("options file not found, using defaults", logger.String("path", path))
			return opts, nil
		}
		logger.Error("failed to read options file", err, logger.String("path", path))
		return opts, types.NewAppError(types.ErrInvalidConfiguration, "failed to read options file", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &opts)
	default:
		err = json.Unmarshal(data, &opts)
	}
	if err != nil {
		logger.Error("invalid options file format", err, logger.String("path", path))
		return DefaultOptions(), types.NewAppError(types.ErrInvalidConfiguration, "invalid options file format", err)
	}

	logger.Debug("options loaded", logger.String("path", path))
	return opts, nil
}

// ApplyEnv overrides language and output fields from the environment.
// Command line flags are applied after it and win.
func (o *Options) ApplyEnv() {
	if v := os.Getenv(EnvLangIn); v != "" {
		o.LangIn = v
	}
	if v := os.Getenv(EnvLangOut); v != "" {
		o.LangOut = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		o.OutputDir = v
	}
	if v := os.Getenv(EnvFontFile); v != "" {
		o.FontFile = v
	}
}

// callTimeouter is implemented by translators with a per-call timeout.
type callTimeouter interface {
	CallTimeout() time.Duration
}

// Config 冻结后的运行配置，只能通过 Resolve 创建
type Config struct {
	inputFile     string
	langIn        string
	langOut       string
	translator    translator.Translator
	noMono        bool
	noDual        bool
	alternating   bool
	watermark     types.WatermarkMode
	enhanceCompat bool
	ocrWorkaround bool
	workingDir    string
	outputDir     string
	pages         document.PageSelection
	minTextLength int
	concurrency   int
	timeout       time.Duration
	layout        compose.Layout
	fonts         compose.FontConfig

	// derived
	skipClean            bool
	dualTranslateFirst   bool
	skipScannedDetection bool
}

func invalid(message string, err error) error {
	return types.NewAppError(types.ErrInvalidConfiguration, message, err)
}

func invalidf(message, format string, args ...interface{}) error {
	return types.NewAppErrorWithDetails(types.ErrInvalidConfiguration, message, fmt.Sprintf(format, args...), nil)
}

// Resolve validates opts and freezes them together with the translator.
// Every failure is an InvalidConfiguration error.
func Resolve(opts Options, tr translator.Translator) (*Config, error) {
	if opts.NoMono && opts.NoDual {
		return nil, invalidf("no output requested", "no_mono and no_dual are both set")
	}
	if tr == nil {
		return nil, invalidf("translator is required", "no translator configured")
	}

	input, err := checkInput(opts.InputFile)
	if err != nil {
		return nil, err
	}

	langIn, err := normalizeLang(opts.LangIn, DefaultLangIn, true)
	if err != nil {
		return nil, invalid("invalid lang_in", err)
	}
	langOut, err := normalizeLang(opts.LangOut, DefaultLangOut, false)
	if err != nil {
		return nil, invalid("invalid lang_out", err)
	}

	pages, err := document.ParsePageSelection(opts.Pages)
	if err != nil {
		return nil, invalid("invalid pages", err)
	}

	watermark, err := types.ParseWatermarkMode(opts.WatermarkOutputMode)
	if err != nil {
		return nil, invalid("invalid watermark_output_mode", err)
	}

	area, err := compose.ParseArea(strings.ToLower(strings.TrimSpace(opts.DualLayout)))
	if err != nil {
		return nil, invalid("invalid dual_layout", err)
	}
	if opts.DualGap < 0 {
		return nil, invalidf("invalid dual_gap", "dual_gap must not be negative, got %g", opts.DualGap)
	}

	fontFile, err := checkFontFile(opts.FontFile)
	if err != nil {
		return nil, err
	}

	if opts.MinTextLength < 0 {
		return nil, invalidf("invalid min_text_length", "must not be negative, got %d", opts.MinTextLength)
	}
	concurrency := opts.Concurrency
	if concurrency < 0 {
		return nil, invalidf("invalid concurrency", "must not be negative, got %d", concurrency)
	}
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}

	timeout := time.Duration(opts.Timeout)
	if timeout < 0 {
		return nil, invalidf("invalid timeout", "must not be negative, got %s", timeout)
	}
	if ct, ok := tr.(callTimeouter); ok && timeout > 0 && timeout <= ct.CallTimeout() {
		return nil, invalidf("invalid timeout",
			"run timeout %s must be longer than the translator call timeout %s", timeout, ct.CallTimeout())
	}

	workingDir := opts.WorkingDir
	if workingDir == "" {
		workingDir = filepath.Join(os.TempDir(), DefaultWorkDirName)
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(input)
	}

	cfg := &Config{
		inputFile:     input,
		langIn:        langIn,
		langOut:       langOut,
		translator:    tr,
		noMono:        opts.NoMono,
		noDual:        opts.NoDual,
		alternating:   opts.UseAlternatingPagesDual,
		watermark:     watermark,
		enhanceCompat: opts.EnhanceCompatibility,
		ocrWorkaround: opts.OCRWorkaround,
		workingDir:    workingDir,
		outputDir:     outputDir,
		pages:         pages,
		minTextLength: opts.MinTextLength,
		concurrency:   concurrency,
		timeout:       timeout,
		layout:        compose.Layout{Area: area, Gap: opts.DualGap},
		fonts:         compose.FontConfig{File: fontFile, Dirs: opts.FontDirs},

		skipClean:            opts.EnhanceCompatibility,
		dualTranslateFirst:   opts.EnhanceCompatibility,
		skipScannedDetection: opts.OCRWorkaround,
	}

	logger.Debug("configuration resolved",
		logger.String("input", cfg.inputFile),
		logger.String("langIn", cfg.langIn),
		logger.String("langOut", cfg.langOut),
		logger.String("watermark", string(cfg.watermark)),
		logger.Bool("skipClean", cfg.skipClean),
		logger.Bool("dualTranslateFirst", cfg.dualTranslateFirst),
		logger.Bool("skipScannedDetection", cfg.skipScannedDetection))
	return cfg, nil
}

func checkInput(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", invalidf("input file is required", "input_file is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", invalid("invalid input file path", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", invalid("input file not accessible", err)
	}
	if info.IsDir() {
		return "", invalidf("input file not accessible", "%s is a directory", abs)
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", invalid("input file not readable", err)
	}
	f.Close()
	return abs, nil
}

func checkFontFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", invalid("invalid font_file", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", invalid("font_file not accessible", err)
	}
	if info.IsDir() {
		return "", invalidf("font_file not accessible", "%s is a directory", abs)
	}
	return abs, nil
}

// normalizeLang returns the canonical BCP 47 form of s.
func normalizeLang(s, def string, allowAuto bool) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = def
	}
	if strings.EqualFold(s, LangAuto) {
		if !allowAuto {
			return "", fmt.Errorf("%q is only valid as a source language", LangAuto)
		}
		return LangAuto, nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", fmt.Errorf("unknown language %q: %w", s, err)
	}
	return tag.String(), nil
}

func (c *Config) InputFile() string                  { return c.inputFile }
func (c *Config) LangIn() string                     { return c.langIn }
func (c *Config) LangOut() string                    { return c.langOut }
func (c *Config) Translator() translator.Translator  { return c.translator }
func (c *Config) NoMono() bool                       { return c.noMono }
func (c *Config) NoDual() bool                       { return c.noDual }
func (c *Config) UseAlternatingPagesDual() bool      { return c.alternating }
func (c *Config) WatermarkMode() types.WatermarkMode { return c.watermark }
func (c *Config) EnhanceCompatibility() bool         { return c.enhanceCompat }
func (c *Config) OCRWorkaround() bool                { return c.ocrWorkaround }
func (c *Config) WorkingDir() string                 { return c.workingDir }
func (c *Config) OutputDir() string                  { return c.outputDir }
func (c *Config) Pages() document.PageSelection      { return c.pages }
func (c *Config) MinTextLength() int                 { return c.minTextLength }
func (c *Config) Concurrency() int                   { return c.concurrency }
func (c *Config) Timeout() time.Duration             { return c.timeout }
func (c *Config) DualLayout() compose.Layout         { return c.layout }
func (c *Config) Fonts() compose.FontConfig          { return c.fonts }

// SkipClean is set by enhance_compatibility.
func (c *Config) SkipClean() bool { return c.skipClean }

// DualTranslateFirst is set by enhance_compatibility.
func (c *Config) DualTranslateFirst() bool { return c.dualTranslateFirst }

// SkipScannedDetection is set by ocr_workaround.
func (c *Config) SkipScannedDetection() bool { return c.skipScannedDetection }

// ComposeOptions returns the composer options of this configuration.
func (c *Config) ComposeOptions() compose.Options {
	mode := compose.DualSideBySide
	if c.alternating {
		mode = compose.DualAlternating
	}
	return compose.Options{DualMode: mode, Watermark: c.watermark, Layout: c.layout, Fonts: c.fonts}
}
