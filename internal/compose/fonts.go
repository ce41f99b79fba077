package compose

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/text/encoding/charmap"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// CoreFont is the base-14 font used for text WinAnsiEncoding can represent.
const CoreFont = "Helvetica"

// bundledFontKey 内置 Go Regular 字体（拉丁、希腊、西里尔字母）
const bundledFontKey = "bundled:goregular"

// FontConfig selects the fonts tried for translated text.
type FontConfig struct {
	// File is a TrueType font or collection tried before any other font.
	File string
	// Dirs are searched for CJK fonts. Nil uses DefaultFontDirs.
	Dirs []string
}

// DefaultFontDirs returns the usual system font directories.
func DefaultFontDirs() []string {
	dirs := []string{"/usr/share/fonts", "/usr/local/share/fonts", "/Library/Fonts", "/System/Library/Fonts"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, ".fonts"),
			filepath.Join(home, ".local", "share", "fonts"),
			filepath.Join(home, "Library", "Fonts"))
	}
	if win := os.Getenv("WINDIR"); win != "" {
		dirs = append(dirs, filepath.Join(win, "Fonts"))
	}
	return dirs
}

// 常见 CJK 字体的文件名前缀（小写）
var cjkFontPrefixes = []string{
	"notosanssc", "notosanstc", "notosansjp", "notosanskr", "notosanscjk", "notoserifcjk",
	"sourcehansans", "sourcehanserif",
	"wqy-microhei", "wqy-zenhei", "droidsansfallback", "uming", "ukai",
	"simsun", "simhei", "msyh", "pingfang", "arialuni",
}

// FontSet picks a font able to draw a given text.
type FontSet struct {
	cfg FontConfig
}

func NewFontSet(cfg FontConfig) *FontSet {
	return &FontSet{cfg: cfg}
}

// Pick returns the name of the first font covering every printable rune of
// text: the configured font, Helvetica, the bundled font, then system CJK
// fonts. No covering font is a CompositionFailure, text is never drawn with
// missing glyphs.
func (s *FontSet) Pick(text string) (string, error) {
	if s.cfg.File != "" {
		names, err := registry.installFile(s.cfg.File)
		if err != nil {
			return "", types.NewAppErrorWithDetails(types.ErrCompositionFailure, "cannot load font file", s.cfg.File, err)
		}
		if name, ok := covering(names, text); ok {
			return name, nil
		}
	}

	if winAnsi(text) {
		return CoreFont, nil
	}

	names, err := registry.installBytes(bundledFontKey, goregular.TTF)
	if err != nil {
		logger.Warn("failed to install bundled font", logger.Err(err))
	} else if name, ok := covering(names, text); ok {
		return name, nil
	}

	dirs := s.cfg.Dirs
	if dirs == nil {
		dirs = DefaultFontDirs()
	}
	for _, path := range registry.discover(dirs) {
		names, err := registry.installFile(path)
		if err != nil {
			continue
		}
		if name, ok := covering(names, text); ok {
			return name, nil
		}
	}

	r := firstUncovered(text)
	return "", types.NewAppErrorWithDetails(types.ErrCompositionFailure, "no font covers the translated text",
		fmt.Sprintf("no installed font has a glyph for %U %q, set font_file to a font that does", r, r), nil)
}

// winAnsi reports whether every rune of text is representable in the
// WinAnsiEncoding used for the core font.
func winAnsi(text string) bool {
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok || b < 0x20 {
			return false
		}
	}
	return true
}

func covers(name, text string) bool {
	font.UserFontMetricsLock.RLock()
	defer font.UserFontMetricsLock.RUnlock()

	ttf, ok := font.UserFontMetrics[name]
	if !ok {
		return false
	}
	for _, r := range text {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			continue
		}
		if _, ok := ttf.Chars[uint32(r)]; !ok {
			return false
		}
	}
	return true
}

func covering(names []string, text string) (string, bool) {
	for _, name := range names {
		if covers(name, text) {
			return name, true
		}
	}
	return "", false
}

func firstUncovered(text string) rune {
	for _, r := range text {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			continue
		}
		if b, ok := charmap.Windows1252.EncodeRune(r); !ok || b < 0x20 {
			return r
		}
	}
	return unicode.ReplacementChar
}

// fontRegistry installs fonts into pdfcpu's process wide user font dir once.
type fontRegistry struct {
	mu        sync.Mutex
	dir       string
	installed map[string][]string
	failed    map[string]error
	scanned   map[string][]string
}

var registry = &fontRegistry{
	installed: map[string][]string{},
	failed:    map[string]error{},
	scanned:   map[string][]string{},
}

// ensureDir points pdfcpu at a writable font dir. Must hold r.mu.
func (r *fontRegistry) ensureDir() error {
	if r.dir != "" {
		return nil
	}
	dir := font.UserFontDir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		dir = filepath.Join(base, "pdf-translator", "fonts")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create font dir: %w", err)
	}
	font.UserFontDir = dir
	r.dir = dir
	return nil
}

func (r *fontRegistry) installFile(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if names, ok := r.installed[abs]; ok {
		return names, nil
	}
	if err, ok := r.failed[abs]; ok {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		r.failed[abs] = err
		return nil, err
	}
	names, err := r.install(abs, data, func(dir string) error {
		if isCollection(data) {
			return font.InstallTrueTypeCollection(dir, abs)
		}
		return font.InstallTrueTypeFont(dir, abs)
	})
	if err != nil {
		logger.Warn("failed to install font", logger.String("path", abs), logger.Err(err))
		r.failed[abs] = err
		return nil, err
	}
	return names, nil
}

func (r *fontRegistry) installBytes(key string, data []byte) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if names, ok := r.installed[key]; ok {
		return names, nil
	}
	if err, ok := r.failed[key]; ok {
		return nil, err
	}

	names, err := r.install(key, data, func(dir string) error {
		return font.InstallFontFromBytes(dir, key, data)
	})
	if err != nil {
		r.failed[key] = err
		return nil, err
	}
	return names, nil
}

// install runs fn unless every face of data is already installed, then
// returns the face names pdfcpu knows the font by. Must hold r.mu.
func (r *fontRegistry) install(key string, data []byte, fn func(dir string) error) ([]string, error) {
	if err := r.ensureDir(); err != nil {
		return nil, err
	}
	names, err := postScriptNames(data)
	if err != nil {
		return nil, err
	}

	missing := false
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(r.dir, name+".gob")); err != nil {
			missing = true
			break
		}
	}
	if missing {
		if err := fn(r.dir); err != nil {
			return nil, err
		}
	}
	if missing || !allUserFonts(names) {
		if err := font.LoadUserFonts(); err != nil {
			return nil, err
		}
	}

	var usable []string
	for _, name := range names {
		if font.IsUserFont(name) {
			usable = append(usable, name)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("font %s has no usable face", key)
	}
	r.installed[key] = usable
	logger.Debug("font installed", logger.String("font", key), logger.Any("faces", usable))
	return usable, nil
}

func allUserFonts(names []string) bool {
	for _, name := range names {
		if !font.IsUserFont(name) {
			return false
		}
	}
	return true
}

// discover lists CJK font files under dirs in a stable order.
func (r *fontRegistry) discover(dirs []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, dir := range dirs {
		files, ok := r.scanned[dir]
		if !ok {
			files = scanFontDir(dir)
			r.scanned[dir] = files
		}
		out = append(out, files...)
	}
	return out
}

func scanFontDir(dir string) []string {
	var files []string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		ext := filepath.Ext(name)
		if ext != ".ttf" && ext != ".ttc" {
			return nil
		}
		for _, prefix := range cjkFontPrefixes {
			if strings.HasPrefix(name, prefix) {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	sort.Strings(files)
	return files
}

func isCollection(data []byte) bool {
	return bytes.HasPrefix(data, []byte("ttcf"))
}

func postScriptNames(data []byte) ([]string, error) {
	var fonts []*sfnt.Font
	if isCollection(data) {
		c, err := sfnt.ParseCollection(data)
		if err != nil {
			return nil, fmt.Errorf("invalid font collection: %w", err)
		}
		for i := 0; i < c.NumFonts(); i++ {
			f, err := c.Font(i)
			if err != nil {
				return nil, fmt.Errorf("invalid font collection: %w", err)
			}
			fonts = append(fonts, f)
		}
	} else {
		f, err := sfnt.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("invalid font: %w", err)
		}
		fonts = append(fonts, f)
	}

	var buf sfnt.Buffer
	names := make([]string, 0, len(fonts))
	for _, f := range fonts {
		name, err := f.Name(&buf, sfnt.NameIDPostScript)
		if err != nil || name == "" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("font has no PostScript name")
	}
	return names, nil
}
