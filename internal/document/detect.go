package document

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// ScanDetector decides whether a page is a scanned image without a usable
// text layer.
type ScanDetector interface {
	IsScanned(p Page) bool
}

// HeuristicScanDetector 含图片且文本字符数少于 MinTextChars 的页面视为扫描页
type HeuristicScanDetector struct {
	MinTextChars int
}

func (d HeuristicScanDetector) IsScanned(p Page) bool {
	minChars := d.MinTextChars
	if minChars <= 0 {
		minChars = 20
	}
	return p.ImageCount > 0 && p.TextLength() < minChars
}

// DetectLanguage returns the ISO 639-1 code of the document's text and
// whether the detection is confident.
func DetectLanguage(doc *Document) (string, bool) {
	text := doc.Text()
	if len(strings.TrimSpace(text)) == 0 {
		return "", false
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return "", false
	}
	return code, info.Confidence >= 0.5
}

// PageSelection is a set of 1-based page ranges such as "1,3-5".
// The zero value selects every page.
type PageSelection struct {
	ranges [][2]int
}

// ParsePageSelection parses "1,3-5,8-". An empty string selects all pages.
func ParsePageSelection(s string) (PageSelection, error) {
	var sel PageSelection
	s = strings.TrimSpace(s)
	if s == "" {
		return sel, nil
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return PageSelection{}, fmt.Errorf("empty page range in %q", s)
		}

		lo, hi := part, part
		if i := strings.Index(part, "-"); i >= 0 {
			lo, hi = strings.TrimSpace(part[:i]), strings.TrimSpace(part[i+1:])
		}

		from, err := strconv.Atoi(lo)
		if err != nil || from < 1 {
			return PageSelection{}, fmt.Errorf("invalid page number %q", lo)
		}
		to := int(^uint(0) >> 1)
		if hi != "" {
			to, err = strconv.Atoi(hi)
			if err != nil || to < from {
				return PageSelection{}, fmt.Errorf("invalid page range %q", part)
			}
		}
		sel.ranges = append(sel.ranges, [2]int{from, to})
	}

	sort.Slice(sel.ranges, func(i, j int) bool { return sel.ranges[i][0] < sel.ranges[j][0] })
	return sel, nil
}

// All reports whether every page is selected.
func (s PageSelection) All() bool {
	return len(s.ranges) == 0
}

// Contains reports whether the page with 0-based index is selected.
func (s PageSelection) Contains(index int) bool {
	if s.All() {
		return true
	}
	n := index + 1
	for _, r := range s.ranges {
		if n >= r[0] && n <= r[1] {
			return true
		}
	}
	return false
}

func (s PageSelection) String() string {
	if s.All() {
		return ""
	}
	parts := make([]string, 0, len(s.ranges))
	for _, r := range s.ranges {
		switch {
		case r[0] == r[1]:
			parts = append(parts, strconv.Itoa(r[0]))
		case r[1] == int(^uint(0)>>1):
			parts = append(parts, fmt.Sprintf("%d-", r[0]))
		default:
			parts = append(parts, fmt.Sprintf("%d-%d", r[0], r[1]))
		}
	}
	return strings.Join(parts, ",")
}
