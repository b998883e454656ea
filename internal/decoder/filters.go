package decoder

import (
	"regexp"
	"strings"
)

var (
	markdownLinkRe = regexp.MustCompile(`\[([^\]\n]+)\]\((https?://[^)\s]+)\)`)
	backtickURLRe  = regexp.MustCompile("`(https?://[^`\\s]+)`")
)

// truncateAtSeparator cuts the text at the earliest reply-boundary match of
// any configured pattern. Everything after a boundary is quoted history.
func truncateAtSeparator(text string, separators []*regexp.Regexp) string {
	cut := -1
	for _, re := range separators {
		if loc := re.FindStringIndex(text); loc != nil && (cut == -1 || loc[0] < cut) {
			cut = loc[0]
		}
	}
	if cut >= 0 {
		return text[:cut]
	}
	return text
}

// rewriteLinks folds markdown-style links and backtick-wrapped bare URLs
// into one display form.
func rewriteLinks(text string) string {
	text = markdownLinkRe.ReplaceAllString(text, "$1 <$2>")
	text = backtickURLRe.ReplaceAllString(text, "<$1>")
	return text
}

// normalizeText makes line terminators uniform, trims per-line whitespace
// and caps runs of blank lines at maxBlank without destroying paragraphs.
func normalizeText(text string, maxBlank int) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			blanks++
			if blanks > maxBlank {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
