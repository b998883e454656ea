package decoder

import (
	"encoding/hex"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// quoteSelectors are the quote/signature container markers removed by the
// structural filter. Collected from the usual suspects: Gmail, Thunderbird,
// Yahoo, Outlook, Proton.
const quoteSelectors = `blockquote[type="cite"], .gmail_quote, .gmail_signature, .moz-cite-prefix, .moz-signature, .yahoo_quoted, #divRplyFwdMsg, .ms-outlook-mobile-signature, .protonmail_quote, .signature`

// blockSelectors are elements whose boundary becomes a newline.
const blockSelectors = `p, div, br, h1, h2, h3, h4, h5, h6, li, tr, blockquote, pre`

// HTMLConverter converts HTML bodies to plain text.
type HTMLConverter struct {
	structural bool

	tagRe      *regexp.Regexp
	attrRe     *regexp.Regexp
	percentRe  *regexp.Regexp
	cssBlockRe *regexp.Regexp
	cssDeclRe  *regexp.Regexp
}

// NewHTMLConverter creates a converter. structural enables removal of known
// quote/signature containers during conversion.
func NewHTMLConverter(structural bool) *HTMLConverter {
	return &HTMLConverter{
		structural: structural,
		tagRe:      regexp.MustCompile(`(?s)<[^<>]*>`),
		attrRe:     regexp.MustCompile(`[A-Za-z-]+="[^"]*"`),
		percentRe:  regexp.MustCompile(`%[0-9A-Fa-f]{2}`),
		cssBlockRe: regexp.MustCompile(`(?s)[.#]?[-\w]+(?:\s*[,>]\s*[.#]?[-\w]+)*\s*\{[^{}]*:[^{}]*\}`),
		cssDeclRe:  regexp.MustCompile(`(?i)[\w-]+\s*:\s*[^;{}\n]*!important\s*;?|font-family\s*:\s*[^;{}\n]+;?|width\s*:\s*\d[^;{}\n]*;?`),
	}
}

// ToText converts an HTML document to plain text: script/style/comment
// content dropped, block boundaries turned into newlines, then the residual
// scrub pass.
func (c *HTMLConverter) ToText(src string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link, title").Remove()
	if c.structural {
		doc.Find(quoteSelectors).Remove()
	}

	doc.Find(blockSelectors).Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	return c.Scrub(doc.Text()), nil
}

// Scrub removes what the parse left behind: it decodes HTML and
// percent-encoded entities, strips remaining angle-bracket tags and quoted
// attribute fragments in two passes (the second pass catches tags exposed by
// the first), and scrubs residual inline CSS. Scrub is idempotent on its own
// output.
func (c *HTMLConverter) Scrub(text string) string {
	text = html.UnescapeString(text)
	text = c.percentRe.ReplaceAllStringFunc(text, decodePercent)

	for i := 0; i < 2; i++ {
		text = c.tagRe.ReplaceAllString(text, "")
		text = c.attrRe.ReplaceAllString(text, "")
	}

	text = c.cssBlockRe.ReplaceAllString(text, "")
	text = c.cssDeclRe.ReplaceAllString(text, "")
	return text
}

// decodePercent decodes a single %XX escape, keeping it verbatim unless it
// maps to printable ASCII.
func decodePercent(m string) string {
	b, err := hex.DecodeString(m[1:])
	if err != nil || len(b) != 1 {
		return m
	}
	if b[0] < 0x20 || b[0] >= 0x7f {
		return m
	}
	return string(b)
}
