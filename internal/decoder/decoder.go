// Package decoder turns raw RFC 822 bytes into a normalized plain-text body
// plus extractable attachments. It never fails on bad charsets: declared
// charsets are resolved when possible, everything else runs through a
// fallback chain of legacy single-byte encodings before the default encoding
// is forced with replacement characters.
package decoder

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime"
	stdmail "net/mail"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	htmlcharset "golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/avreyn/mailtriage/internal/matchers"
	"github.com/avreyn/mailtriage/pkg/models"
)

func init() {
	message.CharsetReader = func(cs string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(cs, input)
	}
}

// Decoded is the normalized view of one message.
type Decoded struct {
	MessageID   string
	FromAddr    string
	FromName    string
	Subject     string
	Date        time.Time
	Text        string
	Attachments []models.Attachment
}

// Options configure decoding and the post-decode text filters.
type Options struct {
	ExcludeAttachments bool
	ExcludePatterns    []string
	StructuralFilter   bool
	LinkFilter         bool
	SeparatorPatterns  []string
	MaxBlankLines      int
}

// Decoder decodes raw messages.
type Decoder struct {
	opts       Options
	html       *HTMLConverter
	separators []*regexp.Regexp
	logger     *slog.Logger
}

// New creates a Decoder. Separator patterns must be valid regexes.
func New(opts Options, logger *slog.Logger) (*Decoder, error) {
	if opts.MaxBlankLines < 1 {
		opts.MaxBlankLines = 2
	}
	var separators []*regexp.Regexp
	for _, pat := range opts.SeparatorPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("invalid separator pattern %q: %w", pat, err)
		}
		separators = append(separators, re)
	}
	return &Decoder{
		opts:       opts,
		html:       NewHTMLConverter(opts.StructuralFilter),
		separators: separators,
		logger:     logger.With("component", "decoder"),
	}, nil
}

// Decode parses raw bytes into a Decoded message. The body is picked as
// plain text first, converted HTML second, raw content with an HTML sniff
// last.
func (d *Decoder) Decode(raw []byte) (*Decoded, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		mr = nil
	}
	if mr == nil {
		return d.decodeRaw(raw)
	}

	dec := &Decoded{}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		dec.FromAddr = from[0].Address
		dec.FromName = from[0].Name
	}
	dec.Subject, _ = mr.Header.Subject()
	dec.MessageID, _ = mr.Header.MessageID()
	dec.Date, _ = mr.Header.Date()

	var plain, htmlBody string
	parts := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			d.logger.Debug("stopping part walk", "error", err)
			break
		}
		if part == nil {
			break
		}
		parts++

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			text := decodeText(body)
			switch {
			case strings.HasPrefix(ct, "text/plain") && plain == "":
				plain = text
			case strings.HasPrefix(ct, "text/html") && htmlBody == "":
				htmlBody = text
			}
		case *mail.AttachmentHeader:
			if att := d.extractAttachment(h, part.Body); att != nil {
				dec.Attachments = append(dec.Attachments, *att)
			}
		}
	}

	if parts == 0 {
		// The MIME walk produced nothing usable (broken multipart, bodyless
		// message). Fall back to treating the raw content as the body.
		if fallback, err := d.decodeRaw(raw); err == nil {
			return fallback, nil
		}
		dec.Text = ""
		return dec, nil
	}

	dec.Text = d.finishText(d.selectBody(plain, htmlBody))
	return dec, nil
}

// decodeRaw is the last-resort path for messages the MIME reader rejects:
// headers via net/mail, the whole body as text with an HTML sniff.
func (d *Decoder) decodeRaw(raw []byte) (*Decoded, error) {
	msg, err := stdmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unreadable message: %w", err)
	}

	dec := &Decoded{}
	wd := new(mime.WordDecoder)
	if from, err := stdmail.ParseAddress(msg.Header.Get("From")); err == nil {
		dec.FromAddr = from.Address
		dec.FromName = from.Name
	}
	if s, err := wd.DecodeHeader(msg.Header.Get("Subject")); err == nil {
		dec.Subject = s
	} else {
		dec.Subject = msg.Header.Get("Subject")
	}
	dec.MessageID = strings.Trim(msg.Header.Get("Message-Id"), "<> ")
	dec.Date, _ = msg.Header.Date()

	body, _ := io.ReadAll(msg.Body)
	text := decodeText(body)
	if looksLikeHTML(text) {
		if converted, err := d.html.ToText(text); err == nil {
			text = converted
		} else {
			text = d.html.Scrub(text)
		}
	}
	dec.Text = d.finishText(text)
	return dec, nil
}

func (d *Decoder) selectBody(plain, htmlBody string) string {
	switch {
	case plain != "":
		return plain
	case htmlBody != "":
		converted, err := d.html.ToText(htmlBody)
		if err != nil {
			d.logger.Debug("html conversion failed, stripping instead", "error", err)
			return d.html.Scrub(htmlBody)
		}
		return converted
	default:
		return ""
	}
}

func (d *Decoder) extractAttachment(h *mail.AttachmentHeader, body io.Reader) *models.Attachment {
	filename, _ := h.Filename()
	if filename == "" {
		return nil
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return nil
	}
	if d.opts.ExcludeAttachments && matchers.AnyGlob(d.opts.ExcludePatterns, filename) {
		d.logger.Debug("attachment excluded by pattern", "filename", filename)
		return nil
	}

	ctype, _, _ := h.ContentType()
	if ctype == "" || ctype == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
			ctype = byExt
		}
	}
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	return &models.Attachment{Filename: filename, ContentType: ctype, Data: data}
}

// finishText runs the configured text filters, then normalizes whitespace.
func (d *Decoder) finishText(text string) string {
	if len(d.separators) > 0 {
		text = truncateAtSeparator(text, d.separators)
	}
	if d.opts.LinkFilter {
		text = rewriteLinks(text)
	}
	return normalizeText(text, d.opts.MaxBlankLines)
}

// decodeText returns valid UTF-8 for arbitrary bytes: UTF-8 as-is, then
// Windows-1252 and ISO-8859-1 in order, then forced UTF-8 with replacement
// runes. An ordered strategy list, first success wins.
func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	legacy := []*encoding.Decoder{
		charmap.Windows1252.NewDecoder(),
		charmap.ISO8859_1.NewDecoder(),
	}
	for _, dec := range legacy {
		if out, err := dec.Bytes(b); err == nil && utf8.Valid(out) {
			return string(out)
		}
	}
	return strings.ToValidUTF8(string(b), "�")
}

var htmlSniffRe = regexp.MustCompile(`(?i)<\s*(!doctype|html|head|body|div|p|br|table|span|a)\b`)

func looksLikeHTML(s string) bool {
	return htmlSniffRe.MatchString(s)
}
