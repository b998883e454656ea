package decoder

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDecoder(t *testing.T, opts Options) *Decoder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := New(opts, logger)
	require.NoError(t, err)
	return d
}

func TestDecodePlainTextRoundTrip(t *testing.T) {
	raw := []byte("From: Alice Smith <alice@example.com>\r\n" +
		"To: intake@example.com\r\n" +
		"Subject: Re: Build [#123] done\r\n" +
		"Message-Id: <m1@example.com>\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"first li=\r\nne\r\n\r\n\r\n\r\nsecond paragraph\r\n")

	d := testDecoder(t, Options{MaxBlankLines: 2})
	dec, err := d.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", dec.FromAddr)
	assert.Equal(t, "Alice Smith", dec.FromName)
	assert.Equal(t, "Re: Build [#123] done", dec.Subject)
	assert.Equal(t, "m1@example.com", dec.MessageID)
	assert.Equal(t, 2006, dec.Date.Year())

	// Soft break removed, terminators uniform, blank runs capped at two.
	assert.Contains(t, dec.Text, "first line")
	assert.Contains(t, dec.Text, "second paragraph")
	assert.NotContains(t, dec.Text, "=\n")
	assert.NotContains(t, dec.Text, "\r")
	assert.NotContains(t, dec.Text, "\n\n\n\n")
}

func TestDecodeHTMLBody(t *testing.T) {
	raw := []byte("From: bob@example.com\r\n" +
		"Subject: hello\r\n" +
		"Message-Id: <m2@example.com>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><head><style>.x{color:red;}</style></head>" +
		"<body><p>Hello <b>World</b> &amp; friends</p>" +
		"<script>evil()</script>" +
		"<blockquote class=\"gmail_quote\">quoted history</blockquote>" +
		"</body></html>\r\n")

	d := testDecoder(t, Options{StructuralFilter: true, MaxBlankLines: 2})
	dec, err := d.Decode(raw)
	require.NoError(t, err)

	assert.Contains(t, dec.Text, "Hello World & friends")
	assert.NotContains(t, dec.Text, "evil()")
	assert.NotContains(t, dec.Text, "color:red")
	assert.NotContains(t, dec.Text, "quoted history")
}

func TestDecodeMultipartWithAttachments(t *testing.T) {
	raw := []byte("From: carol@example.com\r\n" +
		"Subject: report attached\r\n" +
		"Message-Id: <m3@example.com>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=BOUND\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"see attachment\r\n" +
		"--BOUND\r\n" +
		"Content-Type: application/octet-stream\r\n" +
		"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"JVBERi0xLjQ=\r\n" +
		"--BOUND\r\n" +
		"Content-Type: image/png\r\n" +
		"Content-Disposition: attachment; filename=\"logo.png\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"aVBORw==\r\n" +
		"--BOUND--\r\n")

	d := testDecoder(t, Options{
		ExcludeAttachments: true,
		ExcludePatterns:    []string{"*.png"},
		MaxBlankLines:      2,
	})
	dec, err := d.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, "see attachment", dec.Text)
	require.Len(t, dec.Attachments, 1)
	assert.Equal(t, "report.pdf", dec.Attachments[0].Filename)
	// Generic octet-stream is replaced by the extension lookup.
	assert.Equal(t, "application/pdf", dec.Attachments[0].ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), dec.Attachments[0].Data)
}

func TestDecodeExclusionDisabledKeepsAll(t *testing.T) {
	raw := []byte("From: carol@example.com\r\n" +
		"Subject: x\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=B\r\n" +
		"\r\n" +
		"--B\r\n" +
		"Content-Type: image/png\r\n" +
		"Content-Disposition: attachment; filename=\"logo.png\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"aVBORw==\r\n" +
		"--B--\r\n")

	d := testDecoder(t, Options{ExcludeAttachments: false, ExcludePatterns: []string{"*.png"}})
	dec, err := d.Decode(raw)
	require.NoError(t, err)
	require.Len(t, dec.Attachments, 1)
	assert.Equal(t, "image/png", dec.Attachments[0].ContentType)
}

func TestDecodeLegacyCharsetFallback(t *testing.T) {
	// 0xE9 is é in both Windows-1252 and ISO-8859-1 but invalid UTF-8.
	body := append([]byte("caf"), 0xE9)
	raw := append([]byte("From: dave@example.com\r\n"+
		"Subject: menu\r\n"+
		"Content-Type: text/plain\r\n"+
		"\r\n"), body...)

	d := testDecoder(t, Options{})
	dec, err := d.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "café", dec.Text)
}

func TestDecodeRawFallbackSniffsHTML(t *testing.T) {
	// A content-type the MIME reader chokes on pushes decoding down the
	// raw path, where the body is sniffed for HTML.
	raw := []byte("From: eve@example.com\r\n" +
		"Subject: broken\r\n" +
		"Content-Type: multipart/mixed\r\n" + // boundary missing on purpose
		"\r\n" +
		"<html><body><p>visible text</p><script>hidden()</script></body></html>\r\n")

	d := testDecoder(t, Options{MaxBlankLines: 2})
	dec, err := d.Decode(raw)
	require.NoError(t, err)
	assert.Contains(t, dec.Text, "visible text")
	assert.NotContains(t, dec.Text, "hidden()")
}

func TestDecodeGarbageFails(t *testing.T) {
	d := testDecoder(t, Options{})
	_, err := d.Decode([]byte("this is not an rfc822 message at all"))
	assert.Error(t, err)
}

func TestDecodePrefersPlainOverHTML(t *testing.T) {
	raw := []byte("From: f@example.com\r\n" +
		"Subject: alt\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=ALT\r\n" +
		"\r\n" +
		"--ALT\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>html version</p>\r\n" +
		"--ALT\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"plain version\r\n" +
		"--ALT--\r\n")

	d := testDecoder(t, Options{})
	dec, err := d.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "plain version", dec.Text)
	assert.False(t, strings.Contains(dec.Text, "html version"))
}
