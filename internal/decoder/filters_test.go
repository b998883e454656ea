package decoder

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateAtSeparator(t *testing.T) {
	separators := []*regexp.Regexp{
		regexp.MustCompile(`(?m)^-{3,}\s*Original Message\s*-{3,}`),
		regexp.MustCompile(`(?m)^On .{1,200}wrote:\s*$`),
	}

	t.Run("cuts at original-message marker", func(t *testing.T) {
		in := "new reply\n-----Original Message-----\nold stuff"
		assert.Equal(t, "new reply\n", truncateAtSeparator(in, separators))
	})

	t.Run("cuts at earliest match across patterns", func(t *testing.T) {
		in := "reply\nOn Mon, Jan 2, 2006 alice wrote:\nquoted\n-----Original Message-----\nolder"
		out := truncateAtSeparator(in, separators)
		assert.Equal(t, "reply\n", out)
	})

	t.Run("no match leaves text alone", func(t *testing.T) {
		in := "nothing to cut here"
		assert.Equal(t, in, truncateAtSeparator(in, separators))
	})
}

func TestRewriteLinks(t *testing.T) {
	assert.Equal(t,
		"see docs <https://example.com/docs> for details",
		rewriteLinks("see [docs](https://example.com/docs) for details"))

	assert.Equal(t,
		"go to <https://example.com> now",
		rewriteLinks("go to `https://example.com` now"))

	assert.Equal(t, "no links here", rewriteLinks("no links here"))
}

func TestNormalizeText(t *testing.T) {
	t.Run("mixed terminators become LF", func(t *testing.T) {
		out := normalizeText("a\r\nb\rc\nd", 2)
		assert.Equal(t, "a\nb\nc\nd", out)
	})

	t.Run("blank runs capped", func(t *testing.T) {
		out := normalizeText("a\n\n\n\n\n\nb", 2)
		assert.Equal(t, "a\n\n\nb", out)
	})

	t.Run("cap of one collapses paragraph gaps", func(t *testing.T) {
		out := normalizeText("a\n\n\n\nb", 1)
		assert.Equal(t, "a\n\nb", out)
	})

	t.Run("leading whitespace trimmed per line", func(t *testing.T) {
		out := normalizeText("  a\n\tb\nc", 2)
		assert.Equal(t, "a\nb\nc", out)
	})

	t.Run("surrounding blank lines dropped", func(t *testing.T) {
		out := normalizeText("\n\n a \n\n", 2)
		assert.Equal(t, "a", out)
	})
}
