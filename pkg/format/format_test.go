package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berrythewa/clipbridge/internal/types"
)

func TestPreview(t *testing.T) {
	text := func(s string) *types.ClipboardContent {
		c, err := types.NewText(types.Clipboard, []byte(s))
		require.NoError(t, err)
		return c
	}

	tests := []struct {
		name    string
		content *types.ClipboardContent
		maxLen  int
		want    string
	}{
		{"nil", nil, 10, ""},
		{"cleared", types.NewCleared(types.Primary), 10, "(cleared)"},
		{"short", text("hello"), 10, "hello"},
		{"newlines", text("a\r\nb\nc\td"), 10, "a b c d"},
		{"truncated", text("hello, world"), 8, "hello..."},
		{"multibyte", text("héllo wörld"), 6, "hél..."},
		{"unlimited", text("hello, world"), 0, "hello, world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preview(tt.content, tt.maxLen))
		})
	}
}

func TestTruncateTextTinyLimit(t *testing.T) {
	assert.Equal(t, "ab", TruncateText("abcdef", 2))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "16.0 MB", FormatSize(16*1024*1024))
}
