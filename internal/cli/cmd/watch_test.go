package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berrythewa/clipbridge/internal/config"
	"github.com/berrythewa/clipbridge/internal/types"
)

func TestWatchAndSetArguments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "watch needs a side", args: []string{"watch"}, wantErr: "accepts 1 arg(s)"},
		{name: "watch rejects unknown sides", args: []string{"watch", "mir"}, wantErr: `invalid argument "mir"`},
		{name: "set needs text", args: []string{"set", "--x11"}, wantErr: "accepts 1 arg(s)"},
		{name: "set needs a side", args: []string{"set", "hello"}, wantErr: "[x11 wayland]"},
		{name: "set takes one side", args: []string{"set", "--x11", "--wayland", "hello"}, wantErr: "[x11 wayland]"},
		{name: "set respects the size limit", args: []string{"set", "--wayland", "hello world"}, wantErr: "max_content_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(config.EnvMaxContentBytes, "4")

			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSetContent(t *testing.T) {
	c, err := setContent(types.Primary, "héllo", 16)
	require.NoError(t, err)
	assert.Equal(t, types.Primary, c.Kind)
	assert.Equal(t, "héllo", c.Text())

	_, err = setContent(types.Clipboard, "\xff", 16)
	assert.ErrorIs(t, err, types.ErrInvalidUTF8)

	_, err = setContent(types.Clipboard, strings.Repeat("x", 17), 16)
	assert.Error(t, err)
}

func TestUpdateLine(t *testing.T) {
	text := func(kind types.SelectionKind, s string) *types.ClipboardContent {
		c, err := types.NewText(kind, []byte(s))
		require.NoError(t, err)
		return c
	}

	tests := []struct {
		name    string
		content *types.ClipboardContent
		maxLen  int
		want    string
	}{
		{name: "text", content: text(types.Clipboard, "hello"), maxLen: 80, want: "clipboard\t5 B\thello"},
		{name: "multi-line", content: text(types.Primary, "a\nb"), maxLen: 80, want: "primary\t3 B\ta b"},
		{name: "truncated", content: text(types.Clipboard, "abcdefghij"), maxLen: 6, want: "clipboard\t10 B\tabc..."},
		{name: "no limit", content: text(types.Clipboard, "abcdefghij"), maxLen: 0, want: "clipboard\t10 B\tabcdefghij"},
		{name: "cleared", content: types.NewCleared(types.Clipboard), maxLen: 80, want: "clipboard\t-\t(cleared)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := types.NewUpdate(tt.content, types.OriginWayland, 1)
			assert.Equal(t, tt.want, updateLine(u, tt.maxLen))
		})
	}
}
