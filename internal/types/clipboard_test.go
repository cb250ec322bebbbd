package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewText(t *testing.T) {
	t.Run("ValidMultiByte", func(t *testing.T) {
		src := []byte("剪贴板 hello")
		c, err := NewText(Clipboard, src)
		require.NoError(t, err)
		assert.Equal(t, "剪贴板 hello", c.Text())
		assert.False(t, c.Cleared)

		// the content owns its bytes
		src[0] = 'x'
		assert.Equal(t, "剪贴板 hello", c.Text())
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		_, err := NewText(Primary, []byte{0xff, 0xfe, 0x41})
		assert.ErrorIs(t, err, ErrInvalidUTF8)
	})

	t.Run("EmptyIsText", func(t *testing.T) {
		c, err := NewText(Clipboard, nil)
		require.NoError(t, err)
		assert.False(t, c.Cleared)
		assert.Equal(t, 0, c.Len())
	})
}

func TestClipboardContentEqual(t *testing.T) {
	hello, _ := NewText(Clipboard, []byte("hello"))
	hello2, _ := NewText(Clipboard, []byte("hello"))
	helloPrimary, _ := NewText(Primary, []byte("hello"))
	empty, _ := NewText(Clipboard, []byte(""))

	tests := []struct {
		name string
		a, b *ClipboardContent
		want bool
	}{
		{"same bytes", hello, hello2, true},
		{"different kind", hello, helloPrimary, false},
		{"cleared vs empty string", NewCleared(Clipboard), empty, false},
		{"cleared vs cleared", NewCleared(Clipboard), NewCleared(Clipboard), true},
		{"cleared kinds differ", NewCleared(Clipboard), NewCleared(Primary), false},
		{"nil vs value", nil, hello, false},
		{"nil vs nil", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
		})
	}
}

func TestOriginOpposite(t *testing.T) {
	assert.Equal(t, OriginWayland, OriginX11.Opposite())
	assert.Equal(t, OriginX11, OriginWayland.Opposite())
}

func TestParseOrigin(t *testing.T) {
	for _, o := range []Origin{OriginX11, OriginWayland} {
		got, err := ParseOrigin(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, got)
		assert.True(t, got.Valid())
	}

	_, err := ParseOrigin("xwayland")
	assert.Error(t, err)
	assert.False(t, Origin(2).Valid())
}

func TestContentStringHidesPayload(t *testing.T) {
	c, _ := NewText(Primary, []byte("secret"))
	assert.Equal(t, "primary:6 bytes", c.String())
	assert.Equal(t, "clipboard:cleared", NewCleared(Clipboard).String())
}
