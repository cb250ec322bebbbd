package mailbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berrythewa/clipbridge/internal/types"
)

func update(t *testing.T, kind types.SelectionKind, s string) types.Update {
	t.Helper()
	c, err := types.NewText(kind, []byte(s))
	require.NoError(t, err)
	return types.NewUpdate(c, types.OriginX11, 1)
}

func drain(m *Mailbox[types.Update]) []string {
	var out []string
	for {
		u, ok := m.Pop()
		if !ok {
			return out
		}
		out = append(out, u.Kind.String()+"="+u.Content.Text())
	}
}

func TestMailboxKeepsArrivalOrder(t *testing.T) {
	m := ForUpdates(4)
	m.Push(update(t, types.Clipboard, "a"))
	m.Push(update(t, types.Primary, "b"))
	m.Push(update(t, types.Clipboard, "c"))

	assert.Equal(t, []string{"clipboard=a", "primary=b", "clipboard=c"}, drain(m))
	assert.Equal(t, 0, m.Len())
}

func TestMailboxDropsOldestOfSameKind(t *testing.T) {
	m := ForUpdates(2)
	assert.False(t, m.Push(update(t, types.Clipboard, "1")))
	assert.False(t, m.Push(update(t, types.Primary, "p")))
	assert.False(t, m.Push(update(t, types.Clipboard, "2")))
	assert.True(t, m.Push(update(t, types.Clipboard, "3")))

	assert.Equal(t, []string{"primary=p", "clipboard=2", "clipboard=3"}, drain(m))
	assert.Equal(t, uint64(1), m.Dropped())
}

func TestMailboxPushNeverBlocks(t *testing.T) {
	m := ForUpdates(1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			m.Push(update(t, types.Clipboard, "x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Push blocked without a consumer")
	}
	assert.Equal(t, 1, m.Len())
}

func TestMailboxRecv(t *testing.T) {
	m := ForUpdates(4)

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Push(update(t, types.Primary, "late"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	u, err := m.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", u.Content.Text())

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	_, err = m.Recv(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}
