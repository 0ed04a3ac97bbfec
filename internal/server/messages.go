package server

import (
	"context"
	"log/slog"

	"github.com/bryan-buckman/rssbox/internal/dispatch"
	"github.com/bryan-buckman/rssbox/internal/syncer"
)

// maxMessages bounds the message board.
const maxMessages = 50

// Board keeps the most recent sync notices. Its state is owned by a
// dispatch loop, so Notify is safe to call from sync goroutines.
type Board struct {
	loop     *dispatch.Loop
	messages []syncer.Notice
}

func NewBoard(loop *dispatch.Loop) *Board {
	return &Board{loop: loop}
}

// Notify appends n, dropping the oldest notice when full.
func (b *Board) Notify(n syncer.Notice) {
	err := b.loop.Post(func() {
		b.messages = append(b.messages, n)
		if len(b.messages) > maxMessages {
			b.messages = b.messages[len(b.messages)-maxMessages:]
		}
	})
	if err != nil {
		slog.Warn("Dropped sync notice", "message", n.Message, "error", err)
	}
}

// Messages returns the notices, oldest first.
func (b *Board) Messages(ctx context.Context) ([]syncer.Notice, error) {
	var out []syncer.Notice
	err := b.loop.Do(ctx, func() {
		out = append([]syncer.Notice(nil), b.messages...)
	})
	return out, err
}
