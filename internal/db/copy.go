package db

import "context"

// CopyValuer is a row that knows its COPY column values.
type CopyValuer interface {
	CopyValues() []any
}

// ChannelSource implements pgx.CopyFromSource over a channel fed by a
// producer goroutine. It ends when the channel closes or ctx is done; in
// the latter case Err reports the context error and the COPY is aborted.
type ChannelSource[T CopyValuer] struct {
	ctx     context.Context
	ch      <-chan T
	current T
	rows    int64
	err     error
}

// NewChannelSource returns a source that reads ch until it is closed.
func NewChannelSource[T CopyValuer](ctx context.Context, ch <-chan T) *ChannelSource[T] {
	return &ChannelSource[T]{ctx: ctx, ch: ch}
}

func (s *ChannelSource[T]) Next() bool {
	if s.err != nil {
		return false
	}
	select {
	case row, ok := <-s.ch:
		if !ok {
			return false
		}
		s.current = row
		s.rows++
		return true
	case <-s.ctx.Done():
		s.err = s.ctx.Err()
		return false
	}
}

func (s *ChannelSource[T]) Values() ([]any, error) {
	return s.current.CopyValues(), nil
}

func (s *ChannelSource[T]) Err() error {
	return s.err
}

// Rows is the number of rows handed to COPY so far.
func (s *ChannelSource[T]) Rows() int64 {
	return s.rows
}
