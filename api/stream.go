package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/andreyvit/recstore/jsonstream"
)

// responseSink writes each chunk to the client and flushes it, so that the
// next chunk is produced only once the previous one was handed to the
// connection. Each write gets its own deadline so a stalled client
// cannot hold the handler forever.
type responseSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
}

func newResponseSink(w http.ResponseWriter, timeout time.Duration) *responseSink {
	return &responseSink{w: w, rc: http.NewResponseController(w), timeout: timeout}
}

func (s *responseSink) WriteChunk(chunk []byte) error {
	if s.timeout > 0 {
		err := s.rc.SetWriteDeadline(time.Now().Add(s.timeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	_, err := s.w.Write(chunk)
	if err != nil {
		return err
	}
	err = s.rc.Flush()
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// done clears the deadline so a kept-alive connection is not cut short
// while serving the next request.
func (s *responseSink) done() {
	if s.timeout > 0 {
		_ = s.rc.SetWriteDeadline(time.Time{})
	}
}

// primedSource pulls the first row eagerly so that a failing source can
// still be reported with a proper status code before anything is written.
type primedSource[T any] struct {
	src     jsonstream.Source[T]
	primed  bool
	pending bool
}

func prime[T any](src jsonstream.Source[T]) (*primedSource[T], error) {
	ps := &primedSource[T]{src: src, primed: true}
	ps.pending = src.Next()
	if !ps.pending {
		if err := src.Err(); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

func (ps *primedSource[T]) Next() bool {
	if ps.primed {
		ps.primed = false
		return ps.pending
	}
	return ps.src.Next()
}

func (ps *primedSource[T]) Row() T {
	return ps.src.Row()
}

func (ps *primedSource[T]) Err() error {
	return ps.src.Err()
}
