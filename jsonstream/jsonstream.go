// Package jsonstream writes a lazy sequence of values as one JSON array,
// one chunk at a time, so that at most one encoded value is held in memory
// no matter how long the sequence is.
//
// An Encoder is a state machine producing the chunks: the opening bracket,
// each encoded value, the separating commas and the closing bracket. Pump
// hands them to a Sink strictly one after another; the next chunk is only
// produced after WriteChunk returned, which is how a slow consumer slows
// down the producer.
//
// If anything fails (the source, encoding a value, the sink, or the context)
// the encoder is aborted and the array is left unterminated. Consumers must
// treat a truncated array as a failed transfer.
package jsonstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var ErrAborted = errors.New("jsonstream: aborted")

// Source is a forward-only sequence of values. Next advances and reports
// whether a value is available via Row; Err reports why iteration stopped.
type Source[T any] interface {
	Next() bool
	Row() T
	Err() error
}

type State int

const (
	StateStart State = iota
	StateNeedItem
	StateNeedSeparator
	StateTerminal
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateNeedItem:
		return "need_item"
	case StateNeedSeparator:
		return "need_separator"
	case StateTerminal:
		return "terminal"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	chunkOpen  = []byte("[")
	chunkClose = []byte("]")
	chunkComma = []byte(",")
)

// Encoder produces the chunks of a JSON array from a Source.
type Encoder[T any] struct {
	src     Source[T]
	marshal func(T) ([]byte, error)
	state   State
	pending bool
	count   int
	err     error
}

func NewEncoder[T any](src Source[T]) *Encoder[T] {
	return NewEncoderFunc(src, func(v T) ([]byte, error) {
		return json.Marshal(v)
	})
}

// NewEncoderFunc is like NewEncoder, but encodes each value with marshal,
// which must return one complete JSON value.
func NewEncoderFunc[T any](src Source[T], marshal func(T) ([]byte, error)) *Encoder[T] {
	return &Encoder[T]{src: src, marshal: marshal}
}

func (e *Encoder[T]) State() State {
	return e.state
}

// Count returns the number of values produced so far.
func (e *Encoder[T]) Count() int {
	return e.count
}

// Next returns the next chunk, io.EOF after the closing bracket, or the
// abort error. The returned slice must not be modified and is only valid
// until the next call.
func (e *Encoder[T]) Next() ([]byte, error) {
	switch e.state {
	case StateStart:
		e.state = StateNeedItem
		return chunkOpen, nil

	case StateNeedItem:
		if !e.pending {
			if !e.src.Next() {
				return e.finish()
			}
		}
		e.pending = false
		chunk, err := e.marshal(e.src.Row())
		if err != nil {
			return nil, e.Abort(fmt.Errorf("encoding item %d: %w", e.count, err))
		}
		e.count++
		e.state = StateNeedSeparator
		return chunk, nil

	case StateNeedSeparator:
		if !e.src.Next() {
			return e.finish()
		}
		e.pending = true
		e.state = StateNeedItem
		return chunkComma, nil

	case StateTerminal:
		return nil, io.EOF

	case StateAborted:
		return nil, e.err

	default:
		panic(fmt.Errorf("jsonstream: invalid state %v", e.state))
	}
}

func (e *Encoder[T]) finish() ([]byte, error) {
	if err := e.src.Err(); err != nil {
		return nil, e.Abort(fmt.Errorf("reading item %d: %w", e.count, err))
	}
	e.state = StateTerminal
	return chunkClose, nil
}

// Abort moves the encoder into the aborted state and returns the error that
// Next will keep returning. Aborting an aborted encoder does not change it.
// A terminal encoder can still be aborted, because the closing bracket may
// never have reached the client.
func (e *Encoder[T]) Abort(cause error) error {
	if e.state == StateAborted {
		return e.err
	}
	e.state = StateAborted
	e.pending = false
	e.err = fmt.Errorf("%w: %w", ErrAborted, cause)
	return e.err
}

// Chunker is what Pump drives; *Encoder implements it.
type Chunker interface {
	Next() ([]byte, error)
	Abort(cause error) error
}

// Sink accepts chunks. WriteChunk returns once the chunk has been handed to
// the transport; an error means no further chunks can be delivered.
type Sink interface {
	WriteChunk(chunk []byte) error
}

type SinkFunc func(chunk []byte) error

func (f SinkFunc) WriteChunk(chunk []byte) error {
	return f(chunk)
}

// WriterSink adapts an io.Writer.
func WriterSink(w io.Writer) Sink {
	return SinkFunc(func(chunk []byte) error {
		_, err := w.Write(chunk)
		return err
	})
}

// Pump moves chunks from ch to sink until the array is complete. It returns
// nil on completion, or the abort error.
func Pump(ctx context.Context, ch Chunker, sink Sink) error {
	for {
		if err := ctx.Err(); err != nil {
			return ch.Abort(err)
		}
		chunk, err := ch.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		err = sink.WriteChunk(chunk)
		if err != nil {
			return ch.Abort(fmt.Errorf("writing: %w", err))
		}
	}
}

// Stream encodes src as a JSON array into sink.
func Stream[T any](ctx context.Context, src Source[T], sink Sink) (int, error) {
	enc := NewEncoder(src)
	err := Pump(ctx, enc, sink)
	return enc.Count(), err
}
