package jsonstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"testing"
)

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type sliceSource[T any] struct {
	items   []T
	pos     int
	failAt  int
	failErr error
}

func (s *sliceSource[T]) Next() bool {
	if s.failErr != nil && s.pos == s.failAt {
		return false
	}
	if s.pos >= len(s.items) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceSource[T]) Row() T {
	return s.items[s.pos-1]
}

func (s *sliceSource[T]) Err() error {
	if s.failErr != nil && s.pos == s.failAt {
		return s.failErr
	}
	return nil
}

func makeItems(n int) []item {
	items := make([]item, n)
	for i := range items {
		items[i] = item{ID: i + 1, Name: fmt.Sprintf("item-%d", i+1)}
	}
	return items
}

// recordingSink checks that chunks arrive one at a time and counts them.
type recordingSink struct {
	buf    bytes.Buffer
	chunks int
	busy   bool
	failAt int
}

func (s *recordingSink) WriteChunk(chunk []byte) error {
	if s.busy {
		panic("overlapping WriteChunk")
	}
	s.busy = true
	defer func() { s.busy = false }()
	s.chunks++
	if s.failAt > 0 && s.chunks == s.failAt {
		return io.ErrClosedPipe
	}
	s.buf.Write(chunk)
	return nil
}

func TestStream_Sizes(t *testing.T) {
	for _, n := range []int{0, 1, 2, 1000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			items := makeItems(n)
			sink := &recordingSink{}
			count, err := Stream[item](context.Background(), &sliceSource[item]{items: items}, sink)
			if err != nil {
				t.Fatalf("Stream failed: %v", err)
			}
			if count != n {
				t.Errorf("count = %d, wanted %d", count, n)
			}

			out := sink.buf.Bytes()
			var decoded []item
			if err := json.Unmarshal(out, &decoded); err != nil {
				t.Fatalf("output is not valid JSON: %v\n%s", err, out)
			}
			if n == 0 {
				if string(out) != "[]" {
					t.Errorf("empty output = %q, wanted []", out)
				}
			} else if !reflect.DeepEqual(decoded, items) {
				t.Errorf("decoded %d items, wanted %d", len(decoded), n)
			}

			var commas int
			if n > 0 {
				commas = n - 1
			}
			if c := strings.Count(string(out), ","); c != commas+n { // each object has one inner comma
				t.Errorf("commas = %d, wanted %d", c, commas+n)
			}
			// [ + items + separators + ]
			if wanted := 2 + n + commas; sink.chunks != wanted {
				t.Errorf("chunks = %d, wanted %d", sink.chunks, wanted)
			}
		})
	}
}

func TestEncoder_States(t *testing.T) {
	enc := NewEncoder[item](&sliceSource[item]{items: makeItems(2)})
	var states []State
	var chunks []string
	for {
		states = append(states, enc.State())
		chunk, err := enc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		chunks = append(chunks, string(chunk))
	}
	wantStates := []State{StateStart, StateNeedItem, StateNeedSeparator, StateNeedItem, StateNeedSeparator, StateTerminal}
	if !reflect.DeepEqual(states, wantStates) {
		t.Errorf("states = %v, wanted %v", states, wantStates)
	}
	wantChunks := []string{"[", `{"id":1,"name":"item-1"}`, ",", `{"id":2,"name":"item-2"}`, "]"}
	if !reflect.DeepEqual(chunks, wantChunks) {
		t.Errorf("chunks = %q, wanted %q", chunks, wantChunks)
	}
	if _, err := enc.Next(); err != io.EOF {
		t.Errorf("Next after terminal = %v, wanted io.EOF", err)
	}
}

func TestPump_SourceError(t *testing.T) {
	srcErr := errors.New("disk gone")
	src := &sliceSource[item]{items: makeItems(5), failAt: 2, failErr: srcErr}
	enc := NewEncoder[item](src)
	sink := &recordingSink{}
	err := Pump(context.Background(), enc, sink)
	if !errors.Is(err, ErrAborted) || !errors.Is(err, srcErr) {
		t.Fatalf("Pump = %v, wanted aborted with source error", err)
	}
	if enc.State() != StateAborted {
		t.Errorf("state = %v, wanted aborted", enc.State())
	}
	if out := sink.buf.String(); strings.HasSuffix(out, "]") || json.Valid([]byte(out)) {
		t.Errorf("aborted output looks complete: %q", out)
	}
	if _, err2 := enc.Next(); !errors.Is(err2, srcErr) {
		t.Errorf("Next after abort = %v", err2)
	}
}

func TestPump_MarshalError(t *testing.T) {
	src := &sliceSource[any]{items: []any{1, func() {}, 3}}
	enc := NewEncoder[any](src)
	sink := &recordingSink{}
	err := Pump(context.Background(), enc, sink)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Pump = %v, wanted ErrAborted", err)
	}
	if out := sink.buf.String(); out != "[1," {
		t.Errorf("output = %q, wanted %q", out, "[1,")
	}
}

func TestPump_SinkError(t *testing.T) {
	for _, failAt := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprint(failAt), func(t *testing.T) {
			src := &sliceSource[item]{items: makeItems(2)}
			enc := NewEncoder[item](src)
			sink := &recordingSink{failAt: failAt}
			err := Pump(context.Background(), enc, sink)
			if !errors.Is(err, io.ErrClosedPipe) || !errors.Is(err, ErrAborted) {
				t.Fatalf("Pump = %v, wanted aborted with ErrClosedPipe", err)
			}
			if sink.chunks != failAt {
				t.Errorf("chunks attempted = %d, wanted %d", sink.chunks, failAt)
			}
		})
	}
}

func TestPump_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &sliceSource[item]{items: makeItems(100)}
	enc := NewEncoder[item](src)
	var written int
	sink := SinkFunc(func(chunk []byte) error {
		written++
		if written == 3 {
			cancel()
		}
		return nil
	})
	err := Pump(ctx, enc, sink)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrAborted) {
		t.Fatalf("Pump = %v, wanted aborted with context.Canceled", err)
	}
	if written != 3 {
		t.Errorf("written = %d, wanted 3", written)
	}
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	_, err := Stream[int](context.Background(), &sliceSource[int]{items: []int{1, 2, 3}}, WriterSink(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if buf.String() != "[1,2,3]" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestAbort_Idempotent(t *testing.T) {
	enc := NewEncoder[item](&sliceSource[item]{})
	first := enc.Abort(errors.New("one"))
	second := enc.Abort(errors.New("two"))
	if first != second {
		t.Errorf("second Abort changed the error: %v vs %v", first, second)
	}
}
