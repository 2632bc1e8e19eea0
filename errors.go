package recstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrStorageUnavailable is returned when the backing file cannot be opened
	// (permissions, corruption, lock held by another process) or a commit fails.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrAlreadyClosed is returned by every operation on a closed store,
	// including a second Close.
	ErrAlreadyClosed = errors.New("store already closed")

	// ErrInvalidInput is returned for nil or otherwise unusable arguments.
	ErrInvalidInput = errors.New("invalid input")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// CollectionError attaches the collection name and, when known, the record
// identifier to an underlying error.
type CollectionError struct {
	Collection string
	ID         int64
	Msg        string
	Err        error
}

func collErrf(coll string, id int64, err error, format string, args ...any) error {
	return &CollectionError{coll, id, fmt.Sprintf(format, args...), err}
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

func (e *CollectionError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Collection)
	if e.ID != 0 {
		buf.WriteByte('/')
		buf.WriteString(strconv.FormatInt(e.ID, 10))
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
