package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// readBody reads the whole request body, up to limit bytes.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if limit > 0 {
		if r.ContentLength > limit {
			return nil, &http.MaxBytesError{Limit: limit}
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
		return nil, &apiError{status: http.StatusBadRequest, msg: MsgInvalidBody, cause: err}
	}
	return body, nil
}

// decodeBody decodes a JSON document into a new *T. Unknown fields are
// ignored. A JSON null yields a nil pointer; an empty or malformed body
// yields an apiError with the given message.
func decodeBody[T any](w http.ResponseWriter, r *http.Request, limit int64, badMsg string) (*T, error) {
	body, err := readBody(w, r, limit)
	if err != nil {
		return nil, err
	}
	var v *T
	err = json.Unmarshal(body, &v)
	if err != nil {
		return nil, &apiError{status: http.StatusBadRequest, msg: badMsg, cause: err}
	}
	return v, nil
}

func parseID(r *http.Request) (int64, error) {
	s := chi.URLParam(r, "id")
	if s == "" {
		return 0, badRequest(MsgMissingOrInvalidID)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &apiError{status: http.StatusBadRequest, msg: MsgMissingOrInvalidID, cause: err}
	}
	return id, nil
}
