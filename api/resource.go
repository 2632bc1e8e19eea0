package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/andreyvit/recstore"
	"github.com/andreyvit/recstore/jsonstream"
)

// Resource is a collection exposed over HTTP at /{Path}.
type Resource interface {
	Path() string
	register(r chi.Router, e *env)
}

// CollectionResource exposes a collection of R with partial updates of type P.
type CollectionResource[R recstore.Record[R], P any] struct {
	path     string
	coll     *recstore.Collection[R]
	validate func(*R) error
	apply    func(*P, R) R
}

// NewResource exposes coll under path. validate is run on created records;
// its error message is returned to the client. apply merges a decoded
// patch, which may be nil, into the stored record.
func NewResource[R recstore.Record[R], P any](path string, coll *recstore.Collection[R], validate func(*R) error, apply func(*P, R) R) *CollectionResource[R, P] {
	return &CollectionResource[R, P]{
		path:     path,
		coll:     coll,
		validate: validate,
		apply:    apply,
	}
}

func (res *CollectionResource[R, P]) Path() string {
	return res.path
}

func (res *CollectionResource[R, P]) register(r chi.Router, e *env) {
	// Streaming a long list can take as long as the client wants it to,
	// so it must not hold an in-flight slot.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) { res.list(e, w, r) })

	r.Group(func(r chi.Router) {
		r.Use(e.throttle)
		r.Post("/", func(w http.ResponseWriter, r *http.Request) { res.create(e, w, r) })
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) { res.get(e, w, r) })
		r.Patch("/{id}", func(w http.ResponseWriter, r *http.Request) { res.update(e, w, r) })
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) { res.delete(e, w, r) })
	})
}

func (res *CollectionResource[R, P]) list(e *env, w http.ResponseWriter, r *http.Request) {
	src, err := prime[*R](res.coll.Scan())
	if err != nil {
		e.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	sink := newResponseSink(w, e.opt.StreamWriteTimeout)
	n, err := jsonstream.Stream[*R](r.Context(), src, sink)
	if err != nil {
		e.logger.WarnContext(r.Context(), "List stream aborted", "collection", res.coll.Name(), "sent", n, "err", err, "request_id", middleware.GetReqID(r.Context()))
		// the status line is gone; the only way left to signal failure
		// is to cut the connection
		panic(http.ErrAbortHandler)
	}
	sink.done()
	if e.opt.Verbose {
		e.logger.DebugContext(r.Context(), "List streamed", "collection", res.coll.Name(), "rows", n)
	}
}

func (res *CollectionResource[R, P]) get(e *env, w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	row, err := res.coll.Find(id)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	if row == nil {
		e.writeError(w, r, notFound(id))
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, row)
}

func (res *CollectionResource[R, P]) create(e *env, w http.ResponseWriter, r *http.Request) {
	in, err := decodeBody[R](w, r, e.opt.MaxRequestBytes, MsgBadFormat)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	if in != nil && res.validate != nil {
		err = res.validate(in)
		if err != nil {
			e.writeError(w, r, &apiError{status: http.StatusBadRequest, msg: err.Error(), cause: err})
			return
		}
	}
	row, err := res.coll.Save(in)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, row)
}

func (res *CollectionResource[R, P]) update(e *env, w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	patch, err := decodeBody[P](w, r, e.opt.MaxRequestBytes, MsgInvalidBody)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	row, err := res.coll.Update(id, func(old R) R {
		return res.apply(patch, old)
	})
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	if row == nil {
		e.writeError(w, r, notFound(id))
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, row)
}

func (res *CollectionResource[R, P]) delete(e *env, w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	found, err := res.coll.Delete(id)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	if !found {
		e.writeError(w, r, notFound(id))
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, success(id))
}
