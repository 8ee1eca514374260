package items

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ItemRegistry/pkg/kit"
)

const (
	WelcomeMessage = "Welcome to the Item Registry API!"

	maxBodyBytes = 1 << 20
)

var errMalformedItem = errors.New("malformed item")

type Server struct {
	Store Store
	Log   *zap.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.welcome)

	r.Get("/items", s.list)
	r.Post("/items", s.add)
	r.Put("/items/{id}", s.update)
	r.Delete("/items/{id}", s.delete)

	return r
}

func (s *Server) welcome(w http.ResponseWriter, _ *http.Request) {
	kit.WriteText(w, http.StatusOK, WelcomeMessage)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	items, err := s.Store.List(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err, nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, items)
}

func (s *Server) add(w http.ResponseWriter, r *http.Request) {
	it, err := decodeItem(w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	if err := s.Store.Add(r.Context(), it); err != nil {
		s.writeStoreError(w, r, err, &it.ID)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// update renames the first item matching the path id. The id in the body is
// decoded for shape only and never used for matching.
func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	body, err := decodeItem(w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	it, err := s.Store.Update(r.Context(), id, body.Name)
	if err != nil {
		s.writeStoreError(w, r, err, &id)
		return
	}
	kit.WriteJSON(w, http.StatusOK, it)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.Store.Delete(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err, &id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses {id}. A path that does not hold a non-negative integer names
// no item, so it is answered with 404.
func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": raw})
		return 0, false
	}
	return id, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, id *uint64) {
	switch {
	case errors.Is(err, ErrNotFound):
		var details any
		if id != nil {
			details = map[string]any{"id": *id}
		}
		kit.WriteError(w, r, http.StatusNotFound, "not found", details)
	case isTimeoutErr(err):
		kit.WriteError(w, r, http.StatusGatewayTimeout, "timeout", nil)
	default:
		fields := []zap.Field{zap.Error(err)}
		if id != nil {
			fields = append(fields, zap.Uint64("id", *id))
		}
		if code := pgCode(err); code != "" {
			fields = append(fields, zap.String("sqlstate", code))
		}
		s.logger().Error("item store failed", fields...)
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

type itemPayload struct {
	ID   *uint64         `json:"id"`
	Name json.RawMessage `json:"name"`
}

// decodeItem reads exactly one JSON item. The body must be declared as JSON,
// be valid UTF-8 with no unpaired surrogate escapes, and carry both fields
// non-null. Unknown fields are ignored.
func decodeItem(w http.ResponseWriter, r *http.Request) (Item, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	if !isJSONContentType(r.Header.Get("Content-Type")) {
		return Item{}, fmt.Errorf("%w: content type %q is not json", errMalformedItem, r.Header.Get("Content-Type"))
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", errMalformedItem, err)
	}
	if !utf8.Valid(raw) {
		return Item{}, fmt.Errorf("%w: body is not valid utf-8", errMalformedItem)
	}
	if !surrogatesPaired(raw) {
		return Item{}, fmt.Errorf("%w: unpaired surrogate escape", errMalformedItem)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))

	var p itemPayload
	if err := dec.Decode(&p); err != nil {
		return Item{}, fmt.Errorf("%w: %v", errMalformedItem, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Item{}, fmt.Errorf("%w: extra data after json object", errMalformedItem)
	}

	if p.ID == nil {
		return Item{}, fmt.Errorf("%w: missing field id", errMalformedItem)
	}
	if len(p.Name) == 0 {
		return Item{}, fmt.Errorf("%w: missing field name", errMalformedItem)
	}

	var name *string
	if err := json.Unmarshal(p.Name, &name); err != nil {
		return Item{}, fmt.Errorf("%w: field name: %v", errMalformedItem, err)
	}
	if name == nil {
		return Item{}, fmt.Errorf("%w: field name is null", errMalformedItem)
	}

	return Item{ID: *p.ID, Name: *name}, nil
}

// isJSONContentType accepts any media type with a json subtype or a +json
// suffix, parameters included ("application/json; charset=utf-8").
func isJSONContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	_, sub, ok := strings.Cut(mt, "/")
	return ok && (sub == "json" || strings.HasSuffix(sub, "+json"))
}

// surrogatesPaired reports whether every \uD800-\uDFFF escape in raw is part
// of a high/low pair. encoding/json would otherwise replace a lone half with
// U+FFFD and accept the body.
func surrogatesPaired(raw []byte) bool {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' {
			continue
		}
		r, ok := escapedRune(raw[i:])
		if !ok {
			// Any other escape, or a malformed one the decoder will reject.
			i++
			continue
		}
		switch {
		case r >= 0xD800 && r <= 0xDBFF:
			lo, ok := escapedRune(raw[i+6:])
			if !ok || lo < 0xDC00 || lo > 0xDFFF {
				return false
			}
			i += 11
		case r >= 0xDC00 && r <= 0xDFFF:
			return false
		default:
			i += 5
		}
	}
	return true
}

// escapedRune decodes a leading \uXXXX escape.
func escapedRune(b []byte) (rune, bool) {
	if len(b) < 6 || b[0] != '\\' || b[1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(string(b[2:6]), 16, 16)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}
