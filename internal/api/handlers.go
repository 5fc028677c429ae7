package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/markasorgu/api/schemas"
	"github.com/xkilldash9x/markasorgu/internal/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	sourceCache = "cluster"
	sourceLive  = "live"
)

// -- Request and Response Shapes --

type searchParams struct {
	SearchText string `json:"searchText"`
	Limit      *int   `json:"limit,omitempty"`
}

// searchRequest accepts the query either at the top level or nested under params.
type searchRequest struct {
	searchParams
	Params *searchParams `json:"params,omitempty"`
}

// query resolves the text and limit. Nested params replace the top-level text; a
// top-level limit wins over a nested one.
func (r searchRequest) query() (schemas.SearchQuery, error) {
	text := r.SearchText
	var limit int
	if r.Params != nil {
		text = r.Params.SearchText
		if r.Params.Limit != nil {
			limit = *r.Params.Limit
		}
	}
	if r.Limit != nil && *r.Limit > 0 {
		limit = *r.Limit
	}
	return schemas.NewSearchQuery(text, limit)
}

type detailRequest struct {
	ApplicationNo string `json:"applicationNo"`
}

type searchPayload struct {
	Items []schemas.BrandRecord `json:"items"`
}

type envelope struct {
	Success  bool                  `json:"success"`
	Source   string                `json:"source,omitempty"`
	Payload  *searchPayload        `json:"payload,omitempty"`
	Detail   *schemas.DetailResult `json:"detail,omitempty"`
	Error    string                `json:"error,omitempty"`
	NotFound bool                  `json:"notFound,omitempty"`
}

type rootResponse struct {
	Status    string       `json:"status"`
	Message   string       `json:"message"`
	Endpoints []string     `json:"endpoints"`
	Pool      engine.Stats `json:"pool"`
}

// -- Handlers --

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, rootResponse{
		Status:    "ok",
		Message:   "Türk Patent API çalışıyor",
		Endpoints: []string{"/api/search", "/api/detail"},
		Pool:      s.exec.Stats(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	q, err := req.query()
	if err != nil {
		s.respondError(w, err)
		return
	}

	if records, ok := s.cache.Get(q); ok {
		respondJSON(w, http.StatusOK, envelope{Success: true, Source: sourceCache, Payload: &searchPayload{Items: records}})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	res, err := s.exec.Submit(ctx, schemas.NewSearchTask(q))
	if err != nil {
		s.logger.Warn("Search failed", zap.String("search_text", q.Text), zap.Error(err))
		s.respondError(w, err)
		return
	}

	items := res.Records
	if items == nil {
		items = make([]schemas.BrandRecord, 0)
	}
	s.cache.Add(q, items)
	respondJSON(w, http.StatusOK, envelope{Success: true, Source: sourceLive, Payload: &searchPayload{Items: items}})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	var req detailRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	q, err := schemas.NewDetailQuery(req.ApplicationNo)
	if err != nil {
		s.respondError(w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	res, err := s.exec.Submit(ctx, schemas.NewDetailTask(q))
	if err != nil {
		s.logger.Warn("Detail lookup failed", zap.String("application_no", q.ApplicationNo), zap.Error(err))
		s.respondError(w, err)
		return
	}

	if res.Detail == nil || !res.Detail.Found {
		respondJSON(w, http.StatusNotFound, envelope{
			Error:    fmt.Sprintf("%s numaralı başvuru bulunamadı", q.ApplicationNo),
			NotFound: true,
		})
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Detail: res.Detail})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusNotFound, envelope{Error: fmt.Sprintf("route not found: %s %s", r.Method, r.URL.Path)})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusMethodNotAllowed, envelope{Error: fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path)})
}

// requestContext bounds how long the handler waits for the pool.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	}
	return context.WithCancel(r.Context())
}

// -- Helpers --

var errBodyTooLarge = errors.New("request body too large")

// decodeBody reads a JSON object. An empty body decodes as an empty request.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	var maxErr *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &maxErr), strings.Contains(err.Error(), "request body too large"):
		return errBodyTooLarge
	default:
		return fmt.Errorf("%w: geçersiz JSON gövdesi", schemas.ErrValidation)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, schemas.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, schemas.ErrPoolClosed), errors.Is(err, schemas.ErrPoolUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// publicMessage drops the sentinel prefix from validation errors.
func publicMessage(err error) string {
	msg := err.Error()
	if errors.Is(err, schemas.ErrValidation) {
		msg = strings.TrimPrefix(msg, schemas.ErrValidation.Error()+": ")
	}
	return msg
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), envelope{Error: publicMessage(err)})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
