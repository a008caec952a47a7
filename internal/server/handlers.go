// File: internal/server/handlers.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/discovery"
	"github.com/xkilldash9x/suture/internal/heal"
	"github.com/xkilldash9x/suture/internal/page"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds request bodies; every request is a small JSON object.
const maxBodyBytes = 1 << 20

// Handlers serves the healing API over one page. The healer and the driver
// are single threaded, so every handler that touches them holds mu.
type Handlers struct {
	mu         sync.Mutex
	page       *page.Page
	resolver   page.Resolver
	history    HistoryReader
	suggest    Suggester
	discoverer *discovery.Discoverer
	log        *zap.Logger
}

// Deps are the components the handlers drive. Suggest may be nil, in which
// case the suggest endpoint reports the service as unavailable.
type Deps struct {
	Page       *page.Page
	Resolver   page.Resolver
	History    HistoryReader
	Suggest    Suggester
	Discoverer *discovery.Discoverer
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, logger *zap.Logger) *Handlers {
	return &Handlers{
		page:       deps.Page,
		resolver:   deps.Resolver,
		history:    deps.History,
		suggest:    deps.Suggest,
		discoverer: deps.Discoverer,
		log:        logger.Named("handlers"),
	}
}

// RegisterRoutes sets up the routing for the server.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/navigate", h.HandleNavigate)
		r.Post("/resolve", h.HandleResolve)
		r.Post("/suggest", h.HandleSuggest)
		r.Get("/history", h.HandleHistory)
		r.Get("/discover", h.HandleDiscover)
	})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleNavigate loads a page in the shared driver.
func (h *Handlers) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		h.respondWithError(w, http.StatusBadRequest, "url is required")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.page.Navigate(r.Context(), req.URL); err != nil {
		h.log.Warn("Navigation failed", zap.String("url", req.URL), zap.Error(err))
		h.respondWithError(w, http.StatusBadGateway, err.Error())
		return
	}
	current, err := h.page.CurrentURL(r.Context())
	if err != nil {
		current = req.URL
	}
	h.respondWithSuccess(w, http.StatusOK, map[string]string{"url": current})
}

// HandleResolve runs the fallback chain for a failed selector. An exhausted
// chain is still a 200: the outcome says so.
func (h *Handlers) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.TimeoutMS < 0 {
		h.respondWithError(w, http.StatusBadRequest, "timeout_ms must not be negative")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	outcome, err := h.resolver.Resolve(r.Context(), req.Selector, time.Duration(req.TimeoutMS)*time.Millisecond)
	if errors.Is(err, heal.ErrEmptySelector) {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.log.Error("Resolution failed", zap.String("selector", req.Selector), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondWithSuccess(w, http.StatusOK, outcome)
}

// HandleSuggest asks the language model for selectors matching a description.
func (h *Handlers) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		h.respondWithError(w, http.StatusBadRequest, "description is required")
		return
	}
	if h.suggest == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, heal.ErrNoLLMClient.Error())
		return
	}

	suggestions, err := h.suggest(r.Context(), req.Description)
	switch {
	case errors.Is(err, heal.ErrNoLLMClient):
		h.respondWithError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		h.log.Warn("Suggestion failed", zap.Error(err))
		h.respondWithError(w, http.StatusBadGateway, err.Error())
	default:
		h.respondWithSuccess(w, http.StatusOK, map[string]interface{}{
			"count":       len(suggestions),
			"suggestions": suggestions,
		})
	}
}

// HandleHistory lists healed selectors, or the replacements of one selector
// when ?selector= is given.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if sel := strings.TrimSpace(r.URL.Query().Get("selector")); sel != "" {
		replacements := h.history.Lookup(sel)
		if replacements == nil {
			replacements = []string{}
		}
		h.respondWithSuccess(w, http.StatusOK, HistoryEntry{Selector: sel, Replacements: replacements})
		return
	}

	selectors := h.history.Selectors()
	entries := make([]HistoryEntry, 0, len(selectors))
	for _, sel := range selectors {
		entries = append(entries, HistoryEntry{Selector: sel, Replacements: h.history.Lookup(sel)})
	}
	h.respondWithSuccess(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

// HandleDiscover inventories the interactive elements of the loaded page.
func (h *Handlers) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	found, err := h.discoverer.FromPage(r.Context(), h.page.Driver())
	if err != nil {
		h.respondWithError(w, http.StatusBadGateway, err.Error())
		return
	}
	if found == nil {
		found = []discovery.DiscoveredSelector{}
	}
	h.respondWithSuccess(w, http.StatusOK, map[string]interface{}{
		"count":       len(found),
		"selectors":   found,
		"categorized": discovery.Categorize(found),
	})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

// respondWithError sends a standardized JSON error response.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, Response{Status: "error", Error: message})
}

// respondWithSuccess sends a standardized JSON success response.
func (h *Handlers) respondWithSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	h.respond(w, statusCode, Response{Status: "success", Data: data})
}

func (h *Handlers) respond(w http.ResponseWriter, statusCode int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}

var _ HistoryReader = (*heal.History)(nil)

// SuggestWith adapts a language model client into a Suggester.
func SuggestWith(client schemas.LLMClient) Suggester {
	if client == nil {
		return nil
	}
	return func(ctx context.Context, description string) ([]schemas.SuggestedSelector, error) {
		return heal.Suggest(ctx, client, description)
	}
}
