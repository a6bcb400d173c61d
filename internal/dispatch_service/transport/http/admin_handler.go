package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/postcaster/golang_services/internal/content/domain"
)

// AdminStore is the write side of the content store used by the admin API.
type AdminStore interface {
	CreateItems(ctx context.Context, bodies []string) ([]domain.ContentItem, error)
	ListItems(ctx context.Context) ([]domain.ContentItem, error)
	UpdateItem(ctx context.Context, key, body string) error
	CreateScheduled(ctx context.Context, body string, fireWindow time.Time, recurring bool) (domain.ScheduledItem, error)
	ListScheduled(ctx context.Context) ([]domain.ScheduledItem, error)
	DeleteScheduled(ctx context.Context, key string) error
}

type AdminHandler struct {
	store    AdminStore
	loc      *time.Location
	logger   *slog.Logger
	validate *validator.Validate
}

// NewAdminHandler builds the handler. loc is the dispatch timezone; a nil loc
// means the process local zone.
func NewAdminHandler(store AdminStore, loc *time.Location, logger *slog.Logger, validate *validator.Validate) *AdminHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AdminHandler{
		store:    store,
		loc:      loc,
		logger:   logger,
		validate: validate,
	}
}

// writeStoreError maps store failures to HTTP status codes.
func writeStoreError(w http.ResponseWriter, logger *slog.Logger, err error, operation, key string) {
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("Post not found", "operation", operation, "key", key)
		http.Error(w, "Post not found", http.StatusNotFound)
		return
	}
	logger.Error(fmt.Sprintf("%s failed", operation), "key", key, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func (h *AdminHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any, operation string) bool {
	ctx := r.Context()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(ctx, "Failed to decode request body", "operation", operation, "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.StructCtx(ctx, dst); err != nil {
		h.logger.WarnContext(ctx, "Validation failed", "operation", operation, "error", err)
		http.Error(w, fmt.Sprintf("Validation error: %s", err.Error()), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *AdminHandler) CreatePosts(w http.ResponseWriter, r *http.Request) {
	var req CreatePostsRequestDTO
	if !h.decodeAndValidate(w, r, &req, "CreatePosts") {
		return
	}

	bodies := make([]string, 0, len(req.Posts))
	for _, p := range req.Posts {
		bodies = append(bodies, p.Post)
	}
	items, err := h.store.CreateItems(r.Context(), bodies)
	if err != nil {
		writeStoreError(w, h.logger, err, "CreatePosts", "")
		return
	}

	recordContentChange(domain.CollectionImmediate, "create", len(items))

	res := ListPostsResponseDTO{Posts: make([]ContentItemDTO, 0, len(items)), TotalCount: len(items)}
	for _, item := range items {
		res.Posts = append(res.Posts, toContentItemDTO(item))
	}
	writeJSON(w, h.logger, http.StatusCreated, res)
}

func (h *AdminHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListItems(r.Context())
	if err != nil {
		writeStoreError(w, h.logger, err, "ListPosts", "")
		return
	}
	res := ListPostsResponseDTO{Posts: make([]ContentItemDTO, 0, len(items)), TotalCount: len(items)}
	for _, item := range items {
		res.Posts = append(res.Posts, toContentItemDTO(item))
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func (h *AdminHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req UpdatePostRequestDTO
	if !h.decodeAndValidate(w, r, &req, "UpdatePost") {
		return
	}
	if err := h.store.UpdateItem(r.Context(), key, req.Post); err != nil {
		writeStoreError(w, h.logger, err, "UpdatePost", key)
		return
	}
	recordContentChange(domain.CollectionImmediate, "update", 1)
	writeJSON(w, h.logger, http.StatusOK, ContentItemDTO{Key: key, Post: req.Post})
}

func (h *AdminHandler) CreateScheduled(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduledRequestDTO
	if !h.decodeAndValidate(w, r, &req, "CreateScheduled") {
		return
	}
	item, err := h.store.CreateScheduled(r.Context(), req.Post, req.Time, req.Recurring)
	if err != nil {
		writeStoreError(w, h.logger, err, "CreateScheduled", "")
		return
	}
	recordContentChange(domain.CollectionScheduled, "create", 1)
	writeJSON(w, h.logger, http.StatusCreated, toScheduledItemDTO(item, h.loc))
}

func (h *AdminHandler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListScheduled(r.Context())
	if err != nil {
		writeStoreError(w, h.logger, err, "ListScheduled", "")
		return
	}
	res := ListScheduledResponseDTO{Scheduled: make([]ScheduledItemDTO, 0, len(items)), TotalCount: len(items)}
	for _, item := range items {
		res.Scheduled = append(res.Scheduled, toScheduledItemDTO(item, h.loc))
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

// DeleteScheduled is the only way a recurring item leaves the store.
func (h *AdminHandler) DeleteScheduled(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.store.DeleteScheduled(r.Context(), key); err != nil {
		writeStoreError(w, h.logger, err, "DeleteScheduled", key)
		return
	}
	recordContentChange(domain.CollectionScheduled, "delete", 1)
	w.WriteHeader(http.StatusNoContent)
}
