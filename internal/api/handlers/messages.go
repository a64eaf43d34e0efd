package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"herald/internal/core"
	"herald/internal/types"
)

// MessagesHandler serves the ledger observability endpoints. Its routes
// are mounted behind the bearer-secret middleware, so an actor is always
// present in the request context.
type MessagesHandler struct {
	ledger types.MessageLedger
	logger *slog.Logger
}

// NewMessagesHandler creates the handler over the given ledger store.
func NewMessagesHandler(ledger types.MessageLedger, logger *slog.Logger) *MessagesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessagesHandler{ledger: ledger, logger: logger}
}

// RegisterRoutes mounts the ledger read endpoints.
func (h *MessagesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/messages", h.HandleList)
	r.Get("/messages/stats", h.HandleStats)
	r.Get("/messages/{id}", h.HandleGet)
}

// listMessagesResponse is the paged ledger listing. Limit and Offset echo
// the effective values after clamping.
type listMessagesResponse struct {
	Messages []*types.Message `json:"messages"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// HandleList handles GET /v1/messages. The admin sees all traffic and may
// narrow by caller_id; callers are always scoped to their own records.
func (h *MessagesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSecretMissing,
			"authentication secret is required", nil))
		return
	}

	filter, err := parseMessageFilter(r.URL.Query())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if !actor.IsAdmin() {
		if filter.CallerID != "" && filter.CallerID != actor.ID {
			core.Error(w, r, types.NewAppError(types.ErrCodeAuthCallerNotAllowed,
				"callers may only query their own messages", nil))
			return
		}
		filter.CallerID = actor.ID
	}

	messages, total, qerr := h.ledger.Query(r.Context(), filter)
	if qerr != nil {
		core.Error(w, r, qerr)
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}

	core.Data(w, r, http.StatusOK, listMessagesResponse{
		Messages: messages,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}

// HandleGet handles GET /v1/messages/{id}. Callers may only read records
// they dispatched.
func (h *MessagesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSecretMissing,
			"authentication secret is required", nil))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		core.Error(w, r, queryParamError("id", "id must be a positive integer"))
		return
	}

	msg, gerr := h.ledger.GetByID(r.Context(), id)
	if gerr != nil {
		core.Error(w, r, gerr)
		return
	}

	if !actor.IsAdmin() && msg.CallerID != actor.ID {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthCallerNotAllowed,
			"callers may only read their own messages", nil))
		return
	}

	core.Data(w, r, http.StatusOK, msg)
}

// HandleStats handles GET /v1/messages/stats. Admin only: the aggregate
// spans every caller.
func (h *MessagesHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSecretMissing,
			"authentication secret is required", nil))
		return
	}
	if !actor.IsAdmin() {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthCallerNotAllowed,
			"ledger statistics require the admin identity", nil))
		return
	}

	stats, err := h.ledger.Aggregate(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, stats)
}

// parseMessageFilter reads the list query parameters. Limit and offset are
// normalized here so the response can echo the effective page bounds.
func parseMessageFilter(q url.Values) (*types.MessageFilter, *types.AppError) {
	filter := &types.MessageFilter{CallerID: q.Get("caller_id")}

	if v := q.Get("status"); v != "" {
		status := types.MessageStatus(v)
		if !status.IsValid() {
			return nil, queryParamError("status",
				fmt.Sprintf("status must be one of %s", statusList()))
		}
		filter.Status = status
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, queryParamError("limit", "limit must be a non-negative integer")
		}
		filter.Limit = n
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, queryParamError("offset", "offset must be a non-negative integer")
		}
		filter.Offset = n
	}

	if filter.Limit <= 0 {
		filter.Limit = types.DefaultQueryLimit
	}
	if filter.Limit > types.MaxQueryLimit {
		filter.Limit = types.MaxQueryLimit
	}

	return filter, nil
}

func queryParamError(param, message string) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationQueryParam,
		message, nil, map[string]any{"param": param})
}

func statusList() string {
	names := make([]string, len(types.AllMessageStatuses))
	for i, s := range types.AllMessageStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
