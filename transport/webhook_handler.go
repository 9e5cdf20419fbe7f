package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-mailroom/core"
)

const defaultMaxBodyBytes int64 = 25 << 20 // provider payloads embed base64 attachments

// InboundDispatcher is the piece of the ingestion service the handler
// drives. Satisfied by inbound.Dispatcher.
type InboundDispatcher interface {
	Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

// WebhookHandler terminates POST /webhooks/{provider}. Acknowledgements are
// 202 regardless of whether the delivery was fresh or a deduped replay;
// everything else maps from the error envelope.
type WebhookHandler struct {
	Dispatcher   InboundDispatcher
	Logger       core.Logger
	MaxBodyBytes int64
}

func NewWebhookHandler(dispatcher InboundDispatcher) *WebhookHandler {
	return &WebhookHandler{
		Dispatcher:   dispatcher,
		Logger:       glog.Ensure(nil),
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

// Mount registers the webhook route on the given mux.
func (h *WebhookHandler) Mount(mux *http.ServeMux) {
	mux.Handle("POST /webhooks/{provider}", h)
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Dispatcher == nil {
		writeError(w, transportError(
			"transport: webhook handler is not configured",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		))
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, transportError(
			"transport: method not allowed",
			goerrors.CategoryBadInput,
			http.StatusMethodNotAllowed,
			map[string]any{"method": r.Method},
		))
		return
	}

	providerID := providerFromRequest(r)
	if providerID == "" {
		writeError(w, transportError(
			"transport: provider id is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			nil,
		))
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeError(w, transportError(
			"transport: reading request body failed",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"provider_id": providerID},
		))
		return
	}
	if int64(len(body)) > limit {
		writeError(w, transportError(
			"transport: request body exceeds limit",
			goerrors.CategoryBadInput,
			http.StatusRequestEntityTooLarge,
			map[string]any{"provider_id": providerID, "limit_bytes": limit},
		))
		return
	}

	result, err := h.Dispatcher.Dispatch(r.Context(), core.InboundRequest{
		ProviderID: providerID,
		Headers:    flattenHeaders(r.Header),
		Body:       body,
		Metadata: map[string]any{
			"remote_addr":  r.RemoteAddr,
			"content_type": r.Header.Get("Content-Type"),
		},
	})
	if err != nil {
		status, textCode, _ := errorEnvelope(err)
		h.Logger.Error("webhook delivery rejected",
			"provider_id", providerID,
			"status", status,
			"text_code", textCode,
			"error", err,
		)
		writeError(w, err)
		return
	}

	writeJSON(w, result.StatusCode, acknowledgement{
		Status:     result.Status,
		EventID:    result.EventID,
		JobsQueued: result.JobsQueued,
	})
}

type acknowledgement struct {
	Status     string `json:"status"`
	EventID    string `json:"event_id,omitempty"`
	JobsQueued int    `json:"jobs_queued,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message  string `json:"message"`
	TextCode string `json:"text_code"`
}

// providerFromRequest resolves the provider path segment. The mux pattern
// fills PathValue; the fallback keeps the handler usable when mounted under
// a bare prefix.
func providerFromRequest(r *http.Request) string {
	if provider := strings.TrimSpace(r.PathValue("provider")); provider != "" {
		return provider
	}
	path := strings.Trim(r.URL.Path, "/")
	segments := strings.Split(path, "/")
	if len(segments) >= 2 && segments[len(segments)-2] == "webhooks" {
		return strings.TrimSpace(segments[len(segments)-1])
	}
	return ""
}

func flattenHeaders(header http.Header) map[string]string {
	flattened := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) == 0 {
			continue
		}
		flattened[name] = values[0]
	}
	return flattened
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status <= 0 {
		status = http.StatusAccepted
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status, textCode, message := errorEnvelope(err)
	writeJSON(w, status, errorBody{Error: errorDetail{
		Message:  message,
		TextCode: textCode,
	}})
}
