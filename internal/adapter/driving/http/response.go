package httphandler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/notipi/internal/application"
	"github.com/ericfisherdev/notipi/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// statusFor maps an application error kind to its HTTP status.
func statusFor(kind application.ErrorKind) int {
	switch kind {
	case application.KindValidation:
		return http.StatusBadRequest
	case application.KindUnauthenticated:
		return http.StatusUnauthorized
	case application.KindForbidden:
		return http.StatusForbidden
	case application.KindNotFound:
		return http.StatusNotFound
	case application.KindRateLimited, application.KindQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError renders err as {"error": message, ...details}. Internal
// failures are logged and their cause hidden unless exposeInternal is set.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := application.AsError(err)
	status := statusFor(appErr.Kind)

	body := make(map[string]any, len(appErr.Details)+1)
	for k, v := range appErr.Details {
		body[k] = v
	}

	if appErr.Kind == application.KindInternal {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		body["error"] = "internal server error"
		if h.opts.ExposeInternalErrors {
			body["detail"] = appErr.Error()
		}
	} else {
		body["error"] = appErr.Message
	}

	if appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(application.RetryAfterSeconds(appErr.RetryAfter)))
	}
	writeJSON(w, status, body)
}

// sendRequest is the JSON body of a single send. Channel defaults to email.
type sendRequest struct {
	Channel      string         `json:"channel"`
	To           string         `json:"to"`
	Subject      string         `json:"subject"`
	TemplateID   string         `json:"templateId"`
	TemplateSlug string         `json:"templateSlug"`
	HTML         string         `json:"html"`
	Content      string         `json:"content"`
	Data         map[string]any `json:"data"`
}

// bulkSendRequest is the JSON body of a bulk send.
type bulkSendRequest struct {
	Channel      string         `json:"channel"`
	Recipients   []string       `json:"recipients"`
	Subject      string         `json:"subject"`
	TemplateID   string         `json:"templateId"`
	TemplateSlug string         `json:"templateSlug"`
	HTML         string         `json:"html"`
	Content      string         `json:"content"`
	Data         map[string]any `json:"data"`
}

// SendResponse is returned once a single send is durably queued.
type SendResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// BulkSendResponse summarizes a bulk submission.
type BulkSendResponse struct {
	Queued            int                   `json:"queued"`
	Failed            int                   `json:"failed"`
	Invalid           int                   `json:"invalid"`
	Jobs              []application.BulkJob `json:"jobs"`
	InvalidRecipients []string              `json:"invalidRecipients"`
}

// QueueStatsResponse is the JSON representation of queue depth per state.
type QueueStatsResponse struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// contentSource builds the renderer input. Raw html wins over content, and
// data values are stringified since templates only substitute text.
func contentSource(templateID, templateSlug, html, content string, data map[string]any) application.ContentSource {
	raw := html
	if raw == "" {
		raw = content
	}
	return application.ContentSource{
		TemplateID:   templateID,
		TemplateSlug: templateSlug,
		RawContent:   raw,
		Data:         stringifyData(data),
	}
}

func stringifyData(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		case float64, bool:
			out[k] = fmt.Sprint(val)
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(encoded)
		}
	}
	return out
}

func (r sendRequest) toApplication() application.SendRequest {
	return application.SendRequest{
		Channel: model.Channel(r.Channel),
		To:      r.To,
		Subject: r.Subject,
		Content: contentSource(r.TemplateID, r.TemplateSlug, r.HTML, r.Content, r.Data),
	}
}

func (r bulkSendRequest) toApplication() application.BulkSendRequest {
	return application.BulkSendRequest{
		Channel:    model.Channel(r.Channel),
		Recipients: r.Recipients,
		Subject:    r.Subject,
		Content:    contentSource(r.TemplateID, r.TemplateSlug, r.HTML, r.Content, r.Data),
	}
}

func toBulkSendResponse(res application.BulkResult) BulkSendResponse {
	jobs := res.Jobs
	if jobs == nil {
		jobs = []application.BulkJob{}
	}
	invalid := res.InvalidRecipients
	if invalid == nil {
		invalid = []string{}
	}
	return BulkSendResponse{
		Queued:            res.Queued,
		Failed:            res.Failed,
		Invalid:           res.Invalid,
		Jobs:              jobs,
		InvalidRecipients: invalid,
	}
}
