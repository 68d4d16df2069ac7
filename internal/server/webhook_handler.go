package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"dealfx/internal/metrics"
	"dealfx/internal/service"
	"dealfx/internal/webhook"
)

const maxBodyBytes = 1 << 20

// dealPayload is the inbound webhook body. Amount is kept as raw JSON so the
// decimal digits reach the arithmetic layer verbatim, whether the CRM sends a
// string or a bare number.
type dealPayload struct {
	DealID   *int64          `json:"deal_id"`
	Amount   json.RawMessage `json:"amount"`
	Currency *string         `json:"currency"`
}

type dealResponse struct {
	Status          string `json:"status"`
	DealID          int64  `json:"deal_id"`
	SourceAmount    string `json:"source_amount,omitempty"`
	ConvertedAmount string `json:"converted_amount,omitempty"`
	Rate            string `json:"rate,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

func handleDeal(auth *webhook.Authenticator, conversion Converter, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := requestID(r.Context())

		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, service.CodeValidation, "method not allowed", reqID)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			metrics.WebhookOutcomes.WithLabelValues(service.CodeValidation).Inc()
			writeError(w, http.StatusBadRequest, service.CodeValidation, "unreadable request body", reqID)
			return
		}

		// The raw bytes are signed; authentication runs before any parsing.
		result := auth.Authorize(body, webhook.Header{
			Token:     r.Header.Get("X-Webhook-Token"),
			Timestamp: r.Header.Get("X-Webhook-Timestamp"),
			Signature: r.Header.Get("X-Webhook-Signature"),
		})
		if !result.OK {
			status := http.StatusForbidden
			if result.Code.Structural() {
				status = http.StatusBadRequest
			}
			metrics.WebhookOutcomes.WithLabelValues(string(result.Code)).Inc()
			logger.Warn().
				Str("request_id", reqID).
				Str("code", string(result.Code)).
				Msg("webhook rejected")
			writeError(w, status, string(result.Code), "unauthorized", reqID)
			return
		}

		var payload dealPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			metrics.WebhookOutcomes.WithLabelValues(service.CodeValidation).Inc()
			writeError(w, http.StatusBadRequest, service.CodeValidation, "invalid JSON body", reqID)
			return
		}
		if payload.DealID == nil || len(payload.Amount) == 0 || payload.Currency == nil {
			metrics.WebhookOutcomes.WithLabelValues(service.CodeValidation).Inc()
			writeError(w, http.StatusBadRequest, service.CodeValidation,
				"missing required fields: deal_id, amount, currency", reqID)
			return
		}

		event := service.Event{
			ExternalID:     *payload.DealID,
			Amount:         amountString(payload.Amount),
			Currency:       *payload.Currency,
			LogicalVersion: result.Timestamp,
		}

		outcome, err := conversion.Handle(r.Context(), event)
		if err != nil {
			code := service.ErrorCode(err)
			status := http.StatusInternalServerError
			if code == service.CodeValidation {
				status = http.StatusBadRequest
			}
			metrics.WebhookOutcomes.WithLabelValues(code).Inc()
			logger.Error().Err(err).
				Str("request_id", reqID).
				Int64("deal_id", event.ExternalID).
				Str("code", code).
				Msg("webhook processing failed")
			writeError(w, status, code, "webhook processing failed", reqID)
			return
		}

		metrics.WebhookOutcomes.WithLabelValues(outcome.Status).Inc()
		writeJSON(w, http.StatusOK, dealResponse{
			Status:          outcome.Status,
			DealID:          outcome.ExternalID,
			SourceAmount:    outcome.SourceAmount,
			ConvertedAmount: outcome.ConvertedAmount,
			Rate:            outcome.Rate,
			RequestID:       reqID,
		})
	}
}

// amountString extracts the decimal text of the amount field without passing
// it through a float.
func amountString(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return text
		}
		return strings.TrimSpace(s)
	}
	return text
}
