package http

import (
	"io"
	"net/http"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/gateway"
	"chipereganyu-settlement/internal/logger"
)

const maxWebhookBody = 1 << 20

// GatewayWebhook reconciles a settlement from a signed gateway callback.
func (h *Handler) GatewayWebhook(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, domain.WrapError(domain.KindInvalidIntent, err, "failed to read webhook body"))
			return
		}
		if !gateway.VerifySignature(body, r.Header.Get(gateway.SignatureHeader), secret) {
			logger.Warn("Rejected webhook with bad signature", "remoteAddr", r.RemoteAddr)
			writeStatusError(w, http.StatusUnauthorized, "invalid signature", "Unauthenticated")
			return
		}

		event, err := gateway.ParseWebhook(body)
		if err != nil {
			writeError(w, err)
			return
		}
		logger.Info("Gateway webhook received", "event", event.String())

		st, err := h.settlements.ReconcileByReference(r.Context(), event.Reference(), event.ExternalStatus(), "")
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"settlement_id": st.ID, "status": string(st.Status)})
	}
}
