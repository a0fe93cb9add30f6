// Package http exposes the settlement services as a JSON API.
package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"chipereganyu-settlement/internal/metrics"
)

// NewRouter registers every route. Route names key the security levels in
// config.EndpointSecurityConfig.
func NewRouter(h *Handler, auth *AuthMiddleware, webhookSecret string) *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware, auth.Handler)

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet).Name("Health")
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet).Name("Metrics")

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/webhooks/gateway", h.GatewayWebhook(webhookSecret)).Methods(http.MethodPost).Name("GatewayWebhook")

	v1.HandleFunc("/contributions", h.SubmitContribution).Methods(http.MethodPost).Name("SubmitContribution")
	v1.HandleFunc("/payouts/{payoutId}/instant", h.RequestInstantPayout).Methods(http.MethodPost).Name("RequestInstantPayout")
	v1.HandleFunc("/settlements/{settlementId}", h.GetSettlement).Methods(http.MethodGet).Name("GetSettlement")
	v1.HandleFunc("/settlements/{settlementId}/retry", h.RetrySettlement).Methods(http.MethodPost).Name("RetrySettlement")
	v1.HandleFunc("/disputes", h.FileDispute).Methods(http.MethodPost).Name("FileDispute")

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/payouts/{payoutId}/manual", h.TriggerManualPayout).Methods(http.MethodPost).Name("TriggerManualPayout")
	admin.HandleFunc("/disputes", h.ListDisputes).Methods(http.MethodGet).Name("ListDisputes")
	admin.HandleFunc("/disputes/{disputeId}/resolve", h.ResolveDispute).Methods(http.MethodPost).Name("ResolveDispute")
	admin.HandleFunc("/reserve", h.GetReserve).Methods(http.MethodGet).Name("GetReserve")

	return r
}
