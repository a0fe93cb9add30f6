package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/service"
)

type Handler struct {
	settlements service.SettlementService
	reserve     service.ReserveService
	payouts     service.PayoutService
	retries     service.RetryService
	disputes    service.DisputeService
}

func NewHandler(svc service.Services) *Handler {
	return &Handler{
		settlements: svc.Settlements,
		reserve:     svc.Reserve,
		payouts:     svc.Payouts,
		retries:     svc.Retries,
		disputes:    svc.Disputes,
	}
}

type contributionRequest struct {
	GroupID     string             `json:"group_id"`
	CycleNumber int                `json:"cycle_number"`
	Amount      int64              `json:"amount"`
	Rail        domain.Rail        `json:"rail"`
	RailDetails domain.RailDetails `json:"rail_details"`
	ChargeID    string             `json:"charge_id,omitempty"`
}

func (h *Handler) SubmitContribution(w http.ResponseWriter, r *http.Request) {
	claims, err := ClaimsFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var req contributionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	st, err := h.payouts.SubmitContribution(r.Context(), service.ContributionRequest{
		GroupID:     req.GroupID,
		UserID:      claims.UserID,
		CycleNumber: req.CycleNumber,
		Amount:      req.Amount,
		Rail:        req.Rail,
		RailDetails: req.RailDetails,
		ChargeID:    req.ChargeID,
	})
	writeSettlement(w, http.StatusAccepted, st, err)
}

type instantPayoutRequest struct {
	AccountID string `json:"account_id"`
}

func (h *Handler) RequestInstantPayout(w http.ResponseWriter, r *http.Request) {
	claims, err := ClaimsFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var req instantPayoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.AccountID == "" {
		writeError(w, domain.NewError(domain.KindInvalidIntent, "account_id is required"))
		return
	}

	st, err := h.payouts.RequestInstantPayout(r.Context(), mux.Vars(r)["payoutId"], req.AccountID, claims.UserID)
	writeSettlement(w, http.StatusAccepted, st, err)
}

func (h *Handler) TriggerManualPayout(w http.ResponseWriter, r *http.Request) {
	claims, err := ClaimsFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := h.payouts.TriggerManualPayout(r.Context(), mux.Vars(r)["payoutId"], claims.UserID)
	writeSettlement(w, http.StatusAccepted, st, err)
}

type retryRequest struct {
	AccountID   string              `json:"account_id,omitempty"`
	RailDetails *domain.RailDetails `json:"rail_details,omitempty"`
}

func (h *Handler) RetrySettlement(w http.ResponseWriter, r *http.Request) {
	claims, err := ClaimsFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var req retryRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	st, err := h.retries.Retry(r.Context(), service.RetryRequest{
		SettlementID: mux.Vars(r)["settlementId"],
		ActorID:      claims.UserID,
		IsAdmin:      claims.IsAdmin(),
		AccountID:    req.AccountID,
		RailDetails:  req.RailDetails,
	})
	writeSettlement(w, http.StatusAccepted, st, err)
}

func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	claims, err := ClaimsFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := h.settlements.GetSettlement(r.Context(), mux.Vars(r)["settlementId"])
	if err != nil {
		writeError(w, err)
		return
	}
	// Members only see their own settlements; an admin sees all.
	if st.Intent.UserID != claims.UserID && !claims.IsAdmin() {
		writeError(w, domain.NewError(domain.KindNotFound, "settlement %s not found", st.ID))
		return
	}
	writeData(w, http.StatusOK, st)
}

type fileDisputeRequest struct {
	TransactionID string             `json:"transaction_id"`
	Type          domain.DisputeType `json:"type"`
	Reason        string             `json:"reason"`
	Amount        int64              `json:"amount,omitempty"`
	Evidence      []string           `json:"evidence,omitempty"`
}

func (h *Handler) FileDispute(w http.ResponseWriter, r *http.Request) {
	claims, err := ClaimsFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var req fileDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	d, err := h.disputes.FileDispute(r.Context(), service.FileDisputeRequest{
		TransactionID: req.TransactionID,
		UserID:        claims.UserID,
		Type:          req.Type,
		Reason:        req.Reason,
		Amount:        req.Amount,
		Evidence:      req.Evidence,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, d)
}

type resolveDisputeRequest struct {
	Resolution domain.DisputeStatus `json:"resolution"`
	AdminNotes string               `json:"admin_notes"`
}

func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	claims, err := ClaimsFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var req resolveDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	d, err := h.disputes.ResolveDispute(r.Context(), mux.Vars(r)["disputeId"], claims.UserID, req.Resolution, req.AdminNotes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, d)
}

type page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func (h *Handler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pageNum, pageSize := pageParams(r)
	disputes, total, err := h.disputes.ListDisputes(r.Context(), domain.DisputeStatus(q.Get("status")), pageNum, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, page[domain.Dispute]{Items: disputes, Total: total, Page: pageNum, PageSize: pageSize})
}

type reserveView struct {
	Balance int64                           `json:"balance"`
	Entries page[domain.ReserveLedgerEntry] `json:"entries"`
}

func (h *Handler) GetReserve(w http.ResponseWriter, r *http.Request) {
	balance, err := h.reserve.CurrentBalance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	pageNum, pageSize := pageParams(r)
	entries, total, err := h.reserve.ListEntries(r.Context(), pageNum, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, reserveView{
		Balance: balance,
		Entries: page[domain.ReserveLedgerEntry]{Items: entries, Total: total, Page: pageNum, PageSize: pageSize},
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	pageNum, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageNum < 1 {
		pageNum = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return pageNum, pageSize
}

// writeSettlement renders the outcome of a submit. A settlement the rail
// refused is returned alongside the error.
func writeSettlement(w http.ResponseWriter, status int, st *domain.Settlement, err error) {
	if err != nil {
		if st != nil {
			writeErrorWithData(w, err, st)
			return
		}
		writeError(w, err)
		return
	}
	writeData(w, status, st)
}
