package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"chipereganyu-settlement/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "Signature"

// WebhookEvent is the part of a gateway callback needed to reconcile.
type WebhookEvent struct {
	EventType string `json:"event_type"`
	ChargeID  string `json:"charge_id"`
	RefID     string `json:"ref_id"`
	TxRef     string `json:"tx_ref"`
	Status    string `json:"status"`
}

// Reference returns the best identifier to look the settlement up by.
func (e WebhookEvent) Reference() string {
	switch {
	case e.ChargeID != "":
		return e.ChargeID
	case e.TxRef != "":
		return e.TxRef
	}
	return e.RefID
}

func (e WebhookEvent) ExternalStatus() domain.ExternalStatus {
	return domain.ParseExternalStatus(e.Status)
}

// Sign returns the signature the gateway sends for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time.
func VerifySignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var e WebhookEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, domain.WrapError(domain.KindInvalidIntent, err, "malformed webhook payload")
	}
	if e.Reference() == "" {
		return nil, domain.NewError(domain.KindInvalidIntent, "webhook payload has no reference")
	}
	if e.Status == "" {
		return nil, domain.NewError(domain.KindInvalidIntent, "webhook payload has no status")
	}
	return &e, nil
}

func (e WebhookEvent) String() string {
	return fmt.Sprintf("%s %s=%s", e.EventType, e.Reference(), e.Status)
}
