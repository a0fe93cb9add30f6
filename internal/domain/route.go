package domain

// Route is a rail destination resolved against the gateway lookup tables.
// The set of implementations is closed: MobileMoneyRoute, BankRoute and
// VirtualAccountRoute.
type Route interface {
	Rail() Rail
	sealed()
}

// Operator is a mobile money operator known to the gateway.
type Operator struct {
	Name  string `json:"name"`
	RefID string `json:"ref_id"`
}

// Bank is a bank known to the gateway.
type Bank struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

type MobileMoneyRoute struct {
	Operator Operator
	// Phone is the canonical 9-digit local number.
	Phone string
}

func (MobileMoneyRoute) Rail() Rail { return RailMobileMoney }
func (MobileMoneyRoute) sealed()    {}

type BankRoute struct {
	Bank          Bank
	AccountNumber string
	AccountName   string
}

func (BankRoute) Rail() Rail { return RailBankTransfer }
func (BankRoute) sealed()    {}

// VirtualAccountRoute asks the gateway to generate an account the payer
// transfers into. Only used for bank collections.
type VirtualAccountRoute struct{}

func (VirtualAccountRoute) Rail() Rail { return RailBankTransfer }
func (VirtualAccountRoute) sealed()    {}

// GatewayRequest is the normalized dispatch request handed to the adapter.
type GatewayRequest struct {
	Direction Direction
	Route     Route
	Amount    int64
	ChargeID  string
}

// PaymentAccountDetails is returned for bank collections: where the payer
// should transfer the funds.
type PaymentAccountDetails struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// GatewayResult is the normalized response of the rail.
type GatewayResult struct {
	ExternalRef string
	TraceID     string
	RawStatus   string
	Status      ExternalStatus
	// Message is the envelope message, e.g. "details retrieved".
	Message string
	// FailureReason is the transaction-level failure text. Empty unless
	// Status is failed.
	FailureReason  string
	PaymentAccount *PaymentAccountDetails
}
