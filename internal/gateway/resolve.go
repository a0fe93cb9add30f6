package gateway

import (
	"strings"
	"unicode"

	"chipereganyu-settlement/internal/domain"
)

const (
	localPhoneDigits = 9
	countryCode      = "265"
)

// NormalizePhone strips everything but digits and returns the nine digit
// local number. Accepted forms are the bare local number, a trunk zero
// prefix, or the 265 country code prefix.
func NormalizePhone(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	switch {
	case len(digits) == localPhoneDigits:
		return digits, nil
	case len(digits) == localPhoneDigits+1 && digits[0] == '0':
		return digits[1:], nil
	case len(digits) == localPhoneDigits+len(countryCode) && strings.HasPrefix(digits, countryCode):
		return digits[len(countryCode):], nil
	}
	return "", domain.NewError(domain.KindInvalidPhoneNumber, "phone number %q is not a valid local or +265 number", raw)
}

// Resolver turns raw rail details into a closed Route using the configured
// lookup tables. Keys are matched case-insensitively.
type Resolver struct {
	operators map[string]string
	banks     map[string]string
}

func NewResolver(operators, banks map[string]string) *Resolver {
	r := &Resolver{
		operators: make(map[string]string, len(operators)),
		banks:     make(map[string]string, len(banks)),
	}
	for k, v := range operators {
		r.operators[lookupKey(k)] = v
	}
	for k, v := range banks {
		r.banks[lookupKey(k)] = v
	}
	return r
}

func (r *Resolver) Resolve(direction domain.Direction, rail domain.Rail, details domain.RailDetails) (domain.Route, error) {
	switch rail {
	case domain.RailMobileMoney:
		phone, err := NormalizePhone(details.Phone)
		if err != nil {
			return nil, err
		}
		refID, ok := r.operators[lookupKey(details.Provider)]
		if !ok {
			return nil, domain.NewError(domain.KindUnsupportedOperator, "unsupported mobile money operator %q", details.Provider)
		}
		return domain.MobileMoneyRoute{
			Operator: domain.Operator{Name: details.Provider, RefID: refID},
			Phone:    phone,
		}, nil

	case domain.RailBankTransfer:
		if direction == domain.DirectionCollection {
			return domain.VirtualAccountRoute{}, nil
		}
		name := details.BankName
		if strings.TrimSpace(name) == "" {
			name = details.Provider
		}
		bankID, ok := r.banks[lookupKey(name)]
		if !ok {
			return nil, domain.NewError(domain.KindUnsupportedBank, "unsupported bank %q", name)
		}
		if strings.TrimSpace(details.AccountNumber) == "" || strings.TrimSpace(details.AccountName) == "" {
			return nil, domain.NewError(domain.KindInvalidIntent, "bank transfer requires account number and account name")
		}
		return domain.BankRoute{
			Bank:          domain.Bank{Name: name, UUID: bankID},
			AccountNumber: strings.TrimSpace(details.AccountNumber),
			AccountName:   strings.TrimSpace(details.AccountName),
		}, nil
	}
	return nil, domain.NewError(domain.KindInvalidIntent, "unknown rail %q", rail)
}

func lookupKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
