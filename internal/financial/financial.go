// Package financial holds the money rules of a booking: commission bounds,
// net amount and payment method split.
package financial

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidCommission    = errors.New("invalid_commission")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrInvalidPolicy        = errors.New("invalid_commission_policy")
)

// Scale is the number of fractional digits money values are stored with.
const Scale = 2

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "Cash"
	PaymentTransfer PaymentMethod = "Transfer"
)

var paymentAliases = map[string]PaymentMethod{
	"cash":     PaymentCash,
	"tunai":    PaymentCash,
	"transfer": PaymentTransfer,
	"tf":       PaymentTransfer,
	"trf":      PaymentTransfer,
}

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	method, ok := paymentAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", ErrInvalidPaymentMethod
	}
	return method, nil
}

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentTransfer
}

// Split returns the amount attributed to the cash and transfer columns.
func Split(method PaymentMethod, amount decimal.Decimal) (cash, transfer decimal.Decimal) {
	if method == PaymentTransfer {
		return decimal.Zero, amount
	}
	return amount, decimal.Zero
}

type Result struct {
	Amount        decimal.Decimal
	Commission    decimal.Decimal
	NetAmount     decimal.Decimal
	SkipFinancial bool
}

// Compute validates the commission bounds and derives the net amount.
// Out-of-range values are rejected, never clamped.
func Compute(amount, commission decimal.Decimal, skipFinancial bool) (Result, error) {
	if amount.IsNegative() {
		return Result{}, ErrInvalidAmount
	}
	if commission.IsNegative() || commission.GreaterThan(amount) {
		return Result{}, ErrInvalidCommission
	}
	amount = amount.Round(Scale)
	commission = commission.Round(Scale)
	return Result{
		Amount:        amount,
		Commission:    commission,
		NetAmount:     amount.Sub(commission),
		SkipFinancial: skipFinancial,
	}, nil
}

type PolicyType string

const (
	PolicyRate  PolicyType = "rate"
	PolicyFixed PolicyType = "fixed"
)

// Policy is an agent's default commission rule.
type Policy struct {
	Type  PolicyType
	Value decimal.Decimal
}

func (p Policy) Validate() error {
	if p.Value.IsNegative() {
		return ErrInvalidPolicy
	}
	switch p.Type {
	case PolicyRate:
		if p.Value.GreaterThan(decimal.NewFromInt(1)) {
			return ErrInvalidPolicy
		}
		return nil
	case PolicyFixed:
		return nil
	default:
		return ErrInvalidPolicy
	}
}

// ResolveCommission applies a policy to an amount. The result still has to
// pass Compute's bounds check.
func ResolveCommission(policy Policy, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := policy.Validate(); err != nil {
		return decimal.Zero, err
	}
	if policy.Type == PolicyRate {
		return amount.Mul(policy.Value).Round(Scale), nil
	}
	return policy.Value.Round(Scale), nil
}
