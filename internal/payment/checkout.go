package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/machmate/machmate-web/internal/models"
	"github.com/machmate/machmate-web/pkg/apiclient"
)

var (
	ErrInvalidOrder    = errors.New("invalid payment order")
	ErrMissingKey      = errors.New("payment key not configured")
	ErrIncompleteReply = errors.New("incomplete payment reply")
)

type Config struct {
	KeyID        string
	CallbackURL  string
	MerchantName string
}

type Prefill struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Options is handed to the browser's checkout widget as-is.
type Options struct {
	Key         string            `json:"key"`
	OrderID     string            `json:"order_id"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Prefill     Prefill           `json:"prefill"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// ToMinorUnits converts a rupee price into paise.
func ToMinorUnits(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// BuildOptions assembles widget options from the backend order. The order's
// amount wins; the plan price is only a fallback.
func BuildOptions(cfg Config, order models.Order, plan models.Plan, prefill Prefill) (Options, error) {
	if strings.TrimSpace(order.ID) == "" {
		return Options{}, fmt.Errorf("%w: missing order id", ErrInvalidOrder)
	}
	amount := order.Amount
	if amount <= 0 {
		amount = ToMinorUnits(plan.Price)
	}
	if amount <= 0 {
		return Options{}, fmt.Errorf("%w: non-positive amount", ErrInvalidOrder)
	}
	key := order.KeyID
	if key == "" {
		key = cfg.KeyID
	}
	if key == "" {
		return Options{}, ErrMissingKey
	}
	currency := order.Currency
	if currency == "" {
		currency = "INR"
	}
	name := cfg.MerchantName
	if name == "" {
		name = "MachMate"
	}
	planName := string(plan.Name)
	if planName == "" {
		planName = "subscription"
	}
	return Options{
		Key:         key,
		OrderID:     order.ID,
		Amount:      amount,
		Currency:    currency,
		Name:        name,
		Description: strings.ToUpper(planName[:1]) + planName[1:] + " plan",
		CallbackURL: cfg.CallbackURL,
		Prefill:     prefill,
		Notes:       map[string]string{"plan": planName},
	}, nil
}

// CheckReply ensures the widget's reply carries all three fields before it
// is forwarded; the signature itself is verified by the backend.
func CheckReply(v apiclient.PaymentVerification) error {
	var missing []string
	if strings.TrimSpace(v.OrderID) == "" {
		missing = append(missing, "razorpay_order_id")
	}
	if strings.TrimSpace(v.PaymentID) == "" {
		missing = append(missing, "razorpay_payment_id")
	}
	if strings.TrimSpace(v.Signature) == "" {
		missing = append(missing, "razorpay_signature")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncompleteReply, strings.Join(missing, ", "))
	}
	return nil
}
