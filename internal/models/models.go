package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleNone  Role = "none"
	RoleBuyer Role = "buyer"
	RoleMaker Role = "maker"
)

// ParseRole maps a backend role string onto a known role; anything else is RoleNone.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleBuyer:
		return RoleBuyer
	case RoleMaker:
		return RoleMaker
	default:
		return RoleNone
	}
}

func (r Role) Valid() bool { return r == RoleBuyer || r == RoleMaker }

const DateLayout = "2006-01-02"

// Date is a calendar day serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

type Project struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	MaxPrice      decimal.Decimal `json:"max_price"`
	EstimatedDate Date            `json:"estimated_date"`
	Address       string          `json:"address"`
	State         string          `json:"state"`
	City          string          `json:"city"`
	PDF           string          `json:"pdf,omitempty"`
	Status        string          `json:"status,omitempty"`
}

type Quotation struct {
	ID            int64           `json:"quotation_id"`
	ProjectID     int64           `json:"project_id"`
	ProjectName   string          `json:"project_name,omitempty"`
	MakerName     string          `json:"maker_name,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Description   string          `json:"description"`
	EstimatedDate Date            `json:"estimated_date"`
	PDF           string          `json:"pdf_quotation,omitempty"`
	Status        string          `json:"status"`
}

type CompletedOrder struct {
	ID          int64           `json:"id"`
	ProjectID   int64           `json:"project_id"`
	ProjectName string          `json:"project_name"`
	QuotationID int64           `json:"quotation_id"`
	Price       decimal.Decimal `json:"price"`
	CompletedAt time.Time       `json:"completed_at"`
}

type CompanyProfile struct {
	CompanyName     string   `json:"company_name"`
	YearEstablished int      `json:"year_established"`
	Specializations []string `json:"specializations"`
	Address         string   `json:"address"`
	State           string   `json:"state"`
	City            string   `json:"city"`
	Website         string   `json:"website,omitempty"`
}

type PlanName string

const (
	PlanNone    PlanName = "none"
	PlanBasic   PlanName = "basic"
	PlanPro     PlanName = "pro"
	PlanPremium PlanName = "premium"
)

func ParsePlanName(s string) PlanName {
	switch PlanName(strings.ToLower(strings.TrimSpace(s))) {
	case PlanBasic:
		return PlanBasic
	case PlanPro:
		return PlanPro
	case PlanPremium:
		return PlanPremium
	default:
		return PlanNone
	}
}

type Subscription struct {
	Plan             PlanName `json:"plan"`
	RemainingCredits int      `json:"remaining_credits"`
	EndDate          Date     `json:"end_date"`
}

// CanQuote reports whether one more quotation may be submitted.
func (s Subscription) CanQuote() bool {
	return s.Plan != PlanNone && s.RemainingCredits > 0
}

type Plan struct {
	ID           int64           `json:"id"`
	Name         PlanName        `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Credits      int             `json:"credits"`
	DurationDays int             `json:"duration_days"`
}

// Order is a payment order created by the backend for a plan purchase.
type Order struct {
	ID       string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"key,omitempty"`
	PlanID   int64  `json:"plan_id,omitempty"`
}
