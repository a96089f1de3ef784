package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/machmate/machmate-web/internal/models"
)

// The backend is inconsistent about field names and number encodings; the wire
// types below accept every variant and normalize() yields the canonical model.

type flexDecimal struct {
	d  decimal.Decimal
	ok bool
}

func (f *flexDecimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	f.d, f.ok = d, true
	return nil
}

func firstDecimal(vals ...flexDecimal) decimal.Decimal {
	for _, v := range vals {
		if v.ok {
			return v.d
		}
	}
	return decimal.Zero
}

type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	*f = flexInt(n)
	return nil
}

func firstInt(vals ...flexInt) int64 {
	for _, v := range vals {
		if v != 0 {
			return int64(v)
		}
	}
	return 0
}

type flexStrings []string

func (f *flexStrings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '[' {
		var items []any
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			var s string
			switch v := it.(type) {
			case string:
				s = v
			case map[string]any:
				s, _ = v["name"].(string)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*f = out
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = splitList(s)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstDate(vals ...string) models.Date {
	for _, v := range vals {
		if v == "" {
			continue
		}
		if d, err := models.ParseDate(v); err == nil {
			return d
		}
	}
	return models.Date{}
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if d, err := models.ParseDate(s); err == nil {
		return d.Time
	}
	return time.Time{}
}

// ref is a foreign key the backend sends either as a bare id or as a nested object.
type ref struct {
	ID    flexInt     `json:"id"`
	QID   flexInt     `json:"quotation_id"`
	Name  string      `json:"name"`
	Title string      `json:"title"`
	Price flexDecimal `json:"price"`
}

func (r *ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] != '{' {
		return r.ID.UnmarshalJSON(b)
	}
	type plain ref
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = ref(p)
	return nil
}

func (r ref) id() int64 { return firstInt(r.ID, r.QID) }

// decodeList accepts a bare array or an object wrapping the array under one of keys.
func decodeList[T any](raw json.RawMessage, keys ...string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return out, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode list envelope: %w", err)
	}
	for _, k := range append(keys, "results", "data") {
		if inner, ok := envelope[k]; ok {
			return decodeList[T](inner)
		}
	}
	return nil, nil
}

type userWire struct {
	ID        flexInt   `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	FirstName string    `json:"first_name"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	UserType  string    `json:"user_type"`
	User      *userWire `json:"user"`
}

func (w userWire) normalize() models.User {
	u := models.User{
		ID:    int64(w.ID),
		Email: w.Email,
		Name:  firstString(w.Name, w.FirstName, w.Username),
		Role:  models.ParseRole(firstString(w.Role, w.UserType)),
	}
	if w.User != nil {
		inner := w.User.normalize()
		if inner.ID != 0 {
			u.ID = inner.ID
		}
		u.Email = firstString(inner.Email, u.Email)
		u.Name = firstString(inner.Name, u.Name)
		if inner.Role.Valid() {
			u.Role = inner.Role
		}
	}
	return u
}

type projectWire struct {
	ID                 flexInt     `json:"id"`
	ProjectID          flexInt     `json:"project_id"`
	Name               string      `json:"name"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	MaxPrice           flexDecimal `json:"max_price"`
	MaxPriceCamel      flexDecimal `json:"maxPrice"`
	Price              flexDecimal `json:"price"`
	EstimatedPrice     flexDecimal `json:"estimated_price"`
	EstimatedDate      string      `json:"estimated_date"`
	EstimatedDateCamel string      `json:"estimatedDate"`
	Deadline           string      `json:"deadline"`
	Address            string      `json:"address"`
	State              string      `json:"state"`
	City               string      `json:"city"`
	PDF                string      `json:"pdf"`
	PDFFile            string      `json:"pdf_file"`
	Status             string      `json:"status"`
}

func (w projectWire) normalize() models.Project {
	return models.Project{
		ID:            firstInt(w.ID, w.ProjectID),
		Name:          firstString(w.Name, w.Title),
		Description:   w.Description,
		MaxPrice:      firstDecimal(w.MaxPrice, w.MaxPriceCamel, w.Price, w.EstimatedPrice),
		EstimatedDate: firstDate(w.EstimatedDate, w.EstimatedDateCamel, w.Deadline),
		Address:       w.Address,
		State:         w.State,
		City:          w.City,
		PDF:           firstString(w.PDF, w.PDFFile),
		Status:        w.Status,
	}
}

type quotationWire struct {
	QuotationID        flexInt     `json:"quotation_id"`
	ID                 flexInt     `json:"id"`
	ProjectID          flexInt     `json:"project_id"`
	Project            ref         `json:"project"`
	ProjectName        string      `json:"project_name"`
	MakerName          string      `json:"maker_name"`
	CompanyName        string      `json:"company_name"`
	Price              flexDecimal `json:"price"`
	QuotedPrice        flexDecimal `json:"quoted_price"`
	EstimatedPrice     flexDecimal `json:"estimated_price"`
	Description        string      `json:"description"`
	EstimatedDate      string      `json:"estimated_date"`
	EstimatedDateCamel string      `json:"estimatedDate"`
	Deadline           string      `json:"deadline"`
	PDFQuotation       string      `json:"pdf_quotation"`
	PDF                string      `json:"pdf"`
	Status             string      `json:"status"`
}

func (w quotationWire) normalize() models.Quotation {
	status := strings.ToLower(w.Status)
	if status == "" {
		status = "pending"
	}
	return models.Quotation{
		ID:            firstInt(w.QuotationID, w.ID),
		ProjectID:     firstInt(w.ProjectID, flexInt(w.Project.id())),
		ProjectName:   firstString(w.ProjectName, w.Project.Name, w.Project.Title),
		MakerName:     firstString(w.MakerName, w.CompanyName),
		Price:         firstDecimal(w.Price, w.QuotedPrice, w.EstimatedPrice),
		Description:   w.Description,
		EstimatedDate: firstDate(w.EstimatedDate, w.EstimatedDateCamel, w.Deadline),
		PDF:           firstString(w.PDFQuotation, w.PDF),
		Status:        status,
	}
}

type completedOrderWire struct {
	ID          flexInt     `json:"id"`
	OrderID     flexInt     `json:"order_id"`
	Project     ref         `json:"project"`
	ProjectName string      `json:"project_name"`
	Quotation   ref         `json:"quotation"`
	Price       flexDecimal `json:"price"`
	FinalPrice  flexDecimal `json:"final_price"`
	CompletedAt string      `json:"completed_at"`
	CreatedAt   string      `json:"created_at"`
}

func (w completedOrderWire) normalize() models.CompletedOrder {
	return models.CompletedOrder{
		ID:          firstInt(w.ID, w.OrderID),
		ProjectID:   w.Project.id(),
		ProjectName: firstString(w.ProjectName, w.Project.Name, w.Project.Title),
		QuotationID: w.Quotation.id(),
		Price:       firstDecimal(w.Price, w.FinalPrice, w.Quotation.Price),
		CompletedAt: parseTime(firstString(w.CompletedAt, w.CreatedAt)),
	}
}

type companyWire struct {
	CompanyName     string      `json:"company_name"`
	Name            string      `json:"name"`
	YearEstablished flexInt     `json:"year_established"`
	Specializations flexStrings `json:"specializations"`
	Address         string      `json:"address"`
	State           string      `json:"state"`
	City            string      `json:"city"`
	Website         string      `json:"website"`
}

func (w companyWire) normalize() models.CompanyProfile {
	specs := []string(w.Specializations)
	if specs == nil {
		specs = []string{}
	}
	return models.CompanyProfile{
		CompanyName:     firstString(w.CompanyName, w.Name),
		YearEstablished: int(w.YearEstablished),
		Specializations: specs,
		Address:         w.Address,
		State:           w.State,
		City:            w.City,
		Website:         w.Website,
	}
}

type subscriptionWire struct {
	Plan             json.RawMessage `json:"plan"`
	PlanName         string          `json:"plan_name"`
	RemainingCredits flexInt         `json:"remaining_credits"`
	CreditsRemaining flexInt         `json:"credits_remaining"`
	Credits          flexInt         `json:"credits"`
	EndDate          string          `json:"end_date"`
	ExpiresAt        string          `json:"expires_at"`
}

func (w subscriptionWire) normalize() models.Subscription {
	name := w.PlanName
	if len(w.Plan) > 0 {
		var s string
		var obj struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(w.Plan, &s) == nil {
			name = firstString(s, name)
		} else if json.Unmarshal(w.Plan, &obj) == nil {
			name = firstString(obj.Name, name)
		}
	}
	return models.Subscription{
		Plan:             models.ParsePlanName(name),
		RemainingCredits: int(firstInt(w.RemainingCredits, w.CreditsRemaining, w.Credits)),
		EndDate:          firstDate(w.EndDate, w.ExpiresAt),
	}
}

type planWire struct {
	ID               flexInt     `json:"id"`
	Name             string      `json:"name"`
	PlanName         string      `json:"plan_name"`
	Price            flexDecimal `json:"price"`
	Credits          flexInt     `json:"credits"`
	QuotationCredits flexInt     `json:"quotation_credits"`
	DurationDays     flexInt     `json:"duration_days"`
	Duration         flexInt     `json:"duration"`
}

func (w planWire) normalize() models.Plan {
	return models.Plan{
		ID:           int64(w.ID),
		Name:         models.ParsePlanName(firstString(w.Name, w.PlanName)),
		Price:        firstDecimal(w.Price),
		Credits:      int(firstInt(w.Credits, w.QuotationCredits)),
		DurationDays: int(firstInt(w.DurationDays, w.Duration)),
	}
}

type orderWire struct {
	OrderID     string  `json:"order_id"`
	ID          string  `json:"id"`
	Amount      flexInt `json:"amount"`
	Currency    string  `json:"currency"`
	Key         string  `json:"key"`
	KeyID       string  `json:"key_id"`
	RazorpayKey string  `json:"razorpay_key"`
	PlanID      flexInt `json:"plan_id"`
}

func (w orderWire) normalize() models.Order {
	cur := strings.ToUpper(w.Currency)
	if cur == "" {
		cur = "INR"
	}
	return models.Order{
		ID:       firstString(w.OrderID, w.ID),
		Amount:   int64(w.Amount),
		Currency: cur,
		KeyID:    firstString(w.Key, w.KeyID, w.RazorpayKey),
		PlanID:   int64(w.PlanID),
	}
}

func normalizeAll[W interface{ normalize() M }, M any](in []W) []M {
	out := make([]M, 0, len(in))
	for _, w := range in {
		out = append(out, w.normalize())
	}
	return out
}
