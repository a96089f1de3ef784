package form

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/machmate/machmate-web/internal/models"
)

const MaxPDFSize = 10 << 20

var validate = validator.New()

type rule struct {
	field string
	tag   string
	msg   string
}

// check applies tag rules in order; the first failing rule per field wins.
func check(f Fields, rules ...rule) Errors {
	errs := Errors{}
	for _, r := range rules {
		if _, done := errs[r.field]; done {
			continue
		}
		if err := validate.Var(strings.TrimSpace(f[r.field]), r.tag); err != nil {
			errs[r.field] = r.msg
		}
	}
	return errs
}

func confirm(errs Errors, f Fields, field, other, msg string) {
	if _, done := errs[field]; done {
		return
	}
	if err := validate.VarWithValue(f[field], f[other], "eqfield"); err != nil {
		errs[field] = msg
	}
}

func positiveDecimal(errs Errors, f Fields, field, label string) {
	if _, done := errs[field]; done {
		return
	}
	d, err := decimal.NewFromString(strings.TrimSpace(f[field]))
	if err != nil {
		errs[field] = label + " must be a number"
		return
	}
	if !d.IsPositive() {
		errs[field] = label + " must be greater than 0"
	}
}

func notPastDate(errs Errors, f Fields, field string, now time.Time) {
	if _, done := errs[field]; done {
		return
	}
	d, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(f[field]), now.Location())
	if err != nil {
		errs[field] = "Enter a valid date"
		return
	}
	y, m, day := now.Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, now.Location())
	if d.Before(today) {
		errs[field] = "Date cannot be in the past"
	}
}

func yearBetween(errs Errors, f Fields, field string, min int, now time.Time) {
	if _, done := errs[field]; done {
		return
	}
	y, err := strconv.Atoi(strings.TrimSpace(f[field]))
	if err != nil || y < min || y > now.Year() {
		errs[field] = "Enter a year between " + strconv.Itoa(min) + " and " + strconv.Itoa(now.Year())
	}
}

// optionalPDF checks the pdf_name/pdf_size pair filled in from an upload.
func optionalPDF(errs Errors, f Fields) {
	name := strings.TrimSpace(f["pdf_name"])
	if name == "" {
		return
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		errs["pdf"] = "Only PDF files are allowed"
		return
	}
	size, err := strconv.ParseInt(f["pdf_size"], 10, 64)
	if err != nil || size <= 0 {
		errs["pdf"] = "The PDF file is empty"
		return
	}
	if size > MaxPDFSize {
		errs["pdf"] = "PDF must be 10 MB or smaller"
	}
}

func optionalURL(errs Errors, f Fields, field string) {
	v := strings.TrimSpace(f[field])
	if v == "" {
		return
	}
	if !strings.Contains(v, "://") {
		v = "https://" + v
	}
	if err := validate.Var(v, "url"); err != nil {
		errs[field] = "Enter a valid website URL"
	}
}

// SplitList turns a comma-separated field into its non-empty parts.
func SplitList(v string) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		out = append(out, p)
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func joinList(items []string) string {
	return strings.Join(items, ", ")
}
