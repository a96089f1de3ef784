package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/machmate/machmate-web/internal/models"
)

type QuotationInput struct {
	Price         decimal.Decimal
	Description   string
	EstimatedDate models.Date
	PDF           *Upload
}

func (c *Client) ListOpenProjects(ctx context.Context, creds *Credentials) ([]models.Project, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, creds, "/maker/projects/", &raw); err != nil {
		return nil, err
	}
	ws, err := decodeList[projectWire](raw, "projects")
	if err != nil {
		return nil, err
	}
	return normalizeAll[projectWire, models.Project](ws), nil
}

func (c *Client) GetOpenProject(ctx context.Context, creds *Credentials, id int64) (*models.Project, error) {
	var w projectWire
	if err := c.getJSON(ctx, creds, fmt.Sprintf("/maker/projects/%d/", id), &w); err != nil {
		return nil, err
	}
	p := w.normalize()
	if p.ID == 0 {
		p.ID = id
	}
	return &p, nil
}

func (c *Client) SubmitQuotation(ctx context.Context, creds *Credentials, projectID int64, in QuotationInput) (*models.Quotation, error) {
	fields := map[string]string{
		"price":          in.Price.StringFixed(2),
		"description":    in.Description,
		"estimated_date": in.EstimatedDate.String(),
	}
	var w quotationWire
	path := fmt.Sprintf("/maker/projects/%d/quotations/", projectID)
	if err := c.sendMultipart(ctx, creds, http.MethodPost, path, fields, "pdf_quotation", in.PDF, &w); err != nil {
		return nil, err
	}
	q := w.normalize()
	if q.ProjectID == 0 {
		q.ProjectID = projectID
	}
	return &q, nil
}

func (c *Client) ListMyQuotations(ctx context.Context, creds *Credentials) ([]models.Quotation, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, creds, "/maker/quotations/", &raw); err != nil {
		return nil, err
	}
	ws, err := decodeList[quotationWire](raw, "quotations")
	if err != nil {
		return nil, err
	}
	return normalizeAll[quotationWire, models.Quotation](ws), nil
}

func (c *Client) DeleteQuotation(ctx context.Context, creds *Credentials, id int64) error {
	return c.sendJSON(ctx, creds, http.MethodDelete, fmt.Sprintf("/maker/quotations/%d/", id), nil, nil)
}

// GetCompanyProfile returns an error matching ErrNotFound when the maker has not onboarded yet.
func (c *Client) GetCompanyProfile(ctx context.Context, creds *Credentials) (*models.CompanyProfile, error) {
	var w companyWire
	if err := c.getJSON(ctx, creds, "/maker/company-details/", &w); err != nil {
		return nil, err
	}
	p := w.normalize()
	return &p, nil
}

// SaveCompanyProfile creates the profile (POST) or replaces it (PUT).
func (c *Client) SaveCompanyProfile(ctx context.Context, creds *Credentials, p models.CompanyProfile, create bool) (*models.CompanyProfile, error) {
	method := http.MethodPut
	if create {
		method = http.MethodPost
	}
	in := map[string]any{
		"company_name":     p.CompanyName,
		"year_established": strconv.Itoa(p.YearEstablished),
		"specializations":  strings.Join(p.Specializations, ","),
		"address":          p.Address,
		"state":            p.State,
		"city":             p.City,
		"website":          p.Website,
	}
	var w companyWire
	if err := c.sendJSON(ctx, creds, method, "/maker/company-details/", in, &w); err != nil {
		return nil, err
	}
	out := w.normalize()
	if out.CompanyName == "" {
		out = p
	}
	return &out, nil
}
