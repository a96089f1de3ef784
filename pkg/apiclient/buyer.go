package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/machmate/machmate-web/internal/models"
)

type ProjectInput struct {
	Name          string
	Description   string
	MaxPrice      decimal.Decimal
	EstimatedDate models.Date
	Address       string
	State         string
	City          string
	PDF           *Upload
}

func (in ProjectInput) fields() map[string]string {
	return map[string]string{
		"name":           in.Name,
		"description":    in.Description,
		"max_price":      in.MaxPrice.StringFixed(2),
		"estimated_date": in.EstimatedDate.String(),
		"address":        in.Address,
		"state":          in.State,
		"city":           in.City,
	}
}

func (c *Client) ListProjects(ctx context.Context, creds *Credentials) ([]models.Project, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, creds, "/buyer/projects/", &raw); err != nil {
		return nil, err
	}
	ws, err := decodeList[projectWire](raw, "projects")
	if err != nil {
		return nil, err
	}
	return normalizeAll[projectWire, models.Project](ws), nil
}

func (c *Client) CreateProject(ctx context.Context, creds *Credentials, in ProjectInput) (*models.Project, error) {
	var w projectWire
	if err := c.sendMultipart(ctx, creds, http.MethodPost, "/buyer/projects/", in.fields(), "pdf", in.PDF, &w); err != nil {
		return nil, err
	}
	p := w.normalize()
	return &p, nil
}

func (c *Client) UpdateProject(ctx context.Context, creds *Credentials, id int64, in ProjectInput) (*models.Project, error) {
	var w projectWire
	path := fmt.Sprintf("/buyer/projects/%d/", id)
	if err := c.sendMultipart(ctx, creds, http.MethodPut, path, in.fields(), "pdf", in.PDF, &w); err != nil {
		return nil, err
	}
	p := w.normalize()
	if p.ID == 0 {
		p.ID = id
	}
	return &p, nil
}

func (c *Client) DeleteProject(ctx context.Context, creds *Credentials, id int64) error {
	return c.sendJSON(ctx, creds, http.MethodDelete, fmt.Sprintf("/buyer/projects/%d/", id), nil, nil)
}

func (c *Client) ListProjectQuotations(ctx context.Context, creds *Credentials, projectID int64) ([]models.Quotation, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, creds, fmt.Sprintf("/buyer/projects/%d/quotations/", projectID), &raw); err != nil {
		return nil, err
	}
	ws, err := decodeList[quotationWire](raw, "quotations")
	if err != nil {
		return nil, err
	}
	qs := normalizeAll[quotationWire, models.Quotation](ws)
	for i := range qs {
		if qs[i].ProjectID == 0 {
			qs[i].ProjectID = projectID
		}
	}
	return qs, nil
}

func (c *Client) AcceptQuotation(ctx context.Context, creds *Credentials, quotationID int64) error {
	return c.sendJSON(ctx, creds, http.MethodPost, fmt.Sprintf("/buyer/quotations/%d/accept/", quotationID), nil, nil)
}

func (c *Client) ListCompletedOrders(ctx context.Context, creds *Credentials) ([]models.CompletedOrder, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, creds, "/buyer/completed-orders/", &raw); err != nil {
		return nil, err
	}
	ws, err := decodeList[completedOrderWire](raw, "orders", "completed_orders")
	if err != nil {
		return nil, err
	}
	return normalizeAll[completedOrderWire, models.CompletedOrder](ws), nil
}
