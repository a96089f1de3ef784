package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/machmate/machmate-web/internal/events"
	"github.com/machmate/machmate-web/internal/form"
	"github.com/machmate/machmate-web/internal/logging"
	"github.com/machmate/machmate-web/internal/models"
	"github.com/machmate/machmate-web/pkg/apiclient"
)

type buyerDashboard struct {
	Projects []models.Project        `json:"projects"`
	Orders   []models.CompletedOrder `json:"orders"`
}

type projectDetail struct {
	Project    models.Project     `json:"project"`
	Quotations []models.Quotation `json:"quotations"`
}

func (h *Handler) BuyerDashboard(c echo.Context) error {
	p := h.page(c, "buyer_dashboard")
	data := buyerDashboard{Projects: []models.Project{}, Orders: []models.CompletedOrder{}}
	p.Data = &data

	err := load(c,
		func(ctx context.Context, cr *apiclient.Credentials) error {
			ps, err := h.API.ListProjects(ctx, cr)
			if err == nil {
				data.Projects = ps
			}
			return err
		},
		func(ctx context.Context, cr *apiclient.Credentials) error {
			orders, err := h.API.ListCompletedOrders(ctx, cr)
			if err == nil {
				data.Orders = orders
			}
			return err
		},
	)
	if err != nil {
		return h.fail(c, err, p, 0)
	}
	return h.render(c, http.StatusOK, p)
}

func (h *Handler) Orders(c echo.Context) error {
	p := h.page(c, "buyer_orders")
	p.Data = []models.CompletedOrder{}
	orders, err := h.API.ListCompletedOrders(c.Request().Context(), creds(c))
	if err != nil {
		return h.fail(c, err, p, 0)
	}
	p.Data = orders
	return h.render(c, http.StatusOK, p)
}

func (h *Handler) Projects(c echo.Context) error {
	p := h.page(c, "buyer_projects")
	p.Data = []models.Project{}
	projects, err := h.API.ListProjects(c.Request().Context(), creds(c))
	if err != nil {
		return h.fail(c, err, p, 0)
	}
	p.Data = projects
	return h.render(c, http.StatusOK, p)
}

func (h *Handler) NewProject(c echo.Context) error {
	p := h.page(c, "project_form")
	p.Form = form.Project.Public(form.Project.Start())
	return h.render(c, http.StatusOK, p)
}

// findProject loads the buyer's projects and picks one; the backend has no
// single-project read for buyers.
func (h *Handler) findProject(ctx context.Context, cr *apiclient.Credentials, id int64) (*models.Project, error) {
	projects, err := h.API.ListProjects(ctx, cr)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if projects[i].ID == id {
			return &projects[i], nil
		}
	}
	return nil, &apiclient.APIError{Status: http.StatusNotFound, Message: "Project not found"}
}

func (h *Handler) ProjectDetail(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return h.NotFound(c)
	}
	p := h.page(c, "buyer_project")
	var data projectDetail

	err := load(c,
		func(ctx context.Context, cr *apiclient.Credentials) error {
			pr, err := h.findProject(ctx, cr, id)
			if err == nil {
				data.Project = *pr
			}
			return err
		},
		func(ctx context.Context, cr *apiclient.Credentials) error {
			qs, err := h.API.ListProjectQuotations(ctx, cr, id)
			if err == nil {
				data.Quotations = qs
			}
			return err
		},
	)
	if errors.Is(err, apiclient.ErrNotFound) {
		return h.NotFound(c)
	}
	if err != nil {
		return h.fail(c, err, p, 0)
	}

	st := form.Project.Start()
	st.Fields = form.ProjectFields(data.Project)
	p.Data = data
	p.Form = form.Project.Public(st)
	return h.render(c, http.StatusOK, p)
}

func projectInput(f form.Fields, pdf *apiclient.Upload) apiclient.ProjectInput {
	price, _ := decimal.NewFromString(strings.TrimSpace(f["max_price"]))
	date, _ := models.ParseDate(strings.TrimSpace(f["estimated_date"]))
	return apiclient.ProjectInput{
		Name:          strings.TrimSpace(f["name"]),
		Description:   strings.TrimSpace(f["description"]),
		MaxPrice:      price,
		EstimatedDate: date,
		Address:       strings.TrimSpace(f["address"]),
		State:         strings.TrimSpace(f["state"]),
		City:          strings.TrimSpace(f["city"]),
		PDF:           pdf,
	}
}

func (h *Handler) CreateProject(c echo.Context) error {
	return h.saveProject(c, 0)
}

func (h *Handler) UpdateProject(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return h.NotFound(c)
	}
	return h.saveProject(c, id)
}

// saveProject creates (id 0) or updates a project. Validation runs before
// any upload is forwarded; a past estimated date never reaches the backend.
func (h *Handler) saveProject(c echo.Context, id int64) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "save_project")

	st := form.Project.Start()
	form.Project.Apply(st, values(c))
	pdf, err := readPDF(c, "pdf", st)
	if err != nil {
		return h.formError(c, form.Project, st, err, "project_form", nil)
	}

	var saved *models.Project
	err = form.Project.Submit(ctx, st, h.now(), h.Guard, form.Key(h.formID(c), form.Project.Name), func(ctx context.Context) error {
		in := projectInput(st.Fields, pdf)
		var err error
		if id == 0 {
			saved, err = h.API.CreateProject(ctx, creds(c), in)
		} else {
			saved, err = h.API.UpdateProject(ctx, creds(c), id, in)
		}
		return err
	})
	if err != nil {
		l.Info("project_save_failed", "project_id", id, "error", err)
		return h.formError(c, form.Project, st, err, "project_form", nil)
	}

	l.Info("project_saved", "project_id", saved.ID, "created", id == 0)
	if id == 0 {
		h.emit(c, events.ProjectCreated, strconv.FormatInt(saved.ID, 10), map[string]string{"name": saved.Name})
		return c.Redirect(http.StatusSeeOther, "/dashboard")
	}
	return c.Redirect(http.StatusSeeOther, "/projects/"+strconv.FormatInt(id, 10))
}

func (h *Handler) DeleteProject(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return h.NotFound(c)
	}
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "delete_project")
	p := h.page(c, "buyer_project")

	if !isTrue(values(c)["confirm"]) {
		p.Banner = "Please confirm that you want to delete this project."
		return h.render(c, http.StatusUnprocessableEntity, p)
	}

	err := h.guarded(c, "delete-project", func(ctx context.Context) error {
		return h.API.DeleteProject(ctx, creds(c), id)
	})
	if errors.Is(err, form.ErrBusy) {
		p.Banner = busyBanner
		return h.render(c, http.StatusConflict, p)
	}
	if err != nil {
		return h.fail(c, err, p, 0)
	}

	l.Info("project_deleted", "project_id", id)
	h.emit(c, events.ProjectDeleted, strconv.FormatInt(id, 10), nil)
	return c.Redirect(http.StatusSeeOther, "/dashboard")
}

// AcceptQuotation accepts and then refreshes projects and completed orders,
// in that order, before responding.
func (h *Handler) AcceptQuotation(c echo.Context) error {
	projectID, ok := pathID(c, "id")
	if !ok {
		return h.NotFound(c)
	}
	qid, ok := pathID(c, "qid")
	if !ok {
		return h.NotFound(c)
	}
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "accept_quotation")
	p := h.page(c, "buyer_project")

	data := buyerDashboard{Projects: []models.Project{}, Orders: []models.CompletedOrder{}}
	err := h.guarded(c, "accept-quotation", func(ctx context.Context) error {
		cr := creds(c)
		if err := h.API.AcceptQuotation(ctx, cr, qid); err != nil {
			return err
		}
		projects, err := h.API.ListProjects(ctx, cr)
		if err != nil {
			return err
		}
		data.Projects = projects
		orders, err := h.API.ListCompletedOrders(ctx, cr)
		if err != nil {
			return err
		}
		data.Orders = orders
		return nil
	})
	if errors.Is(err, form.ErrBusy) {
		p.Banner = busyBanner
		return h.render(c, http.StatusConflict, p)
	}
	if err != nil {
		return h.fail(c, err, p, 0)
	}

	l.Info("quotation_accepted", "project_id", projectID, "quotation_id", qid)
	h.emit(c, events.QuotationAccepted, strconv.FormatInt(qid, 10), map[string]string{"project_id": strconv.FormatInt(projectID, 10)})
	p = h.page(c, "buyer_dashboard")
	p.Data = data
	p.Banner = "Quotation accepted."
	return h.render(c, http.StatusOK, p)
}
