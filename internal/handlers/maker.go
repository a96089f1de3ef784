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

const onboardingView = "company_onboarding"

type makerDashboard struct {
	Profile      *models.CompanyProfile `json:"profile"`
	Projects     []models.Project       `json:"projects"`
	Subscription *models.Subscription   `json:"subscription"`
	Quotations   []models.Quotation     `json:"quotations"`
}

type openProject struct {
	Project      models.Project       `json:"project"`
	Subscription *models.Subscription `json:"subscription"`
}

// MakerDashboard shows onboarding instead of dashboard content until the
// maker has a company profile.
func (h *Handler) MakerDashboard(c echo.Context) error {
	ctx := c.Request().Context()
	p := h.page(c, "maker_dashboard")

	profile, err := h.API.GetCompanyProfile(ctx, creds(c))
	if errors.Is(err, apiclient.ErrNotFound) {
		logging.FromContext(ctx).Info("company_profile_missing")
		return h.companyPage(c, onboardingView, true)
	}
	if err != nil {
		return h.fail(c, err, p, 0)
	}

	data := makerDashboard{Profile: profile, Projects: []models.Project{}, Quotations: []models.Quotation{}}
	p.Data = &data
	err = load(c,
		func(ctx context.Context, cr *apiclient.Credentials) error {
			ps, err := h.API.ListOpenProjects(ctx, cr)
			if err == nil {
				data.Projects = ps
			}
			return err
		},
		func(ctx context.Context, cr *apiclient.Credentials) error {
			sub, err := h.API.CurrentSubscription(ctx, cr)
			if err == nil {
				data.Subscription = sub
			}
			return err
		},
		func(ctx context.Context, cr *apiclient.Credentials) error {
			qs, err := h.API.ListMyQuotations(ctx, cr)
			if err == nil {
				data.Quotations = qs
			}
			return err
		},
	)
	if err != nil {
		return h.fail(c, err, p, 0)
	}
	return h.render(c, http.StatusOK, p)
}

func (h *Handler) OpenProject(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return h.NotFound(c)
	}
	p := h.page(c, "open_project")
	var data openProject

	err := load(c,
		func(ctx context.Context, cr *apiclient.Credentials) error {
			pr, err := h.API.GetOpenProject(ctx, cr, id)
			if err == nil {
				data.Project = *pr
			}
			return err
		},
		func(ctx context.Context, cr *apiclient.Credentials) error {
			sub, err := h.API.CurrentSubscription(ctx, cr)
			if err == nil {
				data.Subscription = sub
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
	p.Data = data
	p.Form = form.Quotation.Public(form.Quotation.Start())
	return h.render(c, http.StatusOK, p)
}

// SubmitQuotation checks the maker's credits before anything is posted, then
// refreshes the maker's own quotations.
func (h *Handler) SubmitQuotation(c echo.Context) error {
	projectID, ok := pathID(c, "id")
	if !ok {
		return h.NotFound(c)
	}
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "submit_quotation")

	st := form.Quotation.Start()
	form.Quotation.Apply(st, values(c))
	pdf, err := readPDF(c, "pdf", st)
	if err != nil {
		return h.formError(c, form.Quotation, st, err, "open_project", nil)
	}

	var quotations []models.Quotation
	err = form.Quotation.Submit(ctx, st, h.now(), h.Guard, form.Key(h.formID(c), form.Quotation.Name), func(ctx context.Context) error {
		cr := creds(c)
		sub, err := h.API.CurrentSubscription(ctx, cr)
		if err != nil {
			return err
		}
		if !sub.CanQuote() {
			return errNoCredits
		}
		price, _ := decimal.NewFromString(strings.TrimSpace(st.Fields["price"]))
		date, _ := models.ParseDate(strings.TrimSpace(st.Fields["estimated_date"]))
		if _, err := h.API.SubmitQuotation(ctx, cr, projectID, apiclient.QuotationInput{
			Price:         price,
			Description:   strings.TrimSpace(st.Fields["description"]),
			EstimatedDate: date,
			PDF:           pdf,
		}); err != nil {
			return err
		}
		quotations, err = h.API.ListMyQuotations(ctx, cr)
		return err
	})
	if err != nil {
		l.Info("quotation_rejected", "project_id", projectID, "error", err)
		return h.formError(c, form.Quotation, st, err, "open_project", nil)
	}

	l.Info("quotation_submitted", "project_id", projectID)
	h.emit(c, events.QuotationSubmitted, strconv.FormatInt(projectID, 10), nil)
	p := h.page(c, "maker_quotations")
	p.Data = quotations
	p.Banner = "Quotation submitted."
	return h.render(c, http.StatusCreated, p)
}

func (h *Handler) MyQuotations(c echo.Context) error {
	p := h.page(c, "maker_quotations")
	p.Data = []models.Quotation{}
	qs, err := h.API.ListMyQuotations(c.Request().Context(), creds(c))
	if err != nil {
		return h.fail(c, err, p, 0)
	}
	p.Data = qs
	return h.render(c, http.StatusOK, p)
}

func (h *Handler) DeleteQuotation(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return h.NotFound(c)
	}
	ctx := c.Request().Context()
	p := h.page(c, "maker_quotations")

	err := h.guarded(c, "delete-quotation", func(ctx context.Context) error {
		return h.API.DeleteQuotation(ctx, creds(c), id)
	})
	if errors.Is(err, form.ErrBusy) {
		p.Banner = busyBanner
		return h.render(c, http.StatusConflict, p)
	}
	if err != nil {
		return h.fail(c, err, p, 0)
	}
	logging.FromContext(ctx).Info("quotation_deleted", "quotation_id", id)
	return c.Redirect(http.StatusSeeOther, "/maker/quotations")
}

func (h *Handler) CompanyProfilePage(c echo.Context) error {
	return h.companyPage(c, "company_profile", false)
}

// companyPage renders the two-step company form, prefilled from the backend
// the first time it is opened. missing means the profile is known not to exist.
func (h *Handler) companyPage(c echo.Context, view string, missing bool) error {
	ctx := c.Request().Context()
	id := h.formID(c)
	p := h.page(c, view)

	st, err := h.Forms.Load(ctx, id, form.CompanyProfile)
	if err != nil {
		return h.fail(c, err, p, http.StatusInternalServerError)
	}
	_, known := st.Carry["create"]
	if missing && st.Carry["create"] != "true" {
		st.Carry["create"] = "true"
		h.saveForm(c, id, form.CompanyProfile, st)
	} else if !missing && !known {
		profile, err := h.API.GetCompanyProfile(ctx, creds(c))
		switch {
		case errors.Is(err, apiclient.ErrNotFound):
			st.Carry["create"] = "true"
		case err != nil:
			return h.fail(c, err, p, 0)
		default:
			st.Fields = form.ProfileFields(*profile)
			st.Carry["create"] = "false"
		}
		h.saveForm(c, id, form.CompanyProfile, st)
	}
	if st.Carry["create"] == "true" {
		p.View = onboardingView
	}
	p.Form = form.CompanyProfile.Public(st)
	return h.render(c, http.StatusOK, p)
}

func profileFrom(f form.Fields) models.CompanyProfile {
	year, _ := strconv.Atoi(strings.TrimSpace(f["year_established"]))
	website := strings.TrimSpace(f["website"])
	if website != "" && !strings.Contains(website, "://") {
		website = "https://" + website
	}
	return models.CompanyProfile{
		CompanyName:     strings.TrimSpace(f["company_name"]),
		YearEstablished: year,
		Specializations: form.SplitList(f["specializations"]),
		Address:         strings.TrimSpace(f["address"]),
		State:           strings.TrimSpace(f["state"]),
		City:            strings.TrimSpace(f["city"]),
		Website:         website,
	}
}

func (h *Handler) SaveCompanyProfile(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "company_profile")
	id := h.formID(c)
	f := form.CompanyProfile

	st, err := h.Forms.Load(ctx, id, f)
	if err != nil {
		return h.fail(c, err, h.page(c, "company_profile"), http.StatusInternalServerError)
	}
	view := "company_profile"
	if st.Carry["create"] == "true" {
		view = onboardingView
	}

	vals := values(c)
	if isTrue(vals["back"]) && st.Step > 0 {
		st.Step--
		st.StepName = f.Steps[st.Step].Name
		st.Errors = form.Errors{}
		h.saveForm(c, id, f, st)
		p := h.page(c, view)
		p.Form = f.Public(st)
		return h.render(c, http.StatusOK, p)
	}
	f.Apply(st, vals)

	var action func(context.Context) error
	if f.Last(st) {
		action = func(ctx context.Context) error {
			cr := creds(c)
			create := st.Carry["create"] == "true"
			if _, known := st.Carry["create"]; !known {
				_, err := h.API.GetCompanyProfile(ctx, cr)
				if err != nil && !errors.Is(err, apiclient.ErrNotFound) {
					return err
				}
				create = err != nil
			}
			_, err := h.API.SaveCompanyProfile(ctx, cr, profileFrom(st.Fields), create)
			return err
		}
	}

	step := f.Current(st).Name
	err = f.Submit(ctx, st, h.now(), h.Guard, form.Key(id, f.Name), action)
	if err != nil {
		if !errors.Is(err, form.ErrBusy) {
			h.saveForm(c, id, f, st)
		}
		l.Info("step_failed", "step", step, "error", err)
		return h.formError(c, f, st, err, view, nil)
	}

	if st.Done {
		h.dropForm(c, id, f)
		l.Info("company_profile_saved", "created", view == onboardingView)
		return c.Redirect(http.StatusSeeOther, "/maker-dashboard")
	}
	h.saveForm(c, id, f, st)
	p := h.page(c, view)
	p.Form = f.Public(st)
	return h.render(c, http.StatusOK, p)
}
