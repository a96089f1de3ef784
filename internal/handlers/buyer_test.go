package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machmate/machmate-web/internal/models"
)

func validProjectForm() url.Values {
	return url.Values{
		"name":           {"Gear housing"},
		"description":    {"CNC milled aluminium housing"},
		"max_price":      {"1500.50"},
		"estimated_date": {"2025-04-01"},
		"address":        {"12 Industrial Rd"},
		"state":          {"Maharashtra"},
		"city":           {"Pune"},
	}
}

func TestBuyerDashboard_LoadsProjectsAndOrders(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleBuyer)
	env.backend.on(http.MethodGet, "/buyer/projects/", http.StatusOK, []map[string]any{
		{"id": 1, "name": "Shaft", "max_price": "1200.50", "estimated_date": "2025-04-01"},
	})
	env.backend.on(http.MethodGet, "/buyer/completed-orders/", http.StatusOK, map[string]any{
		"orders": []map[string]any{{"id": 9, "project_id": 1, "price": 1100}},
	})

	rec := env.serve(t, env.h.BuyerDashboard, request{method: http.MethodGet, target: "/dashboard", sid: sid})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decodePage(t, rec)
	assert.Equal(t, "buyer_dashboard", p.View)
	assert.True(t, p.Session.Authenticated)
	assert.Equal(t, models.RoleBuyer, p.Session.Role)

	var data buyerDashboard
	require.NoError(t, json.Unmarshal(p.Data, &data))
	require.Len(t, data.Projects, 1)
	assert.Equal(t, "Shaft", data.Projects[0].Name)
	assert.Equal(t, "1200.5", data.Projects[0].MaxPrice.String())
	require.Len(t, data.Orders, 1)
	assert.Equal(t, int64(9), data.Orders[0].ID)
	assert.Equal(t, 1, env.backend.count(http.MethodGet, "/auth/me/"))
}

func TestCreateProject_PastDateBlockedLocally(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleBuyer)
	f := validProjectForm()
	f.Set("estimated_date", "2025-03-09")

	rec := env.serve(t, env.h.CreateProject, request{method: http.MethodPost, target: "/projects", sid: sid, form: f})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	p := decodePage(t, rec)
	require.NotNil(t, p.Form)
	assert.Equal(t, "Date cannot be in the past", p.Form.Errors["estimated_date"])
	assert.Equal(t, "Gear housing", p.Form.Fields["name"])
	assert.Zero(t, env.backend.count(http.MethodPost, "/buyer/projects/"))
}

func TestCreateProject_RejectsNonPDF(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleBuyer)

	rec := env.serve(t, env.h.CreateProject, request{
		method: http.MethodPost, target: "/projects", sid: sid,
		form: validProjectForm(), files: map[string][]byte{"drawing.png": []byte("png")},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Only PDF files are allowed", decodePage(t, rec).Form.Errors["pdf"])
	assert.Zero(t, env.backend.count(http.MethodPost, "/buyer/projects/"))
}

func TestCreateProject_SendsMultipartWithCSRF(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleBuyer)
	env.backend.on(http.MethodPost, "/buyer/projects/", http.StatusCreated, map[string]any{"id": 42, "name": "Gear housing"})

	rec := env.serve(t, env.h.CreateProject, request{
		method: http.MethodPost, target: "/projects", sid: sid,
		form: validProjectForm(), files: map[string][]byte{"drawing.pdf": []byte("%PDF-1.4")},
	})

	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.Equal(t, 1, env.backend.count(http.MethodPost, "/buyer/projects/"))

	h := env.backend.header(http.MethodPost, "/buyer/projects/")
	assert.Equal(t, "up-csrf", h.Get("X-CSRFToken"))
	assert.Contains(t, h.Get("Content-Type"), "multipart/form-data")
	body := string(env.backend.body(http.MethodPost, "/buyer/projects/"))
	assert.Contains(t, body, `filename="drawing.pdf"`)
	assert.Contains(t, body, "1500.50")
}

func TestDeleteProject_RequiresConfirmation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleBuyer)
	env.backend.on(http.MethodDelete, "/buyer/projects/5/", http.StatusNoContent, nil)
	params := map[string]string{"id": "5"}

	rec := env.serve(t, env.h.DeleteProject, request{method: http.MethodPost, target: "/projects/5/delete", sid: sid, params: params})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Zero(t, env.backend.count(http.MethodDelete, "/buyer/projects/5/"))

	rec = env.serve(t, env.h.DeleteProject, request{
		method: http.MethodPost, target: "/projects/5/delete", sid: sid, params: params,
		form: url.Values{"confirm": {"true"}},
	})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, env.backend.count(http.MethodDelete, "/buyer/projects/5/"))
}

func TestAcceptQuotation_RefreshesAfterMutation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleBuyer)
	env.backend.on(http.MethodPost, "/buyer/quotations/11/accept/", http.StatusOK, map[string]string{"status": "accepted"})
	env.backend.on(http.MethodGet, "/buyer/projects/", http.StatusOK, []any{})
	env.backend.on(http.MethodGet, "/buyer/completed-orders/", http.StatusOK, []map[string]any{{"id": 1, "quotation": 11}})

	rec := env.serve(t, env.h.AcceptQuotation, request{
		method: http.MethodPost, target: "/projects/4/quotations/11/accept", sid: sid,
		params: map[string]string{"id": "4", "qid": "11"},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{
		"POST /buyer/quotations/11/accept/",
		"GET /buyer/projects/",
		"GET /buyer/completed-orders/",
	}, env.backend.calls())

	p := decodePage(t, rec)
	assert.Equal(t, "buyer_dashboard", p.View)
	var data buyerDashboard
	require.NoError(t, json.Unmarshal(p.Data, &data))
	require.Len(t, data.Orders, 1)
	assert.Equal(t, int64(11), data.Orders[0].QuotationID)
}

func TestProjectDetail_UnknownProjectIsNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleBuyer)
	env.backend.on(http.MethodGet, "/buyer/projects/", http.StatusOK, []map[string]any{{"id": 1, "name": "Shaft"}})
	env.backend.on(http.MethodGet, "/buyer/projects/2/quotations/", http.StatusOK, []any{})

	rec := env.serve(t, env.h.ProjectDetail, request{
		method: http.MethodGet, target: "/projects/2", sid: sid, params: map[string]string{"id": "2"},
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodePage(t, rec).View)
}

func TestProjectDetail_PrefillsEditForm(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleBuyer)
	env.backend.on(http.MethodGet, "/buyer/projects/", http.StatusOK, []map[string]any{
		{"id": 1, "name": "Shaft", "max_price": 900, "estimated_date": "2025-05-01", "city": "Pune"},
	})
	env.backend.on(http.MethodGet, "/buyer/projects/1/quotations/", http.StatusOK, map[string]any{
		"quotations": []map[string]any{{"id": 3, "price": "850", "status": "Pending"}},
	})

	rec := env.serve(t, env.h.ProjectDetail, request{
		method: http.MethodGet, target: "/projects/1", sid: sid, params: map[string]string{"id": "1"},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decodePage(t, rec)
	require.NotNil(t, p.Form)
	assert.Equal(t, "Shaft", p.Form.Fields["name"])
	assert.Equal(t, "2025-05-01", p.Form.Fields["estimated_date"])

	var data projectDetail
	require.NoError(t, json.Unmarshal(p.Data, &data))
	require.Len(t, data.Quotations, 1)
	assert.Equal(t, "pending", data.Quotations[0].Status)
	assert.Equal(t, int64(1), data.Quotations[0].ProjectID)
}
