package apiclient

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machmate/machmate-web/internal/models"
)

func TestProjectWire_PriceAndDateAliases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantPrice string
		wantDate  string
	}{
		{name: "snake case", body: `{"max_price":"100.50","estimated_date":"2026-11-01"}`, wantPrice: "100.5", wantDate: "2026-11-01"},
		{name: "camel case", body: `{"maxPrice":250,"estimatedDate":"2026-11-02"}`, wantPrice: "250", wantDate: "2026-11-02"},
		{name: "price and deadline", body: `{"price":"75","deadline":"2026-11-03T00:00:00Z"}`, wantPrice: "75", wantDate: "2026-11-03"},
		{name: "estimated price", body: `{"estimated_price":12.25}`, wantPrice: "12.25", wantDate: ""},
		{name: "garbage price", body: `{"max_price":"n/a","price":"9"}`, wantPrice: "9", wantDate: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var w projectWire
			require.NoError(t, json.Unmarshal([]byte(tt.body), &w))
			p := w.normalize()
			assert.True(t, decimal.RequireFromString(tt.wantPrice).Equal(p.MaxPrice), p.MaxPrice.String())
			assert.Equal(t, tt.wantDate, p.EstimatedDate.String())
		})
	}
}

func TestDecodeList_Envelopes(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`[{"id":1},{"id":2}]`,
		`{"results":[{"id":1},{"id":2}]}`,
		`{"projects":[{"id":1},{"id":2}]}`,
	} {
		ws, err := decodeList[projectWire](json.RawMessage(body), "projects")
		require.NoError(t, err, body)
		assert.Len(t, ws, 2, body)
	}

	ws, err := decodeList[projectWire](json.RawMessage(`{"count":0}`), "projects")
	require.NoError(t, err)
	assert.Empty(t, ws)
}

func TestQuotationWire_ProjectRef(t *testing.T) {
	t.Parallel()

	var a, b quotationWire
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"project":7,"quoted_price":"10"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"quotation_id":4,"project":{"id":8,"name":"Bracket"},"status":"ACCEPTED"}`), &b))

	qa, qb := a.normalize(), b.normalize()
	assert.Equal(t, int64(3), qa.ID)
	assert.Equal(t, int64(7), qa.ProjectID)
	assert.Equal(t, "pending", qa.Status)
	assert.Equal(t, int64(4), qb.ID)
	assert.Equal(t, int64(8), qb.ProjectID)
	assert.Equal(t, "Bracket", qb.ProjectName)
	assert.Equal(t, "accepted", qb.Status)
}

func TestCompanyWire_Specializations(t *testing.T) {
	t.Parallel()

	var a, b companyWire
	require.NoError(t, json.Unmarshal([]byte(`{"company_name":"Acme","year_established":"1999","specializations":"CNC, Welding"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Acme","specializations":[{"name":"CNC"},"Casting"]}`), &b))

	pa, pb := a.normalize(), b.normalize()
	assert.Equal(t, 1999, pa.YearEstablished)
	assert.Equal(t, []string{"CNC", "Welding"}, pa.Specializations)
	assert.Equal(t, "Acme", pb.CompanyName)
	assert.Equal(t, []string{"CNC", "Casting"}, pb.Specializations)
}

func TestSubscriptionWire_PlanShapes(t *testing.T) {
	t.Parallel()

	var a, b subscriptionWire
	require.NoError(t, json.Unmarshal([]byte(`{"plan":"Pro","remaining_credits":4,"end_date":"2027-01-01"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"plan":{"name":"basic"},"credits_remaining":"2"}`), &b))

	sa, sb := a.normalize(), b.normalize()
	assert.Equal(t, models.PlanPro, sa.Plan)
	assert.Equal(t, 4, sa.RemainingCredits)
	assert.Equal(t, "2027-01-01", sa.EndDate.String())
	assert.Equal(t, models.PlanBasic, sb.Plan)
	assert.Equal(t, 2, sb.RemainingCredits)
}

func TestUserWire_NestedUser(t *testing.T) {
	t.Parallel()

	var w userWire
	require.NoError(t, json.Unmarshal([]byte(`{"user":{"id":5,"email":"a@b.com","user_type":"maker"}}`), &w))
	u := w.normalize()
	assert.Equal(t, int64(5), u.ID)
	assert.Equal(t, models.RoleMaker, u.Role)
	assert.Equal(t, "a@b.com", u.Email)
}
