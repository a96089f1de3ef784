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

func TestCheckout_BuildsWidgetOptions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleMaker)
	env.backend.on(http.MethodGet, "/subscriptions/plans/", http.StatusOK, []map[string]any{
		{"id": 1, "name": "basic", "price": "499"},
		{"id": 2, "name": "pro", "price": "999"},
	})
	env.backend.on(http.MethodPost, "/subscriptions/create-order/", http.StatusOK, map[string]any{
		"order_id": "order_abc", "amount": 99900, "currency": "inr",
	})

	rec := env.serve(t, env.h.Checkout, request{
		method: http.MethodPost, target: "/subscription/checkout", sid: sid,
		form: url.Values{"plan_id": {"2"}},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var data subscriptionView
	require.NoError(t, json.Unmarshal(decodePage(t, rec).Data, &data))
	require.NotNil(t, data.Checkout)
	assert.Equal(t, "rzp_test_key", data.Checkout.Key)
	assert.Equal(t, "order_abc", data.Checkout.OrderID)
	assert.Equal(t, int64(99900), data.Checkout.Amount)
	assert.Equal(t, "INR", data.Checkout.Currency)
	assert.Equal(t, "Pro plan", data.Checkout.Description)
	assert.Equal(t, "a@b.com", data.Checkout.Prefill.Email)

	var sent map[string]int64
	require.NoError(t, json.Unmarshal(env.backend.body(http.MethodPost, "/subscriptions/create-order/"), &sent))
	assert.Equal(t, int64(2), sent["plan_id"])
}

func TestCheckout_JSONPlanID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleMaker)
	env.backend.on(http.MethodGet, "/subscriptions/plans/", http.StatusOK, []map[string]any{
		{"id": 1234567, "name": "pro", "price": "999"},
	})
	env.backend.on(http.MethodPost, "/subscriptions/create-order/", http.StatusOK, map[string]any{
		"order_id": "order_big", "amount": 99900, "currency": "INR",
	})

	rec := env.serve(t, env.h.Checkout, request{
		method: http.MethodPost, target: "/subscription/checkout", sid: sid,
		json: `{"plan_id":1234567}`,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sent map[string]int64
	require.NoError(t, json.Unmarshal(env.backend.body(http.MethodPost, "/subscriptions/create-order/"), &sent))
	assert.Equal(t, int64(1234567), sent["plan_id"])
}

func TestCheckout_UnknownPlan(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleMaker)
	env.backend.on(http.MethodGet, "/subscriptions/plans/", http.StatusOK, []map[string]any{{"id": 1, "name": "basic"}})

	rec := env.serve(t, env.h.Checkout, request{
		method: http.MethodPost, target: "/subscription/checkout", sid: sid,
		form: url.Values{"plan_id": {"9"}},
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "That plan is no longer available.", decodePage(t, rec).Banner)
	assert.Zero(t, env.backend.count(http.MethodPost, "/subscriptions/create-order/"))
}

func TestVerifyPayment_IncompleteReplyNotForwarded(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleMaker)

	rec := env.serve(t, env.h.VerifyPayment, request{
		method: http.MethodPost, target: "/subscription/verify", sid: sid,
		form: url.Values{"razorpay_order_id": {"order_abc"}, "razorpay_payment_id": {"pay_1"}},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Zero(t, env.backend.count(http.MethodPost, "/subscriptions/verify-payment/"))
}

func TestVerifyPayment_ForwardsUnchanged(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleMaker)
	env.backend.on(http.MethodPost, "/subscriptions/verify-payment/", http.StatusOK, map[string]string{"status": "ok"})
	env.backend.on(http.MethodGet, "/subscriptions/current/", http.StatusOK, map[string]any{"plan": "pro", "remaining_credits": 25})

	rec := env.serve(t, env.h.VerifyPayment, request{
		method: http.MethodPost, target: "/subscription/verify", sid: sid,
		form: url.Values{
			"razorpay_order_id":   {"order_abc"},
			"razorpay_payment_id": {"pay_1"},
			"razorpay_signature":  {"sig"},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sent map[string]string
	require.NoError(t, json.Unmarshal(env.backend.body(http.MethodPost, "/subscriptions/verify-payment/"), &sent))
	assert.Equal(t, map[string]string{
		"razorpay_order_id":   "order_abc",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "sig",
	}, sent)

	var data subscriptionView
	require.NoError(t, json.Unmarshal(decodePage(t, rec).Data, &data))
	assert.Equal(t, 25, data.Subscription.RemainingCredits)
}

func TestCancelSubscription_RefreshesCurrent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sid := env.signIn(t, models.RoleMaker)
	env.backend.on(http.MethodPost, "/subscriptions/cancel/", http.StatusOK, nil)
	env.backend.on(http.MethodGet, "/subscriptions/current/", http.StatusNotFound, map[string]string{"detail": "none"})

	rec := env.serve(t, env.h.CancelSubscription, request{method: http.MethodPost, target: "/subscription/cancel", sid: sid})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"POST /subscriptions/cancel/", "GET /subscriptions/current/"}, env.backend.calls())
	var data subscriptionView
	require.NoError(t, json.Unmarshal(decodePage(t, rec).Data, &data))
	assert.Equal(t, models.PlanNone, data.Subscription.Plan)
}
