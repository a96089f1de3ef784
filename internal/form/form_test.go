package form

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)

type userErr struct{ msg string }

func (e userErr) Error() string       { return "api: " + e.msg }
func (e userErr) UserMessage() string { return e.msg }

func newTestGuard(t *testing.T) (*Guard, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewGuard(client, time.Minute), client
}

func validProject() Fields {
	return Fields{
		"name":           "Gear housing",
		"description":    "CNC aluminium housing",
		"max_price":      "1500",
		"estimated_date": "2026-10-18",
		"address":        "12 Mill Rd",
		"state":          "KA",
		"city":           "Bengaluru",
	}
}

func TestAdvance_BlockedByErrors(t *testing.T) {
	t.Parallel()

	st := Signup.Start()
	st.Fields = Fields{"name": "A", "email": "not-an-email", "password": "123", "confirm_password": "123", "role": "buyer"}

	err := Signup.Advance(st, today)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, 0, st.Step)
	assert.Contains(t, st.Errors, "email")
	assert.Contains(t, st.Errors, "password")
	assert.False(t, st.Done)
}

func TestAdvance_MovesAndScrubsSensitive(t *testing.T) {
	t.Parallel()

	st := Signup.Start()
	st.Fields = Fields{"name": "A", "email": "a@b.com", "password": "secret1", "confirm_password": "secret1", "role": "maker"}

	require.NoError(t, Signup.Advance(st, today))
	assert.Equal(t, 1, st.Step)
	assert.Equal(t, "verify", st.StepName)
	assert.NotContains(t, st.Fields, "password")
	assert.Equal(t, "a@b.com", st.Fields["email"])

	st.SetField("otp", "123456")
	require.NoError(t, Signup.Advance(st, today))
	assert.True(t, st.Done)
	assert.ErrorIs(t, Signup.Advance(st, today), ErrDone)
}

func TestSetField_ClearsOnlyThatError(t *testing.T) {
	t.Parallel()

	st := Project.Start()
	st.Errors = Errors{"name": "required", "city": "required"}
	st.SetField("name", "Bracket")

	assert.NotContains(t, st.Errors, "name")
	assert.Contains(t, st.Errors, "city")
}

func TestValidate_IsPure(t *testing.T) {
	t.Parallel()

	f := validProject()
	f["max_price"] = "-1"
	before := maps.Clone(f)

	a := Project.Steps[0].Validate(f, today)
	b := Project.Steps[0].Validate(f, today)
	assert.Equal(t, a, b)
	assert.Equal(t, before, f)
}

func TestProjectValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(Fields)
		wantField string
	}{
		{name: "valid today", mutate: func(Fields) {}},
		{name: "yesterday", mutate: func(f Fields) { f["estimated_date"] = "2026-10-17" }, wantField: "estimated_date"},
		{name: "bad date", mutate: func(f Fields) { f["estimated_date"] = "18/10/2026" }, wantField: "estimated_date"},
		{name: "zero price", mutate: func(f Fields) { f["max_price"] = "0" }, wantField: "max_price"},
		{name: "text price", mutate: func(f Fields) { f["max_price"] = "cheap" }, wantField: "max_price"},
		{name: "missing city", mutate: func(f Fields) { f["city"] = " " }, wantField: "city"},
		{name: "not a pdf", mutate: func(f Fields) { f["pdf_name"] = "drawing.dwg"; f["pdf_size"] = "10" }, wantField: "pdf"},
		{name: "pdf too big", mutate: func(f Fields) { f["pdf_name"] = "a.PDF"; f["pdf_size"] = "10485761" }, wantField: "pdf"},
		{name: "pdf at limit", mutate: func(f Fields) { f["pdf_name"] = "a.pdf"; f["pdf_size"] = "10485760" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := validProject()
			tt.mutate(f)
			errs := Project.Steps[0].Validate(f, today)
			if tt.wantField == "" {
				assert.True(t, errs.Empty(), "%v", errs)
				return
			}
			assert.Contains(t, errs, tt.wantField)
		})
	}
}

func TestCompanyProfileValidation(t *testing.T) {
	t.Parallel()

	company := CompanyProfile.Steps[0].Validate
	assert.Contains(t, company(Fields{"company_name": "Acme", "year_established": "1799"}, today), "year_established")
	assert.Contains(t, company(Fields{"company_name": "Acme", "year_established": "2027"}, today), "year_established")
	assert.True(t, company(Fields{"company_name": "Acme", "year_established": "2026"}, today).Empty())

	location := CompanyProfile.Steps[1].Validate
	base := Fields{"address": "1 Rd", "state": "KA", "city": "Pune"}
	errs := location(base, today)
	assert.Contains(t, errs, "specializations")

	withSpecs := maps.Clone(base)
	withSpecs["specializations"] = "CNC, , Welding"
	withSpecs["website"] = "acme.example.com"
	assert.True(t, location(withSpecs, today).Empty())

	withSpecs["website"] = "not a url"
	assert.Contains(t, location(withSpecs, today), "website")
}

func TestSubmit_FailureKeepsStepAndSetsBanner(t *testing.T) {
	t.Parallel()

	guard, client := newTestGuard(t)
	st := ForgotPassword.Start()
	st.SetField("email", "a@b.com")

	err := ForgotPassword.Submit(context.Background(), st, today, guard, "sid:forgot", func(context.Context) error {
		return userErr{msg: "No account with that email"}
	})
	require.Error(t, err)
	assert.Equal(t, 0, st.Step)
	assert.Equal(t, "No account with that email", st.Banner)

	err = ForgotPassword.Submit(context.Background(), st, today, guard, "sid:forgot", func(context.Context) error {
		return errors.New("connection reset")
	})
	require.Error(t, err)
	assert.Equal(t, FallbackBanner, st.Banner)

	n, err := client.Exists(context.Background(), busyPrefix+"sid:forgot").Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, ForgotPassword.Submit(context.Background(), st, today, guard, "sid:forgot", func(context.Context) error { return nil }))
	assert.Equal(t, 1, st.Step)
	assert.Empty(t, st.Banner)
}

func TestSubmit_InvalidSkipsAction(t *testing.T) {
	t.Parallel()

	guard, _ := newTestGuard(t)
	st := ForgotPassword.Start()
	called := false

	err := ForgotPassword.Submit(context.Background(), st, today, guard, "k", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.False(t, called)
}

func TestGuard_SecondTriggerIsRejected(t *testing.T) {
	t.Parallel()

	guard, _ := newTestGuard(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = guard.Run(ctx, "sid:signup", func(context.Context) error {
			calls.Add(1)
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	busy, err := guard.Busy(ctx, "sid:signup")
	require.NoError(t, err)
	assert.True(t, busy)

	err = guard.Run(ctx, "sid:signup", func(context.Context) error {
		calls.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	busy, err = guard.Busy(ctx, "sid:signup")
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestGuard_ReleasedAfterPanic(t *testing.T) {
	t.Parallel()

	guard, _ := newTestGuard(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = guard.Run(ctx, "k", func(context.Context) error { panic("boom") })
	})
	busy, err := guard.Busy(ctx, "k")
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestPublic_HidesSensitive(t *testing.T) {
	t.Parallel()

	st := Login.Start()
	st.SetField("email", "a@b.com")
	st.SetField("password", "secret1")
	st.Carry["k"] = "v"

	pub := Login.Public(st)
	assert.NotContains(t, pub.Fields, "password")
	assert.Nil(t, pub.Carry)
	assert.Equal(t, "secret1", st.Fields["password"])
}
