package form

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTripWithoutSecrets(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewStore(client)
	ctx := context.Background()

	st, err := store.Load(ctx, "sid", Signup)
	require.NoError(t, err)
	assert.Equal(t, "account", st.StepName)

	st.SetField("email", "a@b.com")
	st.SetField("password", "secret1")
	st.Carry["csrftoken"] = "tok"
	st.Step = 1
	require.NoError(t, store.Save(ctx, "sid", Signup, st))
	assert.Equal(t, StateTTL, mr.TTL(statePrefix+"sid:signup"))

	got, err := store.Load(ctx, "sid", Signup)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Step)
	assert.Equal(t, "verify", got.StepName)
	assert.Equal(t, "a@b.com", got.Fields["email"])
	assert.NotContains(t, got.Fields, "password")
	assert.Equal(t, "tok", got.Carry["csrftoken"])

	require.NoError(t, store.Delete(ctx, "sid", Signup))
	fresh, err := store.Load(ctx, "sid", Signup)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Step)
	assert.Empty(t, fresh.Fields)
}
