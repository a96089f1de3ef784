package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machmate/machmate-web/internal/models"
	"github.com/machmate/machmate-web/pkg/apiclient"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_SaveGetDelete(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()

	sess := &Session{
		Authenticated: true,
		Role:          models.RoleBuyer,
		RememberMe:    true,
		Email:         "a@b.com",
		Upstream:      apiclient.Credentials{Cookies: map[string]string{"sessionid": "x"}},
	}
	require.NoError(t, store.Save(ctx, sess))
	require.NotEmpty(t, sess.ID)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleBuyer, got.Role)
	assert.True(t, got.RememberMe)
	assert.Equal(t, "x", got.Upstream.Cookies["sessionid"])
	assert.Equal(t, RememberTTL, mr.TTL(keyPrefix+sess.ID))

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_TransientTTLExpires(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()

	sess := &Session{ID: "s1", Authenticated: true, Role: models.RoleMaker}
	require.NoError(t, store.Save(ctx, sess))
	assert.Equal(t, TransientTTL, mr.TTL(keyPrefix+"s1"))

	mr.FastForward(TransientTTL + time.Second)
	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_EmptyID(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete(context.Background(), ""))
}

func TestSession_View(t *testing.T) {
	t.Parallel()

	var nilSess *Session
	assert.Equal(t, Anonymous(), nilSess.View())
	assert.Equal(t, Anonymous(), (&Session{Role: models.RoleBuyer}).View())

	v := (&Session{Authenticated: true, Role: models.RoleMaker, RememberMe: true}).View()
	assert.True(t, v.Authenticated)
	assert.Equal(t, models.RoleMaker, v.Role)
	assert.True(t, v.RememberMe)
}
