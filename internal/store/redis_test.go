package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis_KeysArePrefixed(t *testing.T) {
	r, mr := createTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, "risks", []byte(`[]`)))

	got, err := mr.Get("test:collection:risks")
	require.NoError(t, err)
	assert.Equal(t, `[]`, got)
}

func TestRedis_DefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)

	r, err := OpenRedis(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Save(context.Background(), "controls", []byte(`[]`)))
	assert.True(t, mr.Exists(DefaultRedisPrefix+":collection:controls"))
}

func TestOpenRedis_Unreachable(t *testing.T) {
	_, err := OpenRedis(context.Background(), RedisConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}

func TestRedis_ServerErrorPropagates(t *testing.T) {
	r, mr := createTestRedis(t)
	mr.SetError("READONLY")

	_, err := r.Load(context.Background(), "risks")
	require.Error(t, err)

	err = r.Save(context.Background(), "risks", []byte(`[]`))
	require.Error(t, err)
}
