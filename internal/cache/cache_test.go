package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_Miniredis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer func() { _ = rdb.Close() }()

	require.NoError(t, SetBytes(context.Background(), rdb, "k", []byte("v"), time.Minute))
	got, found, err := GetBytes(context.Background(), rdb, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), got)
}

func TestConnect_Failures(t *testing.T) {
	_, err := Connect(context.Background(), "redis://%zz")
	assert.Error(t, err)

	assert.Nil(t, ConnectOptional(context.Background(), ""))
	assert.Nil(t, ConnectOptional(context.Background(), "127.0.0.1:1"))
}

func TestAside(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb, err := Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer func() { _ = rdb.Close() }()

	calls := 0
	fetch := func() ([]byte, error) {
		calls++
		return []byte("payload"), nil
	}

	v, hit, err := Aside(context.Background(), rdb, "media:1", time.Minute, fetch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "payload", string(v))

	v, hit, err = Aside(context.Background(), rdb, "media:1", time.Minute, fetch)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "payload", string(v))
	assert.Equal(t, 1, calls)

	mr.FastForward(2 * time.Minute)
	_, hit, err = Aside(context.Background(), rdb, "media:1", time.Minute, fetch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)

	_, _, err = Aside(context.Background(), rdb, "media:2", time.Minute, func() ([]byte, error) {
		return nil, errors.New("offline")
	})
	assert.EqualError(t, err, "offline")
}

func TestAside_NilClient(t *testing.T) {
	v, hit, err := Aside(context.Background(), nil, "k", time.Minute, func() ([]byte, error) {
		return []byte("direct"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "direct", string(v))
}
