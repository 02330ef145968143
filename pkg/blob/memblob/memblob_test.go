package memblob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	data := []byte("signature")
	ref, err := s.Put(ctx, "signatures/a/supervisor/1", data, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "mem://signatures/a/supervisor/1", ref)

	data[0] = 'X'
	got, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "signature", string(got))
	assert.Equal(t, "image/png", s.ContentType(ref))
	assert.Equal(t, 1, s.Len())

	_, err = s.Get(ctx, "s3://bucket/key")
	assert.Error(t, err)
	_, err = s.Get(ctx, "mem://missing")
	assert.Error(t, err)
	_, err = s.Put(ctx, "", nil, "")
	assert.Error(t, err)
}
