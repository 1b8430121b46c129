package pathid

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufscache/internal/errs"
)

func TestValidate(t *testing.T) {
	t.Run("accepts well-formed UFS URIs", func(t *testing.T) {
		assert.NoError(t, Validate("s3://bucket/key"))
		assert.NoError(t, Validate("hdfs://namenode/path"))
	})

	t.Run("rejects paths without a scheme", func(t *testing.T) {
		err := Validate("/bucket/key")
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrInvalidPath)
	})

	t.Run("rejects empty string", func(t *testing.T) {
		assert.ErrorIs(t, Validate(""), errs.ErrInvalidPath)
	})
}

func TestPathID_MatchesSHA256(t *testing.T) {
	p := "s3://bucket/obj"
	sum := sha256.Sum256([]byte(p))
	want := hex.EncodeToString(sum[:])
	assert.Equal(t, want, PathID(p))
}

func TestPathID_Stable(t *testing.T) {
	p := "s3://bucket/obj"
	assert.Equal(t, PathID(p), PathID(p))
}

func TestHasher_MemoizesAndValidates(t *testing.T) {
	h, err := NewHasher(4)
	require.NoError(t, err)

	t.Run("rejects invalid path", func(t *testing.T) {
		_, err := h.PathID("not-a-path")
		assert.ErrorIs(t, err, errs.ErrInvalidPath)
	})

	t.Run("returns the same digest on repeated calls", func(t *testing.T) {
		id1, err := h.PathID("s3://bucket/obj")
		require.NoError(t, err)
		id2, err := h.PathID("s3://bucket/obj")
		require.NoError(t, err)
		assert.Equal(t, id1, id2)
		assert.Equal(t, PathID("s3://bucket/obj"), id1)
	})
}

func TestNewHasher_RejectsNonPositiveSize(t *testing.T) {
	_, err := NewHasher(0)
	assert.ErrorIs(t, err, errs.ErrConfig)
}
