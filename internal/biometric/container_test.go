package biometric_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idregistry/internal/biometric"
)

func encode(t *testing.T, c biometric.Container) []byte {
	t.Helper()
	data, err := biometric.Encode(c)
	require.NoError(t, err)
	return data
}

func TestValidate(t *testing.T) {
	codec := biometric.NewCodec()

	t.Run("well-formed container passes", func(t *testing.T) {
		data := encode(t, biometric.Container{
			Version: 1,
			Records: []biometric.SubRecord{
				{Modality: "face", Quality: 80, Data: []byte{0x01}},
				{Modality: "iris-left", Quality: 75, Data: []byte{0x02}},
			},
		})
		assert.NoError(t, codec.Validate(data))
	})

	t.Run("garbage bytes rejected", func(t *testing.T) {
		assert.Error(t, codec.Validate([]byte("not cbor at all")))
	})

	t.Run("empty container rejected", func(t *testing.T) {
		data := encode(t, biometric.Container{Version: 1})
		assert.Error(t, codec.Validate(data))
	})

	t.Run("duplicate modality rejected", func(t *testing.T) {
		data := encode(t, biometric.Container{
			Version: 1,
			Records: []biometric.SubRecord{
				{Modality: "face", Data: []byte{0x01}},
				{Modality: "face", Data: []byte{0x02}},
			},
		})
		assert.Error(t, codec.Validate(data))
	})

	t.Run("unsupported version rejected", func(t *testing.T) {
		data := encode(t, biometric.Container{
			Version: 0,
			Records: []biometric.SubRecord{{Modality: "face", Data: []byte{0x01}}},
		})
		assert.Error(t, codec.Validate(data))
	})
}

func TestMergeRetainsStoredModalities(t *testing.T) {
	codec := biometric.NewCodec()
	stored := []biometric.SubRecord{
		{Modality: "face", Quality: 70, Data: []byte("old-face")},
		{Modality: "iris-left", Quality: 60, Data: []byte("old-iris")},
	}
	newData := encode(t, biometric.Container{
		Version: 2,
		Records: []biometric.SubRecord{
			{Modality: "face", Quality: 90, Data: []byte("new-face")},
		},
	})

	merged, err := codec.Merge(stored, newData)
	require.NoError(t, err)

	records, err := codec.Extract(merged)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byModality := map[string]biometric.SubRecord{}
	for _, rec := range records {
		byModality[rec.Modality] = rec
	}
	assert.Equal(t, []byte("new-face"), byModality["face"].Data, "resubmitted modality wins")
	assert.Equal(t, 90, byModality["face"].Quality)
	assert.Equal(t, []byte("old-iris"), byModality["iris-left"].Data, "absent modality is retained")
	assert.NoError(t, codec.Validate(merged), "a merged container is itself well-formed")
}
