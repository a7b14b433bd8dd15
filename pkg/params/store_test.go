package params

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tformer/pkg/tensor"
)

func TestStore_SameSeedSameWeights(t *testing.T) {
	a := NewStore(99)
	b := NewStore(99)

	wa := a.Xavier("layer.w", 8, 8)
	wb := b.Xavier("layer.w", 8, 8)
	assert.Equal(t, wa.Data, wb.Data)

	na := a.Normal("layer.emb", 0.02, 4, 8)
	nb := b.Normal("layer.emb", 0.02, 4, 8)
	assert.Equal(t, na.Data, nb.Data)
}

func TestStore_RegistrationIsIdempotent(t *testing.T) {
	s := NewStore(1)
	first := s.Xavier("w", 4, 4)
	second := s.Xavier("w", 4, 4)
	assert.Same(t, first, second)
	assert.Equal(t, 1, s.Len())
}

func TestStore_GetMissing(t *testing.T) {
	s := NewStore(1)
	_, err := s.Get("nope")
	assert.ErrorContains(t, err, `"nope" not found`)
}

func TestStore_OnesAndZeros(t *testing.T) {
	s := NewStore(1)
	ones := s.Ones("norm.scale", 3)
	zeros := s.Zeros("norm.shift", 3)
	assert.Equal(t, []float32{1, 1, 1}, ones.Data)
	assert.Equal(t, []float32{0, 0, 0}, zeros.Data)
}

func TestStore_SaveLoadFloat32RoundTrip(t *testing.T) {
	s := NewStore(5)
	s.Xavier("a.w", 3, 4)
	s.Normal("b.emb", 0.02, 2, 4)
	s.Ones("c.scale", 4)

	var buf bytes.Buffer
	require.NoError(t, s.Save(&buf, Float32))

	loaded := NewStore(0)
	require.NoError(t, loaded.Load(&buf))

	assert.Equal(t, s.Names(), loaded.Names())
	for _, name := range s.Names() {
		want, err := s.Get(name)
		require.NoError(t, err)
		got, err := loaded.Get(name)
		require.NoError(t, err)
		assert.Equal(t, want.Shape, got.Shape, name)
		assert.Equal(t, want.Data, got.Data, name)
	}
}

func TestStore_SaveLoadFloat16LosesOnlyPrecision(t *testing.T) {
	s := NewStore(5)
	orig, err := tensor.FromSlice([]float32{0.5, -1.25, 3.0, 0.099976}, 2, 2)
	require.NoError(t, err)
	s.Put("w", orig)

	var buf bytes.Buffer
	require.NoError(t, s.Save(&buf, Float16))

	loaded := NewStore(0)
	require.NoError(t, loaded.Load(&buf))

	got, err := loaded.Get("w")
	require.NoError(t, err)
	assert.Equal(t, orig.Shape, got.Shape)
	for i := range orig.Data {
		assert.InDelta(t, orig.Data[i], got.Data[i], 1e-3)
	}
}

func TestStore_LoadRejectsGarbage(t *testing.T) {
	s := NewStore(0)
	err := s.Load(bytes.NewReader([]byte("not a store file")))
	assert.ErrorContains(t, err, "unrecognized")
}
