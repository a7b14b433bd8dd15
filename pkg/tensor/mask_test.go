package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCausalMask_LowerTriangle(t *testing.T) {
	mask := CausalMask(4)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := float32(0)
			if j <= i {
				want = 1
			}
			assert.Equal(t, want, mask.At(i, j), "mask[%d][%d]", i, j)
		}
	}
}

func TestMaskedFill_BroadcastsOverBatchAndHeads(t *testing.T) {
	// scores: (batch=1, heads=2, seq=2, seq=2), mask: (2, 2)
	scores, err := FromSlice([]float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
	}, 1, 2, 2, 2)
	require.NoError(t, err)
	mask := CausalMask(2)

	out, err := MaskedFill(scores, mask)
	require.NoError(t, err)
	for h := 0; h < 2; h++ {
		assert.Equal(t, maskSentinel, out.At(0, h, 0, 1), "head %d", h)
		assert.NotEqual(t, maskSentinel, out.At(0, h, 1, 0), "head %d", h)
		assert.NotEqual(t, maskSentinel, out.At(0, h, 1, 1), "head %d", h)
	}
}

func TestMaskedFill_FullyMaskedRowStaysFinite(t *testing.T) {
	scores, _ := FromSlice([]float32{1, 2, 3, 4}, 2, 2)
	mask := New(2, 2) // all zero: everything masked

	filled, err := MaskedFill(scores, mask)
	require.NoError(t, err)

	weights, err := Softmax(filled, 1)
	require.NoError(t, err)
	for _, v := range weights.Data {
		assert.False(t, v != v, "softmax produced NaN")
		assert.InDelta(t, 0.5, v, 1e-6)
	}
}

func TestMaskedFill_IncompatibleMask(t *testing.T) {
	_, err := MaskedFill(New(2, 3), New(2, 4))
	assert.ErrorContains(t, err, "broadcast")
}

// TestMaskedFill_RejectsHigherRankMask applies a (batch, 1, 1, seqK) padding
// mask to rank-3 scores. The mask only fits scores that have a head axis, so
// this must fail with an error rather than misindex.
func TestMaskedFill_RejectsHigherRankMask(t *testing.T) {
	ids, err := FromSlice([]float32{5, 7, 0, 1, 0, 0}, 2, 3)
	require.NoError(t, err)
	mask, err := PaddingMask(ids, 0)
	require.NoError(t, err)

	_, err = MaskedFill(New(2, 3, 3), mask)
	assert.ErrorContains(t, err, "higher rank")
}

func TestMaskedFill_RejectsExpandingMask(t *testing.T) {
	// Same rank, but the mask's leading dim would widen the scores.
	_, err := MaskedFill(New(1, 3), New(2, 3))
	assert.ErrorContains(t, err, "broadcast")
}

func TestPaddingMask(t *testing.T) {
	ids, err := FromSlice([]float32{5, 7, 0, 0, 1, 0, 2, 3}, 2, 4)
	require.NoError(t, err)

	mask, err := PaddingMask(ids, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1, 4}, mask.Shape)
	assert.Equal(t, []float32{1, 1, 0, 0, 1, 0, 1, 1}, mask.Data)
}

func TestDropout_EvalIsIdentity(t *testing.T) {
	x, _ := FromSlice([]float32{1, 2, 3, 4}, 4)
	out := x.Dropout(0.5, Eval)
	assert.Equal(t, x.Data, out.Data)
}

func TestDropout_TrainZeroesAndRescales(t *testing.T) {
	SetDropoutSeed(7)
	n := 10000
	data := make([]float32, n)
	for i := range data {
		data[i] = 2
	}
	x, _ := FromSlice(data, n)

	out := x.Dropout(0.5, Train)
	zeros := 0
	for _, v := range out.Data {
		switch v {
		case 0:
			zeros++
		case 4: // survivors scale by 1/(1-p)
		default:
			t.Fatalf("unexpected value %v", v)
		}
	}
	assert.InDelta(t, float64(n)/2, float64(zeros), float64(n)/20)
}

func TestDropout_SeedReproducible(t *testing.T) {
	x, _ := FromSlice(make([]float32, 64), 64)
	for i := range x.Data {
		x.Data[i] = float32(i)
	}

	SetDropoutSeed(42)
	a := x.Dropout(0.3, Train)
	SetDropoutSeed(42)
	b := x.Dropout(0.3, Train)
	assert.Equal(t, a.Data, b.Data)
}
