package attention

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"tformer/pkg/params"
	"tformer/pkg/tensor"
)

// patternTensor fills a tensor with a deterministic, non-degenerate pattern.
func patternTensor(t *testing.T, shape ...int) *tensor.Tensor {
	t.Helper()
	out := tensor.New(shape...)
	for i := range out.Data {
		out.Data[i] = float32(math.Sin(float64(i)*0.7)) * 0.5
	}
	return out
}

func identity(dim int) *tensor.Tensor {
	out := tensor.New(dim, dim)
	for i := 0; i < dim; i++ {
		out.Data[i*dim+i] = 1
	}
	return out
}

func TestScaledDotProduct_WeightRowsSumToOne(t *testing.T) {
	q := patternTensor(t, 1, 4, 8)
	k := patternTensor(t, 1, 4, 8)
	v := patternTensor(t, 1, 4, 8)

	_, weights, err := ScaledDotProduct(q, k, v, nil, 0, tensor.Eval)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		sum := float32(0)
		for j := 0; j < 4; j++ {
			sum += weights.At(0, i, j)
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "row %d", i)
	}
}

func TestScaledDotProduct_CausalMaskZeroesFuture(t *testing.T) {
	const seqLen = 4
	q := patternTensor(t, 1, seqLen, 8)
	k := patternTensor(t, 1, seqLen, 8)
	v := patternTensor(t, 1, seqLen, 8)

	_, weights, err := ScaledDotProduct(q, k, v, tensor.CausalMask(seqLen), 0, tensor.Eval)
	require.NoError(t, err)

	for i := 0; i < seqLen; i++ {
		for j := i + 1; j < seqLen; j++ {
			assert.InDelta(t, 0, weights.At(0, i, j), 1e-9, "weight[%d][%d]", i, j)
		}
		sum := float32(0)
		for j := 0; j <= i; j++ {
			sum += weights.At(0, i, j)
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "row %d", i)
	}
}

// TestScaledDotProduct_MatchesReference cross-checks the float32 kernel
// against a float64 implementation built on gonum.
func TestScaledDotProduct_MatchesReference(t *testing.T) {
	const (
		seqLen = 5
		dk     = 3
	)
	q := patternTensor(t, seqLen, dk)
	k := patternTensor(t, seqLen, dk)
	v := patternTensor(t, seqLen, dk)

	out, weights, err := ScaledDotProduct(q, k, v, nil, 0, tensor.Eval)
	require.NoError(t, err)

	toDense := func(src *tensor.Tensor) *mat.Dense {
		data := make([]float64, len(src.Data))
		for i, f := range src.Data {
			data[i] = float64(f)
		}
		return mat.NewDense(src.Shape[0], src.Shape[1], data)
	}
	qd, kd, vd := toDense(q), toDense(k), toDense(v)

	var scores mat.Dense
	scores.Mul(qd, kd.T())
	scores.Scale(1/math.Sqrt(dk), &scores)

	refWeights := mat.NewDense(seqLen, seqLen, nil)
	for i := 0; i < seqLen; i++ {
		maxVal := math.Inf(-1)
		for j := 0; j < seqLen; j++ {
			if s := scores.At(i, j); s > maxVal {
				maxVal = s
			}
		}
		sum := 0.0
		for j := 0; j < seqLen; j++ {
			e := math.Exp(scores.At(i, j) - maxVal)
			refWeights.Set(i, j, e)
			sum += e
		}
		for j := 0; j < seqLen; j++ {
			refWeights.Set(i, j, refWeights.At(i, j)/sum)
		}
	}

	var refOut mat.Dense
	refOut.Mul(refWeights, vd)

	for i := 0; i < seqLen; i++ {
		for j := 0; j < seqLen; j++ {
			assert.InDelta(t, refWeights.At(i, j), weights.At(i, j), 1e-5, "weights[%d][%d]", i, j)
		}
		for j := 0; j < dk; j++ {
			assert.InDelta(t, refOut.At(i, j), out.At(i, j), 1e-5, "out[%d][%d]", i, j)
		}
	}
}

// TestScaledDotProduct_RejectsHigherRankMask feeds a (batch, 1, 1, seqK)
// padding mask to the kernel with rank-3 inputs. Padding masks fit the
// rank-4 per-head scores inside multi-head attention; against batched
// rank-3 scores the call must return a dimension error, not crash.
func TestScaledDotProduct_RejectsHigherRankMask(t *testing.T) {
	x := patternTensor(t, 2, 3, 4)
	ids, err := tensor.FromSlice([]float32{1, 2, 0, 3, 0, 0}, 2, 3)
	require.NoError(t, err)
	mask, err := tensor.PaddingMask(ids, 0)
	require.NoError(t, err)

	_, _, err = ScaledDotProduct(x, x, x, mask, 0, tensor.Eval)
	assert.ErrorContains(t, err, "mask")
}

func TestScaledDotProduct_ShapeMismatches(t *testing.T) {
	cases := []struct {
		name    string
		q, k, v *tensor.Tensor
	}{
		{"query vs key width", tensor.New(4, 3), tensor.New(4, 5), tensor.New(4, 5)},
		{"key vs value length", tensor.New(4, 3), tensor.New(4, 3), tensor.New(6, 3)},
		{"scalar input", tensor.New(3), tensor.New(4, 3), tensor.New(4, 3)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ScaledDotProduct(tc.q, tc.k, tc.v, nil, 0, tensor.Eval)
			assert.Error(t, err)
		})
	}
}

func TestNewMultiHeadAttention_ValidatesHeadSplit(t *testing.T) {
	store := params.NewStore(1)

	_, err := NewMultiHeadAttention(store, "attn", 10, 3, 0)
	assert.ErrorContains(t, err, "divisible")

	_, err = NewMultiHeadAttention(store, "attn", 0, 2, 0)
	assert.ErrorContains(t, err, "positive")

	mha, err := NewMultiHeadAttention(store, "attn", 12, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, mha.HeadDim)
}

// TestMultiHead_SingleHeadMatchesScaledDotProduct pins the h=1 case to the
// raw kernel: with identity projections the two must agree exactly up to
// float tolerance.
func TestMultiHead_SingleHeadMatchesScaledDotProduct(t *testing.T) {
	const (
		dModel = 6
		seqLen = 4
	)
	store := params.NewStore(1)
	mha, err := NewMultiHeadAttention(store, "attn", dModel, 1, 0)
	require.NoError(t, err)
	for _, w := range []string{".wq", ".wk", ".wv", ".wo"} {
		store.Put("attn"+w, identity(dModel))
	}

	x := patternTensor(t, 1, seqLen, dModel)

	got, _, err := mha.Forward(x, x, x, nil, tensor.Eval)
	require.NoError(t, err)

	want, _, err := ScaledDotProduct(x, x, x, nil, 0, tensor.Eval)
	require.NoError(t, err)

	assert.True(t, got.Equals(want, 1e-5),
		"multi-head with one head diverged from scaled dot-product")
}

func TestMultiHead_WeightRowsSumToOnePerHead(t *testing.T) {
	const (
		dModel = 8
		heads  = 2
		seqLen = 4
	)
	store := params.NewStore(3)
	mha, err := NewMultiHeadAttention(store, "attn", dModel, heads, 0)
	require.NoError(t, err)

	x := patternTensor(t, 1, seqLen, dModel)
	_, weights, err := mha.Forward(x, x, x, nil, tensor.Eval)
	require.NoError(t, err)

	require.Equal(t, []int{1, heads, seqLen, seqLen}, weights.Shape)
	for h := 0; h < heads; h++ {
		for i := 0; i < seqLen; i++ {
			sum := float32(0)
			for j := 0; j < seqLen; j++ {
				sum += weights.At(0, h, i, j)
			}
			assert.InDelta(t, 1.0, sum, 1e-5, "head %d row %d", h, i)
		}
	}
}

func TestMultiHead_CrossAttentionShapes(t *testing.T) {
	const (
		dModel = 8
		heads  = 2
	)
	store := params.NewStore(3)
	mha, err := NewMultiHeadAttention(store, "attn", dModel, heads, 0)
	require.NoError(t, err)

	query := patternTensor(t, 1, 3, dModel)
	memory := patternTensor(t, 1, 5, dModel)

	out, weights, err := mha.Forward(query, memory, memory, nil, tensor.Eval)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, dModel}, out.Shape)
	assert.Equal(t, []int{1, heads, 3, 5}, weights.Shape)
}

func TestMultiHead_InputValidation(t *testing.T) {
	store := params.NewStore(1)
	mha, err := NewMultiHeadAttention(store, "attn", 8, 2, 0)
	require.NoError(t, err)

	good := tensor.New(1, 4, 8)
	cases := []struct {
		name    string
		q, k, v *tensor.Tensor
	}{
		{"2d query", tensor.New(4, 8), good, good},
		{"wrong width", tensor.New(1, 4, 6), good, good},
		{"batch mismatch", good, tensor.New(2, 4, 8), tensor.New(2, 4, 8)},
		{"key value length", good, tensor.New(1, 4, 8), tensor.New(1, 5, 8)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := mha.Forward(tc.q, tc.k, tc.v, nil, tensor.Eval)
			assert.Error(t, err)
		})
	}
}
