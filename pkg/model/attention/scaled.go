// Package attention implements scaled dot-product and multi-head attention
// for the encoder/decoder transformer.
package attention

import (
	"fmt"
	"math"

	"tformer/pkg/tensor"
)

// ScaledDotProduct computes attention over already-projected inputs.
//
// Shapes:
//   - q: (..., seqQ, dk)
//   - k: (..., seqK, dk)
//   - v: (..., seqK, dv)
//   - mask: broadcastable to (..., seqQ, seqK), or nil
//
// Scores are q @ k^T / sqrt(dk); masked entries are pushed to a large
// negative sentinel before the row-wise softmax, so their weights land at
// ~0. Returns the weighted values (..., seqQ, dv) and the weight matrix
// (..., seqQ, seqK); the weights are surfaced for inspection only.
func ScaledDotProduct(q, k, v, mask *tensor.Tensor, dropout float32, mode tensor.Mode) (*tensor.Tensor, *tensor.Tensor, error) {
	if q.Rank() < 2 || k.Rank() < 2 || v.Rank() < 2 {
		return nil, nil, fmt.Errorf("attention needs at least 2D inputs, got %dD/%dD/%dD",
			q.Rank(), k.Rank(), v.Rank())
	}

	dk := q.Shape[q.Rank()-1]
	if k.Shape[k.Rank()-1] != dk {
		return nil, nil, fmt.Errorf("query width %d does not match key width %d",
			dk, k.Shape[k.Rank()-1])
	}
	if k.Shape[k.Rank()-2] != v.Shape[v.Rank()-2] {
		return nil, nil, fmt.Errorf("key length %d does not match value length %d",
			k.Shape[k.Rank()-2], v.Shape[v.Rank()-2])
	}

	kt, err := k.Transpose(k.Rank()-2, k.Rank()-1)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to transpose keys: %w", err)
	}
	scores, err := tensor.Matmul(q, kt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute scores: %w", err)
	}
	scores = scores.Scale(float32(1 / math.Sqrt(float64(dk))))

	if mask != nil {
		scores, err = tensor.MaskedFill(scores, mask)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to apply mask: %w", err)
		}
	}

	weights, err := tensor.Softmax(scores, scores.Rank()-1)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to normalize scores: %w", err)
	}

	weights = weights.Dropout(dropout, mode)

	out, err := tensor.Matmul(weights, v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to weight values: %w", err)
	}
	return out, weights, nil
}
