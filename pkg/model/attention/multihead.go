package attention

import (
	"fmt"

	"tformer/pkg/params"
	"tformer/pkg/tensor"
)

// MultiHeadAttention projects queries, keys, and values into NumHeads
// parallel subspaces of width HeadDim, runs scaled dot-product attention in
// each, and projects the concatenated head outputs back to model width.
//
// The struct holds only hyperparameters; the four projection matrices live in
// the parameter store under <prefix>.wq/.wk/.wv/.wo, each (d_model, d_model).
type MultiHeadAttention struct {
	NumHeads int
	DModel   int
	HeadDim  int
	Dropout  float32

	store  *params.Store
	prefix string
}

// NewMultiHeadAttention registers the projection weights under prefix and
// returns the layer. Model width must divide evenly across heads; anything
// else is a configuration error caught here, not at forward time.
func NewMultiHeadAttention(store *params.Store, prefix string, dModel, numHeads int, dropout float32) (*MultiHeadAttention, error) {
	if dModel <= 0 || numHeads <= 0 {
		return nil, fmt.Errorf("d_model (%d) and heads (%d) must be positive", dModel, numHeads)
	}
	if dModel%numHeads != 0 {
		return nil, fmt.Errorf("d_model (%d) must be divisible by heads (%d)", dModel, numHeads)
	}

	for _, w := range []string{".wq", ".wk", ".wv", ".wo"} {
		store.Xavier(prefix+w, dModel, dModel)
	}

	return &MultiHeadAttention{
		NumHeads: numHeads,
		DModel:   dModel,
		HeadDim:  dModel / numHeads,
		Dropout:  dropout,
		store:    store,
		prefix:   prefix,
	}, nil
}

// Forward computes multi-head attention. Self-attention passes the same
// tensor for query, key, and value; cross-attention passes the decoder state
// as query and the encoder output as key and value.
//
// Shapes:
//   - query: (batch, seqQ, d_model)
//   - key, value: (batch, seqK, d_model)
//   - mask: broadcastable to (batch, heads, seqQ, seqK), or nil; shared
//     across heads
//
// Returns the attended output (batch, seqQ, d_model) and the attention
// weights (batch, heads, seqQ, seqK).
func (m *MultiHeadAttention) Forward(query, key, value, mask *tensor.Tensor, mode tensor.Mode) (*tensor.Tensor, *tensor.Tensor, error) {
	for name, t := range map[string]*tensor.Tensor{"query": query, "key": key, "value": value} {
		if t.Rank() != 3 {
			return nil, nil, fmt.Errorf("expected 3D %s (batch, seq, d_model), got shape %v", name, t.Shape)
		}
		if t.Shape[2] != m.DModel {
			return nil, nil, fmt.Errorf("%s width %d does not match d_model %d", name, t.Shape[2], m.DModel)
		}
	}
	if key.Shape[0] != query.Shape[0] || value.Shape[0] != query.Shape[0] {
		return nil, nil, fmt.Errorf("batch sizes differ: query %d, key %d, value %d",
			query.Shape[0], key.Shape[0], value.Shape[0])
	}
	if key.Shape[1] != value.Shape[1] {
		return nil, nil, fmt.Errorf("key length %d does not match value length %d",
			key.Shape[1], value.Shape[1])
	}

	batch, seqQ := query.Shape[0], query.Shape[1]
	seqK := key.Shape[1]

	q, err := m.project(query, ".wq")
	if err != nil {
		return nil, nil, err
	}
	k, err := m.project(key, ".wk")
	if err != nil {
		return nil, nil, err
	}
	v, err := m.project(value, ".wv")
	if err != nil {
		return nil, nil, err
	}

	// (batch, seq, d_model) -> (batch, heads, seq, head_dim)
	q, err = splitHeads(q, batch, seqQ, m.NumHeads, m.HeadDim)
	if err != nil {
		return nil, nil, err
	}
	k, err = splitHeads(k, batch, seqK, m.NumHeads, m.HeadDim)
	if err != nil {
		return nil, nil, err
	}
	v, err = splitHeads(v, batch, seqK, m.NumHeads, m.HeadDim)
	if err != nil {
		return nil, nil, err
	}

	attended, weights, err := ScaledDotProduct(q, k, v, mask, m.Dropout, mode)
	if err != nil {
		return nil, nil, err
	}

	// (batch, heads, seqQ, head_dim) -> (batch, seqQ, d_model)
	merged, err := attended.Transpose(1, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to merge heads: %w", err)
	}
	out, err := m.project(merged.MustReshape(batch, seqQ, m.DModel), ".wo")
	if err != nil {
		return nil, nil, err
	}
	return out, weights, nil
}

func (m *MultiHeadAttention) project(x *tensor.Tensor, suffix string) (*tensor.Tensor, error) {
	w, err := m.store.Get(m.prefix + suffix)
	if err != nil {
		return nil, err
	}
	out, err := tensor.Matmul(x, w)
	if err != nil {
		return nil, fmt.Errorf("projection %s%s failed: %w", m.prefix, suffix, err)
	}
	return out, nil
}

func splitHeads(x *tensor.Tensor, batch, seq, heads, headDim int) (*tensor.Tensor, error) {
	split, err := x.Reshape(batch, seq, heads, headDim)
	if err != nil {
		return nil, fmt.Errorf("failed to split heads: %w", err)
	}
	out, err := split.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to split heads: %w", err)
	}
	return out, nil
}
