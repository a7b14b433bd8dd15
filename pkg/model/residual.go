package model

import (
	"fmt"

	"tformer/pkg/params"
	"tformer/pkg/tensor"
)

// Sublayer is the transformation wrapped by a residual connection: attention
// or feed-forward, applied to the normalized input.
type Sublayer func(x *tensor.Tensor) (*tensor.Tensor, error)

// Residual applies pre-norm residual wiring around an arbitrary sublayer:
//
//	out = x + dropout(sublayer(norm(x)))
//
// The sublayer arrives as an explicit function argument rather than captured
// state, so each block spells out what runs inside its connections.
type Residual struct {
	Dropout float32

	norm *LayerNorm
}

// NewResidual builds a residual connection with its own layer norm under
// <prefix>.norm.
func NewResidual(store *params.Store, prefix string, dim int, eps, dropout float32) (*Residual, error) {
	norm, err := NewLayerNorm(store, prefix+".norm", dim, eps)
	if err != nil {
		return nil, err
	}
	return &Residual{Dropout: dropout, norm: norm}, nil
}

// Forward runs the wrapped sublayer on the normalized input and adds the
// result back onto x.
func (r *Residual) Forward(x *tensor.Tensor, mode tensor.Mode, sublayer Sublayer) (*tensor.Tensor, error) {
	normed, err := r.norm.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize: %w", err)
	}
	y, err := sublayer(normed)
	if err != nil {
		return nil, err
	}
	y = y.Dropout(r.Dropout, mode)
	out, err := tensor.Add(x, y)
	if err != nil {
		return nil, fmt.Errorf("failed to add residual: %w", err)
	}
	return out, nil
}
