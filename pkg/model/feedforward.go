package model

import (
	"fmt"

	"tformer/pkg/params"
	"tformer/pkg/tensor"
)

// FeedForward is the position-wise two-layer network: widen to the hidden
// size, activate, dropout, and project back to model width.
//
// Store paths: <prefix>.w1 (d_model, hidden), <prefix>.b1 (hidden),
// <prefix>.w2 (hidden, d_model), <prefix>.b2 (d_model).
type FeedForward struct {
	DModel     int
	Hidden     int
	Dropout    float32
	Activation Activation

	store  *params.Store
	prefix string
}

// NewFeedForward registers the two projections and their biases.
func NewFeedForward(store *params.Store, prefix string, dModel, hidden int, dropout float32, act Activation) (*FeedForward, error) {
	if dModel <= 0 || hidden <= 0 {
		return nil, fmt.Errorf("feed-forward widths must be positive, got (%d, %d)", dModel, hidden)
	}
	store.Xavier(prefix+".w1", dModel, hidden)
	store.Zeros(prefix+".b1", hidden)
	store.Xavier(prefix+".w2", hidden, dModel)
	store.Zeros(prefix+".b2", dModel)
	return &FeedForward{
		DModel:     dModel,
		Hidden:     hidden,
		Dropout:    dropout,
		Activation: act,
		store:      store,
		prefix:     prefix,
	}, nil
}

// Forward maps (batch, seq, d_model) -> (batch, seq, d_model), applying each
// position independently.
func (ff *FeedForward) Forward(x *tensor.Tensor, mode tensor.Mode) (*tensor.Tensor, error) {
	if x.Rank() < 2 {
		return nil, fmt.Errorf("expected at least 2D input, got shape %v", x.Shape)
	}
	if x.Shape[x.Rank()-1] != ff.DModel {
		return nil, fmt.Errorf("input width %d does not match d_model %d",
			x.Shape[x.Rank()-1], ff.DModel)
	}

	hidden, err := ff.affine(x, ".w1", ".b1")
	if err != nil {
		return nil, err
	}

	switch ff.Activation {
	case GELU:
		hidden = hidden.GELU()
	default:
		hidden = hidden.ReLU()
	}
	hidden = hidden.Dropout(ff.Dropout, mode)

	return ff.affine(hidden, ".w2", ".b2")
}

func (ff *FeedForward) affine(x *tensor.Tensor, wName, bName string) (*tensor.Tensor, error) {
	w, err := ff.store.Get(ff.prefix + wName)
	if err != nil {
		return nil, err
	}
	b, err := ff.store.Get(ff.prefix + bName)
	if err != nil {
		return nil, err
	}
	y, err := tensor.Matmul(x, w)
	if err != nil {
		return nil, fmt.Errorf("projection %s%s failed: %w", ff.prefix, wName, err)
	}
	y, err = tensor.Add(y, b)
	if err != nil {
		return nil, fmt.Errorf("bias %s%s failed: %w", ff.prefix, bName, err)
	}
	return y, nil
}
