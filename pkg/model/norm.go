package model

import (
	"fmt"
	"math"

	"tformer/pkg/params"
	"tformer/pkg/tensor"
)

// LayerNorm normalizes each feature vector to zero mean and unit variance,
// then applies a learned per-feature scale and shift.
//
// The scale (gamma) and shift (beta) are full (dim,) vectors, the standard
// formulation. Store paths: <prefix>.scale, <prefix>.shift.
type LayerNorm struct {
	Dim int
	Eps float32

	store  *params.Store
	prefix string
}

// NewLayerNorm registers scale=1 and shift=0 vectors under prefix.
func NewLayerNorm(store *params.Store, prefix string, dim int, eps float32) (*LayerNorm, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("layer norm dim must be positive, got %d", dim)
	}
	if eps <= 0 {
		return nil, fmt.Errorf("layer norm eps must be positive, got %v", eps)
	}
	store.Ones(prefix+".scale", dim)
	store.Zeros(prefix+".shift", dim)
	return &LayerNorm{Dim: dim, Eps: eps, store: store, prefix: prefix}, nil
}

// Forward normalizes over the trailing dimension. Input shape is preserved.
func (ln *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() == 0 {
		return nil, fmt.Errorf("cannot normalize a scalar")
	}
	if x.Shape[x.Rank()-1] != ln.Dim {
		return nil, fmt.Errorf("input width %d does not match norm dim %d",
			x.Shape[x.Rank()-1], ln.Dim)
	}

	scale, err := ln.store.Get(ln.prefix + ".scale")
	if err != nil {
		return nil, err
	}
	shift, err := ln.store.Get(ln.prefix + ".shift")
	if err != nil {
		return nil, err
	}

	out := tensor.New(x.Shape...)
	for start := 0; start < len(x.Data); start += ln.Dim {
		row := x.Data[start : start+ln.Dim]

		mean := float32(0)
		for _, v := range row {
			mean += v
		}
		mean /= float32(ln.Dim)

		variance := float32(0)
		for _, v := range row {
			d := v - mean
			variance += d * d
		}
		variance /= float32(ln.Dim)

		invStd := float32(1 / math.Sqrt(float64(variance+ln.Eps)))
		dst := out.Data[start : start+ln.Dim]
		for i, v := range row {
			dst[i] = (v-mean)*invStd*scale.Data[i] + shift.Data[i]
		}
	}
	return out, nil
}
