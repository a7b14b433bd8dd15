package model

import (
	"fmt"
	"math"

	"tformer/pkg/tensor"
)

// PositionalEncoding adds the fixed sinusoidal position signal from the
// original transformer to token embeddings. The table is precomputed once,
// never trained, and deliberately kept out of the parameter store so it can
// never be serialized or updated as a weight.
//
// Even feature indices hold sin(pos / 10000^(2i/d_model)), odd indices the
// matching cosine.
type PositionalEncoding struct {
	DModel  int
	MaxLen  int
	Dropout float32

	table *tensor.Tensor // (max_len, d_model)
}

// NewPositionalEncoding precomputes the table for sequences up to maxLen.
func NewPositionalEncoding(dModel, maxLen int, dropout float32) (*PositionalEncoding, error) {
	if dModel <= 0 || dModel%2 != 0 {
		return nil, fmt.Errorf("d_model must be positive and even, got %d", dModel)
	}
	if maxLen <= 0 {
		return nil, fmt.Errorf("max_len must be positive, got %d", maxLen)
	}

	table := tensor.New(maxLen, dModel)
	logBase := math.Log(10000)
	for pos := 0; pos < maxLen; pos++ {
		for i := 0; i < dModel; i += 2 {
			angle := float64(pos) * math.Exp(-logBase*float64(i)/float64(dModel))
			table.Data[pos*dModel+i] = float32(math.Sin(angle))
			table.Data[pos*dModel+i+1] = float32(math.Cos(angle))
		}
	}

	return &PositionalEncoding{
		DModel:  dModel,
		MaxLen:  maxLen,
		Dropout: dropout,
		table:   table,
	}, nil
}

// Table returns a copy of the first seqLen rows of the encoding table.
func (pe *PositionalEncoding) Table(seqLen int) (*tensor.Tensor, error) {
	if seqLen <= 0 || seqLen > pe.MaxLen {
		return nil, fmt.Errorf("sequence length %d outside (0, %d]", seqLen, pe.MaxLen)
	}
	return tensor.FromSlice(pe.table.Data[:seqLen*pe.DModel], seqLen, pe.DModel)
}

// Forward adds the first seq rows of the table to x and applies dropout.
// x: (batch, seq, d_model).
func (pe *PositionalEncoding) Forward(x *tensor.Tensor, mode tensor.Mode) (*tensor.Tensor, error) {
	if x.Rank() != 3 {
		return nil, fmt.Errorf("expected 3D input (batch, seq, d_model), got shape %v", x.Shape)
	}
	if x.Shape[2] != pe.DModel {
		return nil, fmt.Errorf("input width %d does not match d_model %d", x.Shape[2], pe.DModel)
	}
	rows, err := pe.Table(x.Shape[1])
	if err != nil {
		return nil, err
	}
	out, err := tensor.Add(x, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to add positions: %w", err)
	}
	return out.Dropout(pe.Dropout, mode), nil
}
