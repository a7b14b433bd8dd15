package model

import (
	"fmt"

	"tformer/pkg/model/attention"
	"tformer/pkg/params"
	"tformer/pkg/tensor"
)

// EncoderBlock is one encoder layer: self-attention and feed-forward, each
// inside a pre-norm residual connection.
type EncoderBlock struct {
	selfAttn *attention.MultiHeadAttention
	ff       *FeedForward
	attnRes  *Residual
	ffRes    *Residual
}

// NewEncoderBlock registers the block's parameters under prefix.
func NewEncoderBlock(store *params.Store, prefix string, cfg Config) (*EncoderBlock, error) {
	selfAttn, err := attention.NewMultiHeadAttention(store, prefix+".self_attn",
		cfg.DModel, cfg.NumHeads, cfg.Dropout)
	if err != nil {
		return nil, err
	}
	ff, err := NewFeedForward(store, prefix+".ff", cfg.DModel, cfg.FFHidden, cfg.Dropout, cfg.Activation)
	if err != nil {
		return nil, err
	}
	attnRes, err := NewResidual(store, prefix+".res0", cfg.DModel, cfg.Eps, cfg.Dropout)
	if err != nil {
		return nil, err
	}
	ffRes, err := NewResidual(store, prefix+".res1", cfg.DModel, cfg.Eps, cfg.Dropout)
	if err != nil {
		return nil, err
	}
	return &EncoderBlock{selfAttn: selfAttn, ff: ff, attnRes: attnRes, ffRes: ffRes}, nil
}

// Forward runs one block over (batch, seq, d_model). The mask hides padded
// source positions; nil means attend everywhere.
func (b *EncoderBlock) Forward(x, mask *tensor.Tensor, mode tensor.Mode) (*tensor.Tensor, error) {
	x, err := b.attnRes.Forward(x, mode, func(normed *tensor.Tensor) (*tensor.Tensor, error) {
		out, _, err := b.selfAttn.Forward(normed, normed, normed, mask, mode)
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("self-attention failed: %w", err)
	}

	x, err = b.ffRes.Forward(x, mode, func(normed *tensor.Tensor) (*tensor.Tensor, error) {
		return b.ff.Forward(normed, mode)
	})
	if err != nil {
		return nil, fmt.Errorf("feed-forward failed: %w", err)
	}
	return x, nil
}

// Encoder stacks NumLayers encoder blocks and normalizes once after the last.
type Encoder struct {
	blocks []*EncoderBlock
	norm   *LayerNorm
}

// NewEncoder registers all blocks under <prefix>.0 .. <prefix>.N-1 plus the
// trailing norm.
func NewEncoder(store *params.Store, prefix string, cfg Config) (*Encoder, error) {
	blocks := make([]*EncoderBlock, cfg.NumLayers)
	for i := range blocks {
		block, err := NewEncoderBlock(store, fmt.Sprintf("%s.%d", prefix, i), cfg)
		if err != nil {
			return nil, fmt.Errorf("encoder block %d: %w", i, err)
		}
		blocks[i] = block
	}
	norm, err := NewLayerNorm(store, prefix+".norm", cfg.DModel, cfg.Eps)
	if err != nil {
		return nil, err
	}
	return &Encoder{blocks: blocks, norm: norm}, nil
}

// Forward runs the stack over (batch, seq, d_model).
func (e *Encoder) Forward(x, mask *tensor.Tensor, mode tensor.Mode) (*tensor.Tensor, error) {
	var err error
	for i, block := range e.blocks {
		x, err = block.Forward(x, mask, mode)
		if err != nil {
			return nil, fmt.Errorf("encoder block %d: %w", i, err)
		}
	}
	return e.norm.Forward(x)
}
