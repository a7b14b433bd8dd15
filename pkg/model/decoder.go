package model

import (
	"fmt"

	"tformer/pkg/model/attention"
	"tformer/pkg/params"
	"tformer/pkg/tensor"
)

// DecoderBlock is one decoder layer: causal self-attention over the target
// so far, cross-attention with the encoder output as keys and values, and
// feed-forward, each inside a pre-norm residual connection.
type DecoderBlock struct {
	selfAttn  *attention.MultiHeadAttention
	crossAttn *attention.MultiHeadAttention
	ff        *FeedForward
	selfRes   *Residual
	crossRes  *Residual
	ffRes     *Residual
}

// NewDecoderBlock registers the block's parameters under prefix.
func NewDecoderBlock(store *params.Store, prefix string, cfg Config) (*DecoderBlock, error) {
	selfAttn, err := attention.NewMultiHeadAttention(store, prefix+".self_attn",
		cfg.DModel, cfg.NumHeads, cfg.Dropout)
	if err != nil {
		return nil, err
	}
	crossAttn, err := attention.NewMultiHeadAttention(store, prefix+".cross_attn",
		cfg.DModel, cfg.NumHeads, cfg.Dropout)
	if err != nil {
		return nil, err
	}
	ff, err := NewFeedForward(store, prefix+".ff", cfg.DModel, cfg.FFHidden, cfg.Dropout, cfg.Activation)
	if err != nil {
		return nil, err
	}

	block := &DecoderBlock{selfAttn: selfAttn, crossAttn: crossAttn, ff: ff}
	for i, res := range []**Residual{&block.selfRes, &block.crossRes, &block.ffRes} {
		r, err := NewResidual(store, fmt.Sprintf("%s.res%d", prefix, i), cfg.DModel, cfg.Eps, cfg.Dropout)
		if err != nil {
			return nil, err
		}
		*res = r
	}
	return block, nil
}

// Forward runs one block.
//
//   - x: decoder state (batch, tgtSeq, d_model)
//   - memory: encoder output (batch, srcSeq, d_model)
//   - srcMask: hides padded source positions from cross-attention
//   - tgtMask: must combine causality with target padding; position i may
//     not see position j > i
func (b *DecoderBlock) Forward(x, memory, srcMask, tgtMask *tensor.Tensor, mode tensor.Mode) (*tensor.Tensor, error) {
	x, err := b.selfRes.Forward(x, mode, func(normed *tensor.Tensor) (*tensor.Tensor, error) {
		out, _, err := b.selfAttn.Forward(normed, normed, normed, tgtMask, mode)
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("self-attention failed: %w", err)
	}

	x, err = b.crossRes.Forward(x, mode, func(normed *tensor.Tensor) (*tensor.Tensor, error) {
		out, _, err := b.crossAttn.Forward(normed, memory, memory, srcMask, mode)
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("cross-attention failed: %w", err)
	}

	x, err = b.ffRes.Forward(x, mode, func(normed *tensor.Tensor) (*tensor.Tensor, error) {
		return b.ff.Forward(normed, mode)
	})
	if err != nil {
		return nil, fmt.Errorf("feed-forward failed: %w", err)
	}
	return x, nil
}

// Decoder stacks NumLayers decoder blocks and normalizes once after the last.
type Decoder struct {
	blocks []*DecoderBlock
	norm   *LayerNorm
}

// NewDecoder registers all blocks under <prefix>.0 .. <prefix>.N-1 plus the
// trailing norm.
func NewDecoder(store *params.Store, prefix string, cfg Config) (*Decoder, error) {
	blocks := make([]*DecoderBlock, cfg.NumLayers)
	for i := range blocks {
		block, err := NewDecoderBlock(store, fmt.Sprintf("%s.%d", prefix, i), cfg)
		if err != nil {
			return nil, fmt.Errorf("decoder block %d: %w", i, err)
		}
		blocks[i] = block
	}
	norm, err := NewLayerNorm(store, prefix+".norm", cfg.DModel, cfg.Eps)
	if err != nil {
		return nil, err
	}
	return &Decoder{blocks: blocks, norm: norm}, nil
}

// Forward runs the stack over the decoder state.
func (d *Decoder) Forward(x, memory, srcMask, tgtMask *tensor.Tensor, mode tensor.Mode) (*tensor.Tensor, error) {
	var err error
	for i, block := range d.blocks {
		x, err = block.Forward(x, memory, srcMask, tgtMask, mode)
		if err != nil {
			return nil, fmt.Errorf("decoder block %d: %w", i, err)
		}
	}
	return d.norm.Forward(x)
}
