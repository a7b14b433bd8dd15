package model

import (
	"fmt"

	"tformer/pkg/params"
	"tformer/pkg/tensor"
)

// Transformer is the full sequence-to-sequence model: embedding plus
// positional encoding, encoder stack, decoder stack, and a final projection
// to vocabulary logits.
//
// All learned tensors are registered in the store under the prefixes
// src_embed, tgt_embed, encoder, decoder, and generator.
type Transformer struct {
	Config Config
	Store  *params.Store

	srcEmbed *Embedding
	tgtEmbed *Embedding
	posEnc   *PositionalEncoding
	encoder  *Encoder
	decoder  *Decoder
}

// NewTransformer validates cfg and registers every parameter in store.
// Rebuilding over a store populated by Load keeps the loaded weights.
func NewTransformer(cfg Config, store *params.Store) (*Transformer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srcEmbed, err := NewEmbedding(store, "src_embed", cfg.VocabSize, cfg.DModel)
	if err != nil {
		return nil, err
	}
	tgtEmbed, err := NewEmbedding(store, "tgt_embed", cfg.VocabSize, cfg.DModel)
	if err != nil {
		return nil, err
	}
	posEnc, err := NewPositionalEncoding(cfg.DModel, cfg.MaxSeqLen, cfg.Dropout)
	if err != nil {
		return nil, err
	}
	encoder, err := NewEncoder(store, "encoder", cfg)
	if err != nil {
		return nil, err
	}
	decoder, err := NewDecoder(store, "decoder", cfg)
	if err != nil {
		return nil, err
	}
	store.Xavier("generator.weight", cfg.DModel, cfg.VocabSize)
	store.Zeros("generator.bias", cfg.VocabSize)

	return &Transformer{
		Config:   cfg,
		Store:    store,
		srcEmbed: srcEmbed,
		tgtEmbed: tgtEmbed,
		posEnc:   posEnc,
		encoder:  encoder,
		decoder:  decoder,
	}, nil
}

// Encode embeds the source tokens and runs the encoder stack.
// src: (batch, srcSeq) token ids. Returns (batch, srcSeq, d_model).
func (t *Transformer) Encode(src, srcMask *tensor.Tensor, mode tensor.Mode) (*tensor.Tensor, error) {
	x, err := t.srcEmbed.Forward(src)
	if err != nil {
		return nil, fmt.Errorf("source embedding failed: %w", err)
	}
	x, err = t.posEnc.Forward(x, mode)
	if err != nil {
		return nil, fmt.Errorf("source positions failed: %w", err)
	}
	return t.encoder.Forward(x, srcMask, mode)
}

// Decode embeds the target tokens and runs the decoder stack against the
// encoder memory. tgt: (batch, tgtSeq) token ids. The caller supplies a
// tgtMask enforcing causality (see tensor.CausalMask). Returns
// (batch, tgtSeq, d_model).
func (t *Transformer) Decode(memory, srcMask, tgt, tgtMask *tensor.Tensor, mode tensor.Mode) (*tensor.Tensor, error) {
	x, err := t.tgtEmbed.Forward(tgt)
	if err != nil {
		return nil, fmt.Errorf("target embedding failed: %w", err)
	}
	x, err = t.posEnc.Forward(x, mode)
	if err != nil {
		return nil, fmt.Errorf("target positions failed: %w", err)
	}
	return t.decoder.Forward(x, memory, srcMask, tgtMask, mode)
}

// Generate projects decoder output to vocabulary logits:
// (batch, seq, d_model) -> (batch, seq, vocab).
func (t *Transformer) Generate(x *tensor.Tensor) (*tensor.Tensor, error) {
	w, err := t.Store.Get("generator.weight")
	if err != nil {
		return nil, err
	}
	b, err := t.Store.Get("generator.bias")
	if err != nil {
		return nil, err
	}
	logits, err := tensor.Matmul(x, w)
	if err != nil {
		return nil, fmt.Errorf("generator projection failed: %w", err)
	}
	logits, err = tensor.Add(logits, b)
	if err != nil {
		return nil, fmt.Errorf("generator bias failed: %w", err)
	}
	return logits, nil
}

// Forward runs the whole pipeline: encode the source, decode the target
// against it, and project to logits.
func (t *Transformer) Forward(src, tgt, srcMask, tgtMask *tensor.Tensor, mode tensor.Mode) (*tensor.Tensor, error) {
	memory, err := t.Encode(src, srcMask, mode)
	if err != nil {
		return nil, err
	}
	state, err := t.Decode(memory, srcMask, tgt, tgtMask, mode)
	if err != nil {
		return nil, err
	}
	return t.Generate(state)
}
