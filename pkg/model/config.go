// Package model assembles the encoder/decoder transformer from the attention,
// normalization, and feed-forward building blocks.
//
// Layers in this package hold hyperparameters only. Learned tensors live in a
// params.Store addressed by dotted path, and the train/eval mode is an
// explicit argument on every forward pass.
package model

import "fmt"

// Activation names the feed-forward nonlinearity.
type Activation string

const (
	// ReLU is the activation of the original transformer.
	ReLU Activation = "relu"
	// GELU is the GPT-2 style alternative.
	GELU Activation = "gelu"
)

// Config holds the immutable hyperparameters of a transformer.
type Config struct {
	// VocabSize is the number of distinct token ids.
	VocabSize int

	// MaxSeqLen bounds the positional encoding table.
	MaxSeqLen int

	// DModel is the model width carried between sublayers.
	DModel int

	// NumHeads is the attention head count; DModel must divide evenly.
	NumHeads int

	// NumLayers is the block count of both the encoder and decoder stacks.
	NumLayers int

	// FFHidden is the inner width of the position-wise feed-forward network.
	FFHidden int

	// Dropout is the zeroing probability applied in Train mode.
	Dropout float32

	// Eps stabilizes the layer-norm denominator.
	Eps float32

	// Activation selects the feed-forward nonlinearity.
	Activation Activation
}

// DefaultConfig returns the base configuration from the original transformer
// paper: 512-wide, 8 heads, 6 layers, 2048 feed-forward.
func DefaultConfig(vocabSize int) Config {
	return Config{
		VocabSize:  vocabSize,
		MaxSeqLen:  512,
		DModel:     512,
		NumHeads:   8,
		NumLayers:  6,
		FFHidden:   2048,
		Dropout:    0.1,
		Eps:        1e-6,
		Activation: ReLU,
	}
}

// Validate checks the configuration for internal consistency. Construction
// fails fast on a bad configuration rather than truncating silently.
func (c Config) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("vocab_size must be positive, got %d", c.VocabSize)
	}
	if c.MaxSeqLen <= 0 {
		return fmt.Errorf("max_seq_len must be positive, got %d", c.MaxSeqLen)
	}
	if c.DModel <= 0 {
		return fmt.Errorf("d_model must be positive, got %d", c.DModel)
	}
	if c.DModel%2 != 0 {
		return fmt.Errorf("d_model must be even for sinusoidal positions, got %d", c.DModel)
	}
	if c.NumHeads <= 0 {
		return fmt.Errorf("heads must be positive, got %d", c.NumHeads)
	}
	if c.DModel%c.NumHeads != 0 {
		return fmt.Errorf("d_model (%d) must be divisible by heads (%d)", c.DModel, c.NumHeads)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("layers must be positive, got %d", c.NumLayers)
	}
	if c.FFHidden <= 0 {
		return fmt.Errorf("ff_hidden must be positive, got %d", c.FFHidden)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("dropout %v outside [0, 1)", c.Dropout)
	}
	if c.Eps <= 0 {
		return fmt.Errorf("eps must be positive, got %v", c.Eps)
	}
	switch c.Activation {
	case ReLU, GELU:
	default:
		return fmt.Errorf("unknown activation %q", c.Activation)
	}
	return nil
}

// HeadDim returns the per-head feature width.
func (c Config) HeadDim() int {
	return c.DModel / c.NumHeads
}
