package model

import (
	"fmt"
	"math"

	"tformer/pkg/params"
	"tformer/pkg/tensor"
)

// Embedding looks up token vectors from a (vocab, d_model) table in the
// parameter store and scales them by sqrt(d_model), as in the original
// transformer. Store path: <prefix>.weight.
type Embedding struct {
	VocabSize int
	DModel    int

	store  *params.Store
	prefix string
}

// NewEmbedding registers the lookup table under prefix with N(0, 0.02) init.
func NewEmbedding(store *params.Store, prefix string, vocabSize, dModel int) (*Embedding, error) {
	if vocabSize <= 0 || dModel <= 0 {
		return nil, fmt.Errorf("embedding dims must be positive, got (%d, %d)", vocabSize, dModel)
	}
	store.Normal(prefix+".weight", 0.02, vocabSize, dModel)
	return &Embedding{VocabSize: vocabSize, DModel: dModel, store: store, prefix: prefix}, nil
}

// Forward maps (batch, seq) token ids to (batch, seq, d_model) vectors.
func (e *Embedding) Forward(ids *tensor.Tensor) (*tensor.Tensor, error) {
	if ids.Rank() != 2 {
		return nil, fmt.Errorf("expected 2D token ids (batch, seq), got shape %v", ids.Shape)
	}

	table, err := e.store.Get(e.prefix + ".weight")
	if err != nil {
		return nil, err
	}

	batch, seq := ids.Shape[0], ids.Shape[1]
	out := tensor.New(batch, seq, e.DModel)
	scale := float32(math.Sqrt(float64(e.DModel)))

	for b := 0; b < batch; b++ {
		for s := 0; s < seq; s++ {
			id := int(ids.Data[b*seq+s])
			if id < 0 || id >= e.VocabSize {
				return nil, fmt.Errorf("token id %d at (%d, %d) outside vocab of %d",
					id, b, s, e.VocabSize)
			}
			src := table.Data[id*e.DModel : (id+1)*e.DModel]
			dst := out.Data[(b*seq+s)*e.DModel : (b*seq+s+1)*e.DModel]
			for i, v := range src {
				dst[i] = v * scale
			}
		}
	}
	return out, nil
}
