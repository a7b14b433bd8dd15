package tensor

import (
	"fmt"
	"math/rand"
)

// dropoutRand drives dropout sampling. Seeded lazily; tests pin it with
// SetDropoutSeed for reproducible runs.
var dropoutRand = rand.New(rand.NewSource(1))

// SetDropoutSeed reseeds the dropout generator.
func SetDropoutSeed(seed int64) {
	dropoutRand = rand.New(rand.NewSource(seed))
}

// Dropout zeroes each element with probability p when mode is Train,
// scaling survivors by 1/(1-p) so activation magnitudes are preserved
// (inverted dropout). In Eval mode it returns the input unchanged.
func (t *Tensor) Dropout(p float32, mode Mode) *Tensor {
	if mode != Train || p == 0 {
		return t
	}
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("dropout probability %v outside [0, 1)", p))
	}

	out := New(t.Shape...)
	keep := 1 / (1 - p)
	for i, v := range t.Data {
		if dropoutRand.Float32() >= p {
			out.Data[i] = v * keep
		}
	}
	return out
}
