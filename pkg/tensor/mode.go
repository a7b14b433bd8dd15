package tensor

// Mode selects between training and inference behavior for stochastic
// operations. It is threaded explicitly through every forward pass instead of
// living in a global flag, so dropout stays deterministic and testable.
type Mode int

const (
	// Eval disables dropout; forward passes are pure functions of the input.
	Eval Mode = iota
	// Train enables dropout.
	Train
)

func (m Mode) String() string {
	if m == Train {
		return "train"
	}
	return "eval"
}
