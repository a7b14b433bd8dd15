package tensor

import "math"

// ReLU applies max(0, x) elementwise. This is the activation used by the
// original transformer's position-wise feed-forward network.
func (t *Tensor) ReLU() *Tensor {
	out := New(t.Shape...)
	for i, v := range t.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out
}

// GELU applies the tanh approximation of the Gaussian Error Linear Unit,
// kept as an alternative feed-forward activation.
//
//	GELU(x) = 0.5 * x * (1 + tanh(sqrt(2/pi) * (x + 0.044715 * x^3)))
func (t *Tensor) GELU() *Tensor {
	const (
		sqrt2OverPi = 0.7978845608
		coeff       = 0.044715
	)
	out := New(t.Shape...)
	for i, v := range t.Data {
		inner := float64(v + coeff*v*v*v)
		out.Data[i] = 0.5 * v * (1 + float32(math.Tanh(sqrt2OverPi*inner)))
	}
	return out
}
