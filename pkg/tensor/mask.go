package tensor

import "fmt"

// maskSentinel replaces forbidden scores before softmax. A finite value is
// used instead of -Inf so a fully masked row degrades to a uniform
// distribution rather than NaN.
const maskSentinel = float32(-1e9)

// MaskedFill returns t with the sentinel written wherever mask is zero.
// The mask broadcasts against t under the trailing-alignment rule, so a
// (seqQ, seqK) mask applies across every batch and head of a
// (batch, heads, seqQ, seqK) score tensor. Broadcasting runs one way only:
// the mask may be smaller than t, never larger.
func MaskedFill(t, mask *Tensor) (*Tensor, error) {
	bshape, err := broadcastShapes(t.Shape, mask.Shape)
	if err != nil {
		return nil, fmt.Errorf("mask %v does not broadcast over %v: %w", mask.Shape, t.Shape, err)
	}
	if len(bshape) != t.Rank() {
		return nil, fmt.Errorf("mask %v has higher rank than scores %v", mask.Shape, t.Shape)
	}
	for i, dim := range bshape {
		if dim != t.Shape[i] {
			return nil, fmt.Errorf("mask %v would broadcast scores %v up to %v", mask.Shape, t.Shape, bshape)
		}
	}

	out := t.Clone()
	idx := make([]int, t.Rank())
	var walk func(dim int)
	walk = func(dim int) {
		if dim == t.Rank() {
			if mask.Data[broadcastOffset(idx, t.Shape, mask.Shape)] == 0 {
				out.Data[out.flatIndex(idx)] = maskSentinel
			}
			return
		}
		for i := 0; i < t.Shape[dim]; i++ {
			idx[dim] = i
			walk(dim + 1)
		}
	}
	walk(0)
	return out, nil
}

// CausalMask builds a (seqLen, seqLen) mask with ones on and below the
// diagonal: position i may attend to positions j <= i only.
func CausalMask(seqLen int) *Tensor {
	mask := New(seqLen, seqLen)
	for i := 0; i < seqLen; i++ {
		for j := 0; j <= i; j++ {
			mask.Data[i*seqLen+j] = 1
		}
	}
	return mask
}

// PaddingMask builds a (batch, 1, 1, seqLen) mask that is zero wherever the
// token id equals pad. The two singleton axes broadcast over heads and query
// positions of a (batch, heads, seqQ, seqK) score tensor, hiding padded key
// positions from every query.
func PaddingMask(ids *Tensor, pad int) (*Tensor, error) {
	if ids.Rank() != 2 {
		return nil, fmt.Errorf("expected 2D token ids (batch, seq), got shape %v", ids.Shape)
	}
	batch, seqLen := ids.Shape[0], ids.Shape[1]
	mask := New(batch, 1, 1, seqLen)
	for b := 0; b < batch; b++ {
		for s := 0; s < seqLen; s++ {
			if int(ids.Data[b*seqLen+s]) != pad {
				mask.Data[b*seqLen+s] = 1
			}
		}
	}
	return mask, nil
}
