package tensor

import (
	"fmt"
	"math"
)

// Scale returns t with every element multiplied by s.
func (t *Tensor) Scale(s float32) *Tensor {
	out := New(t.Shape...)
	for i, v := range t.Data {
		out.Data[i] = v * s
	}
	return out
}

// Add performs elementwise addition with broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return elementwise(a, b, func(x, y float32) float32 { return x + y })
}

// Mul performs elementwise multiplication with broadcasting. Attention masks
// intersect this way: the product keeps a position only if every operand does.
func Mul(a, b *Tensor) (*Tensor, error) {
	return elementwise(a, b, func(x, y float32) float32 { return x * y })
}

func elementwise(a, b *Tensor, op func(float32, float32) float32) (*Tensor, error) {
	outShape, err := broadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, fmt.Errorf("cannot broadcast %v with %v: %w", a.Shape, b.Shape, err)
	}

	out := New(outShape...)
	idx := make([]int, len(outShape))
	var walk func(dim int)
	walk = func(dim int) {
		if dim == len(outShape) {
			av := a.Data[broadcastOffset(idx, outShape, a.Shape)]
			bv := b.Data[broadcastOffset(idx, outShape, b.Shape)]
			out.Data[out.flatIndex(idx)] = op(av, bv)
			return
		}
		for i := 0; i < outShape[dim]; i++ {
			idx[dim] = i
			walk(dim + 1)
		}
	}
	walk(0)
	return out, nil
}

// broadcastShapes resolves the common shape of two operands under the usual
// trailing-alignment rule: sizes must match or one of them must be 1.
func broadcastShapes(a, b []int) ([]int, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if i < len(a) {
			da = a[len(a)-1-i]
		}
		if i < len(b) {
			db = b[len(b)-1-i]
		}
		if da != db && da != 1 && db != 1 {
			return nil, fmt.Errorf("dimension sizes %d and %d conflict", da, db)
		}
		if da > db {
			out[n-1-i] = da
		} else {
			out[n-1-i] = db
		}
	}
	return out, nil
}

// broadcastOffset maps output indices back to a flat offset in an operand
// whose shape broadcasts to outShape. Size-1 dimensions stay pinned at 0.
func broadcastOffset(outIdx, outShape, inShape []int) int {
	offset := 0
	stride := 1
	diff := len(outShape) - len(inShape)
	for i := len(inShape) - 1; i >= 0; i-- {
		v := outIdx[i+diff]
		if inShape[i] == 1 {
			v = 0
		}
		offset += v * stride
		stride *= inShape[i]
	}
	return offset
}

// Softmax normalizes along dim so each slice sums to 1. The row maximum is
// subtracted before exponentiation, which keeps fully-masked rows finite.
func Softmax(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= t.Rank() {
		return nil, fmt.Errorf("softmax dim %d out of range for rank %d", dim, t.Rank())
	}
	if dim != t.Rank()-1 {
		// The transformer only ever normalizes the trailing axis; route other
		// axes through a transpose rather than duplicating the index math.
		moved, err := t.Transpose(dim, t.Rank()-1)
		if err != nil {
			return nil, err
		}
		soft, err := Softmax(moved, moved.Rank()-1)
		if err != nil {
			return nil, err
		}
		return soft.Transpose(dim, t.Rank()-1)
	}

	width := t.Shape[dim]
	out := New(t.Shape...)
	for start := 0; start < len(t.Data); start += width {
		row := t.Data[start : start+width]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		sum := float32(0)
		dst := out.Data[start : start+width]
		for i, v := range row {
			dst[i] = float32(math.Exp(float64(v - maxVal)))
			sum += dst[i]
		}
		for i := range dst {
			dst[i] /= sum
		}
	}
	return out, nil
}

// Concat joins tensors along dim. All other dimensions must agree.
func Concat(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("concat of zero tensors")
	}
	first := tensors[0]
	if dim < 0 || dim >= first.Rank() {
		return nil, fmt.Errorf("concat dim %d out of range for rank %d", dim, first.Rank())
	}

	outShape := copyShape(first.Shape)
	for i, t := range tensors[1:] {
		if t.Rank() != first.Rank() {
			return nil, fmt.Errorf("concat operand %d has rank %d, want %d", i+1, t.Rank(), first.Rank())
		}
		for j := range t.Shape {
			if j == dim {
				continue
			}
			if t.Shape[j] != first.Shape[j] {
				return nil, fmt.Errorf("concat operand %d shape %v conflicts with %v on dim %d",
					i+1, t.Shape, first.Shape, j)
			}
		}
		outShape[dim] += t.Shape[dim]
	}

	out := New(outShape...)
	// Copy slab by slab: outer = product of dims before `dim`, inner = span
	// of one concat slot in the flat layout.
	outer := 1
	for _, d := range first.Shape[:dim] {
		outer *= d
	}
	tail := 1
	for _, d := range first.Shape[dim+1:] {
		tail *= d
	}
	outRow := outShape[dim] * tail
	col := 0
	for _, t := range tensors {
		span := t.Shape[dim] * tail
		for o := 0; o < outer; o++ {
			copy(out.Data[o*outRow+col:o*outRow+col+span], t.Data[o*span:(o+1)*span])
		}
		col += span
	}
	return out, nil
}
