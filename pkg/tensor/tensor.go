// Package tensor implements the float32 n-dimensional array underlying the
// transformer math: shape manipulation, batched matrix multiplication,
// softmax, broadcasting elementwise ops, and attention masks.
package tensor

import (
	"fmt"
	"math"
	"strings"
)

// Tensor is an n-dimensional array of float32 values stored as a flat slice
// with row-major strides.
type Tensor struct {
	Data    []float32
	Shape   []int
	Strides []int
}

// New creates a zero-filled tensor with the given shape.
func New(shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Tensor{
		Data:    make([]float32, size),
		Shape:   copyShape(shape),
		Strides: rowMajorStrides(shape),
	}
}

// FromSlice creates a tensor that owns a copy of data, interpreted with the
// given shape. Returns an error if the element count does not match.
func FromSlice(data []float32, shape ...int) (*Tensor, error) {
	want := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		want *= dim
	}
	if len(data) != want {
		return nil, fmt.Errorf("data has %d elements, shape %v needs %d", len(data), shape, want)
	}
	t := New(shape...)
	copy(t.Data, data)
	return t, nil
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// Reshape returns a view over the same data with a new shape. The total
// element count must be preserved.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	size := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		size *= dim
	}
	if size != len(t.Data) {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape, len(t.Data), shape, size)
	}
	return &Tensor{
		Data:    t.Data,
		Shape:   copyShape(shape),
		Strides: rowMajorStrides(shape),
	}, nil
}

// MustReshape is Reshape for shapes already known to be compatible.
func (t *Tensor) MustReshape(shape ...int) *Tensor {
	out, err := t.Reshape(shape...)
	if err != nil {
		panic(err)
	}
	return out
}

// Transpose returns a copy with dimensions dim1 and dim2 exchanged.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if dim1 < 0 || dim1 >= t.Rank() || dim2 < 0 || dim2 >= t.Rank() {
		return nil, fmt.Errorf("transpose dims (%d, %d) out of range for rank %d", dim1, dim2, t.Rank())
	}
	if dim1 == dim2 {
		return t.Clone(), nil
	}

	newShape := copyShape(t.Shape)
	newShape[dim1], newShape[dim2] = newShape[dim2], newShape[dim1]
	out := New(newShape...)

	idx := make([]int, t.Rank())
	var walk func(dim int)
	walk = func(dim int) {
		if dim == t.Rank() {
			src := 0
			for i, v := range idx {
				src += v * t.Strides[i]
			}
			dst := 0
			for i, v := range idx {
				j := i
				if i == dim1 {
					j = dim2
				} else if i == dim2 {
					j = dim1
				}
				dst += v * out.Strides[j]
			}
			out.Data[dst] = t.Data[src]
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

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := New(t.Shape...)
	copy(out.Data, t.Data)
	return out
}

// flatIndex converts multi-dimensional indices to a flat offset.
// Out-of-range indices are programmer errors and panic.
func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != t.Rank() {
		panic(fmt.Sprintf("got %d indices for rank-%d tensor", len(indices), t.Rank()))
	}
	idx := 0
	for i, v := range indices {
		if v < 0 || v >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of range for dimension %d (size %d)", v, i, t.Shape[i]))
		}
		idx += v * t.Strides[i]
	}
	return idx
}

// At returns the value at the given indices.
func (t *Tensor) At(indices ...int) float32 {
	return t.Data[t.flatIndex(indices)]
}

// SetAt stores a value at the given indices.
func (t *Tensor) SetAt(value float32, indices ...int) {
	t.Data[t.flatIndex(indices)] = value
}

// ShapeEquals reports whether two tensors have identical shapes.
func (t *Tensor) ShapeEquals(other *Tensor) bool {
	if t.Rank() != other.Rank() {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// Equals reports whether two tensors have the same shape and elementwise
// values within tolerance.
func (t *Tensor) Equals(other *Tensor, tolerance float32) bool {
	if !t.ShapeEquals(other) {
		return false
	}
	for i := range t.Data {
		if math.Abs(float64(t.Data[i]-other.Data[i])) > float64(tolerance) {
			return false
		}
	}
	return true
}

// String renders the shape and a truncated view of the data.
func (t *Tensor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor%v [", t.Shape)
	limit := len(t.Data)
	if limit > 8 {
		limit = 8
	}
	for i := 0; i < limit; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%g", t.Data[i])
	}
	if len(t.Data) > limit {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func copyShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}
