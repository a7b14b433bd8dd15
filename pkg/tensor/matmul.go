package tensor

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Matmul multiplies the last two dimensions of a and b.
// Shapes (..., m, n) @ (..., n, p) produce (..., m, p). A 2D operand is
// broadcast against a batched 3D operand on the other side.
func Matmul(a, b *Tensor) (*Tensor, error) {
	if a.Rank() < 2 || b.Rank() < 2 {
		return nil, fmt.Errorf("matmul needs at least 2D operands, got %dD and %dD", a.Rank(), b.Rank())
	}

	n := a.Shape[a.Rank()-1]
	if b.Shape[b.Rank()-2] != n {
		return nil, fmt.Errorf("matmul shape mismatch: %v @ %v (inner dims %d and %d)",
			a.Shape, b.Shape, n, b.Shape[b.Rank()-2])
	}

	switch {
	case a.Rank() == 3 && b.Rank() == 2:
		return matmulBroadcastRight(a, b)
	case a.Rank() == 2 && b.Rank() == 3:
		return matmulBroadcastLeft(a, b)
	}

	if a.Rank() != b.Rank() {
		return nil, fmt.Errorf("matmul rank mismatch: %v @ %v", a.Shape, b.Shape)
	}
	for i := 0; i < a.Rank()-2; i++ {
		if a.Shape[i] != b.Shape[i] {
			return nil, fmt.Errorf("matmul batch dims differ: %v @ %v", a.Shape, b.Shape)
		}
	}
	return matmulBatched(a, b)
}

// matmulBroadcastRight computes (batch, m, n) @ (n, p) -> (batch, m, p).
func matmulBroadcastRight(a, b *Tensor) (*Tensor, error) {
	batch, m, n := a.Shape[0], a.Shape[1], a.Shape[2]
	p := b.Shape[1]
	out := New(batch, m, p)
	for bi := 0; bi < batch; bi++ {
		mulBlock(a.Data[bi*m*n:], b.Data, out.Data[bi*m*p:], m, n, p)
	}
	return out, nil
}

// matmulBroadcastLeft computes (m, n) @ (batch, n, p) -> (batch, m, p).
func matmulBroadcastLeft(a, b *Tensor) (*Tensor, error) {
	m, n := a.Shape[0], a.Shape[1]
	batch, p := b.Shape[0], b.Shape[2]
	out := New(batch, m, p)
	for bi := 0; bi < batch; bi++ {
		mulBlock(a.Data, b.Data[bi*n*p:], out.Data[bi*m*p:], m, n, p)
	}
	return out, nil
}

// matmulBatched multiplies equal-rank operands, flattening every leading
// dimension into one batch axis. Batches run across a worker pool sized to
// the machine; each worker owns disjoint output slices, so no locking.
func matmulBatched(a, b *Tensor) (*Tensor, error) {
	m := a.Shape[a.Rank()-2]
	n := a.Shape[a.Rank()-1]
	p := b.Shape[b.Rank()-1]

	batch := 1
	for _, dim := range a.Shape[:a.Rank()-2] {
		batch *= dim
	}

	outShape := append(copyShape(a.Shape[:a.Rank()-2]), m, p)
	out := New(outShape...)

	workers := runtime.NumCPU()
	if workers > batch {
		workers = batch
	}
	if workers <= 1 {
		for bi := 0; bi < batch; bi++ {
			mulBlock(a.Data[bi*m*n:], b.Data[bi*n*p:], out.Data[bi*m*p:], m, n, p)
		}
		return out, nil
	}

	var g errgroup.Group
	chunk := (batch + workers - 1) / workers
	for start := 0; start < batch; start += chunk {
		end := start + chunk
		if end > batch {
			end = batch
		}
		start, end := start, end
		g.Go(func() error {
			for bi := start; bi < end; bi++ {
				mulBlock(a.Data[bi*m*n:], b.Data[bi*n*p:], out.Data[bi*m*p:], m, n, p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// mulBlock computes one (m, n) @ (n, p) product into dst.
func mulBlock(a, b, dst []float32, m, n, p int) {
	for i := 0; i < m; i++ {
		row := a[i*n : (i+1)*n]
		for k := 0; k < p; k++ {
			sum := float32(0)
			for j := 0; j < n; j++ {
				sum += row[j] * b[j*p+k]
			}
			dst[i*p+k] = sum
		}
	}
}
