// Package params owns the learned tensors of a model. Layers hold only
// hyperparameters and a dotted path like "encoder.0.self_attn.wq"; the store
// allocates, initializes, and serializes the tensors behind those paths. This
// keeps the forward-pass code pure and the mutable training state in one
// place.
package params

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"tformer/pkg/tensor"
)

// Store maps parameter names to tensors. Initialization draws from a single
// seeded generator, so two stores built with the same seed and the same
// registration order hold identical weights.
type Store struct {
	mu     sync.RWMutex
	rng    *rand.Rand
	params map[string]*tensor.Tensor
}

// NewStore creates an empty store whose initializers draw from seed.
func NewStore(seed int64) *Store {
	return &Store{
		rng:    rand.New(rand.NewSource(seed)),
		params: make(map[string]*tensor.Tensor),
	}
}

// Get returns the tensor registered under name.
func (s *Store) Get(name string) (*tensor.Tensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.params[name]
	if !ok {
		return nil, fmt.Errorf("parameter %q not found", name)
	}
	return t, nil
}

// Put registers or replaces a tensor under name.
func (s *Store) Put(name string, t *tensor.Tensor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[name] = t
}

// Len returns the number of registered parameters.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.params)
}

// Names returns all parameter names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.params))
	for name := range s.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normal registers a tensor initialized from N(0, std), or returns the
// existing tensor if name is already present. Returning the existing entry
// lets layers be rebuilt over a store loaded from disk without clobbering
// the loaded weights.
func (s *Store) Normal(name string, std float32, shape ...int) *tensor.Tensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.params[name]; ok {
		return t
	}
	t := tensor.New(shape...)
	for i := range t.Data {
		t.Data[i] = float32(s.rng.NormFloat64()) * std
	}
	s.params[name] = t
	return t
}

// Xavier registers a 2D tensor with Glorot uniform initialization, bounded
// by sqrt(6 / (fanIn + fanOut)).
func (s *Store) Xavier(name string, shape ...int) *tensor.Tensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.params[name]; ok {
		return t
	}
	t := tensor.New(shape...)
	fanIn, fanOut := shape[0], shape[0]
	if len(shape) > 1 {
		fanOut = shape[len(shape)-1]
	}
	bound := float32(math.Sqrt(6 / float64(fanIn+fanOut)))
	for i := range t.Data {
		t.Data[i] = (s.rng.Float32()*2 - 1) * bound
	}
	s.params[name] = t
	return t
}

// Ones registers a tensor filled with ones (layer-norm scale).
func (s *Store) Ones(name string, shape ...int) *tensor.Tensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.params[name]; ok {
		return t
	}
	t := tensor.New(shape...)
	for i := range t.Data {
		t.Data[i] = 1
	}
	s.params[name] = t
	return t
}

// Zeros registers a zero tensor (biases, layer-norm shift).
func (s *Store) Zeros(name string, shape ...int) *tensor.Tensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.params[name]; ok {
		return t
	}
	t := tensor.New(shape...)
	s.params[name] = t
	return t
}
