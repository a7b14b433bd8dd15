package params

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/x448/float16"

	"tformer/pkg/tensor"
)

// DType selects the on-disk element encoding.
type DType uint8

const (
	// Float32 stores raw IEEE-754 single precision.
	Float32 DType = iota
	// Float16 stores IEEE-754 half precision, halving file size at the cost
	// of ~3 decimal digits.
	Float16
)

// storeMagic identifies the store file format; the trailing byte is the
// format version.
var storeMagic = [4]byte{'T', 'F', 'P', '1'}

// Save writes every parameter to w in name order.
//
// Layout (little endian):
//
//	magic[4]
//	uint32 count
//	per parameter:
//	  uint16 name length, name bytes
//	  uint8  dtype
//	  uint8  rank, rank x uint32 dims
//	  payload (float32 or float16 bits)
func (s *Store) Save(w io.Writer, dt DType) error {
	if dt != Float32 && dt != Float16 {
		return fmt.Errorf("unknown dtype %d", dt)
	}
	if _, err := w.Write(storeMagic[:]); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	names := s.Names()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(names))); err != nil {
		return fmt.Errorf("failed to write count: %w", err)
	}

	for _, name := range names {
		t, err := s.Get(name)
		if err != nil {
			return err
		}
		if len(name) > 0xFFFF {
			return fmt.Errorf("parameter name %q too long", name)
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(len(name))); err != nil {
			return fmt.Errorf("failed to write name length for %q: %w", name, err)
		}
		if _, err := io.WriteString(w, name); err != nil {
			return fmt.Errorf("failed to write name %q: %w", name, err)
		}
		header := []uint8{uint8(dt), uint8(t.Rank())}
		if _, err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write header for %q: %w", name, err)
		}
		for _, dim := range t.Shape {
			if err := binary.Write(w, binary.LittleEndian, uint32(dim)); err != nil {
				return fmt.Errorf("failed to write shape for %q: %w", name, err)
			}
		}

		switch dt {
		case Float32:
			if err := binary.Write(w, binary.LittleEndian, t.Data); err != nil {
				return fmt.Errorf("failed to write payload for %q: %w", name, err)
			}
		case Float16:
			half := make([]uint16, len(t.Data))
			for i, v := range t.Data {
				half[i] = float16.Fromfloat32(v).Bits()
			}
			if err := binary.Write(w, binary.LittleEndian, half); err != nil {
				return fmt.Errorf("failed to write payload for %q: %w", name, err)
			}
		}
	}
	return nil
}

// Load replaces the store contents with parameters read from r. Half
// precision payloads are widened back to float32.
func (s *Store) Load(r io.Reader) error {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if magic != storeMagic {
		return fmt.Errorf("unrecognized store header %q", magic)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("failed to read count: %w", err)
	}

	loaded := make(map[string]*tensor.Tensor, count)
	for i := uint32(0); i < count; i++ {
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return fmt.Errorf("failed to read name length: %w", err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return fmt.Errorf("failed to read name: %w", err)
		}
		name := string(nameBytes)

		var header [2]uint8
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return fmt.Errorf("failed to read header for %q: %w", name, err)
		}
		dt, rank := DType(header[0]), int(header[1])

		shape := make([]int, rank)
		size := 1
		for d := 0; d < rank; d++ {
			var dim uint32
			if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
				return fmt.Errorf("failed to read shape for %q: %w", name, err)
			}
			shape[d] = int(dim)
			size *= int(dim)
		}

		data := make([]float32, size)
		switch dt {
		case Float32:
			if err := binary.Read(r, binary.LittleEndian, data); err != nil {
				return fmt.Errorf("failed to read payload for %q: %w", name, err)
			}
		case Float16:
			half := make([]uint16, size)
			if err := binary.Read(r, binary.LittleEndian, half); err != nil {
				return fmt.Errorf("failed to read payload for %q: %w", name, err)
			}
			for j, bits := range half {
				data[j] = float16.Frombits(bits).Float32()
			}
		default:
			return fmt.Errorf("parameter %q has unknown dtype %d", name, dt)
		}

		t, err := tensor.FromSlice(data, shape...)
		if err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
		loaded[name] = t
	}

	s.mu.Lock()
	s.params = loaded
	s.mu.Unlock()
	return nil
}
