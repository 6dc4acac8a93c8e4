package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Vectors are stored as little-endian IEEE-754 float32 so that a round trip
// through the database is bit-exact.

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if buf == nil {
		return nil, fmt.Errorf("vector missing")
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector has %d bytes, not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
