package storage

import (
	"encoding/binary"
	"math"

	"github.com/m-mizutani/goerr/v2"
)

// EncodeEmbedding packs vec as little-endian IEEE 754 float64s, the BLOB
// layout shared by the SQL engines and backups.
func EncodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// DecodeEmbedding unpacks a blob written by EncodeEmbedding. dimension guards
// against truncated rows.
func DecodeEmbedding(buf []byte, dimension int) ([]float64, error) {
	if dimension <= 0 || len(buf) != dimension*8 {
		return nil, goerr.New("embedding blob size mismatch",
			goerr.V("dimension", dimension), goerr.V("bytes", len(buf)))
	}
	vec := make([]float64, dimension)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec, nil
}
