package database

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

func (dm *DBManager) dims() int {
	if dm.config.EmbeddingDims <= 0 {
		return 4
	}
	return dm.config.EmbeddingDims
}

// vectorToString converts a float32 slice to libSQL's vector literal. An
// empty input yields the zero vector.
func (dm *DBManager) vectorToString(numbers []float32) (string, error) {
	dims := dm.dims()
	if len(numbers) == 0 {
		numbers = make([]float32, dims)
	}
	if len(numbers) != dims {
		return "", fmt.Errorf("vector must have exactly %d dimensions, got %d", dims, len(numbers))
	}
	var b strings.Builder
	b.Grow(dims * 10)
	b.WriteByte('[')
	for i, n := range numbers {
		if i > 0 {
			b.WriteString(", ")
		}
		// non-finite components are stored as zero
		if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
			n = 0
		}
		b.WriteString(strconv.FormatFloat(float64(n), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

// extractVector decodes an F32_BLOB (little-endian float32s).
func (dm *DBManager) extractVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	dims := dm.dims()
	if len(blob) != dims*4 {
		return nil, fmt.Errorf("invalid embedding size: expected %d bytes for %d-dimensional vector, got %d", dims*4, dims, len(blob))
	}
	vector := make([]float32, dims)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : (i+1)*4]))
	}
	return vector, nil
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 && !math.IsNaN(float64(x)) {
			return false
		}
	}
	return true
}
