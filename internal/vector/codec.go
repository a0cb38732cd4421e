// Package vector converts embeddings to and from the textual vector literal
// accepted by MariaDB VEC_FromText and sqlite-vec vec_f32.
package vector

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spetr/aethersync/pkg/types"
)

// decimals is the fixed number of fractional digits per component.
const decimals = 8

// Encode renders vec as "[c1,c2,...]" with 8 decimal places per component.
func Encode(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", &types.EncodingError{Index: -1, Reason: "empty vector"}
	}

	var sb strings.Builder
	sb.Grow(len(vec)*12 + 2)
	sb.WriteByte('[')
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) {
			return "", &types.EncodingError{Index: i, Reason: "is NaN"}
		}
		if math.IsInf(f, 0) {
			return "", &types.EncodingError{Index: i, Reason: "is infinite"}
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(f, 'f', decimals, 64))
	}
	sb.WriteByte(']')
	return sb.String(), nil
}

// Decode parses a literal produced by Encode (or by VEC_ToText).
func Decode(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("vector: literal must be bracket-delimited: %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, fmt.Errorf("vector: empty literal")
	}

	parts := strings.Split(body, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("vector: component %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

// Validate checks that vec has exactly dims finite components.
func Validate(vec []float32, dims int) error {
	if len(vec) != dims {
		return fmt.Errorf("vector: got %d dimensions, want %d", len(vec), dims)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("vector: component %d is not finite", i)
		}
	}
	return nil
}

// CosineDistance returns 1 - cosine similarity, the same quantity as
// VEC_DISTANCE_COSINE and vec_distance_cosine.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector: cosine distance dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("vector: cosine distance on empty vectors")
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, fmt.Errorf("vector: cosine distance with zero-magnitude vector")
	}
	return 1 - dot/(math.Sqrt(na2)*math.Sqrt(nb2)), nil
}
