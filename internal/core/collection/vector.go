package collection

import "fmt"

// CheckVectors はチャンクとベクトルの対応と次元数の一貫性を検証し、次元数を返す
// 空の入力の場合は次元数0を返す
func CheckVectors(chunks []Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("%w: %d chunks, %d vectors", ErrLengthMismatch, len(chunks), len(vectors))
	}

	dimension := 0
	for i, v := range vectors {
		if len(v) == 0 {
			return 0, fmt.Errorf("%w: vector %d", ErrEmptyVector, i)
		}
		if dimension == 0 {
			dimension = len(v)
			continue
		}
		if len(v) != dimension {
			return 0, fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dimension)
		}
	}
	return dimension, nil
}
