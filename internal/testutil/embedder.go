package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// HashDimension は HashEmbedder が返すベクトルの次元
const HashDimension = 256

var wordPattern = regexp.MustCompile(`[a-z]+`)

// HashEmbedder は単語の出現頻度を固定次元に射影する決定的な Embedder
// 4文字未満の単語は無視する。同じ単語集合を持つテキストは同じベクトルになる
type HashEmbedder struct{}

func (HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, HashDimension)
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(word) < 4 {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%HashDimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (e HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (HashEmbedder) ModelName() string { return "hash-test" }
