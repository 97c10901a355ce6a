package voiceprint

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Hasher maps embeddings to short locality-sensitive hex hashes using random
// hyperplanes: bit i is set when the embedding lies on the positive side of
// plane i. Close embeddings share a hash with high probability, and a prefix
// of the hash is a coarser bucket ("A3F8" -> "A3F" -> "A3").
type Hasher struct {
	dim    int
	bits   int
	planes [][]float32
}

// NewHasher creates a Hasher for dim-dimensional embeddings producing bits
// bits of hash. bits must be a positive multiple of 4. The same seed always
// yields the same planes.
func NewHasher(dim, bits int, seed uint64) (*Hasher, error) {
	if bits <= 0 || bits%4 != 0 {
		return nil, fmt.Errorf("voiceprint: hash bits %d must be a positive multiple of 4", bits)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("voiceprint: hash dimension %d must be positive", dim)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0xdeadbeef))
	planes := make([][]float32, bits)
	for i := range planes {
		plane := make([]float32, dim)
		var norm float64
		for j := range plane {
			v := rng.NormFloat64()
			plane[j] = float32(v)
			norm += v * v
		}
		if norm > 0 {
			scale := float32(1 / math.Sqrt(norm))
			for j := range plane {
				plane[j] *= scale
			}
		}
		planes[i] = plane
	}
	return &Hasher{dim: dim, bits: bits, planes: planes}, nil
}

// Hash returns bits/4 uppercase hex characters for embedding.
func (h *Hasher) Hash(embedding []float32) (string, error) {
	if len(embedding) != h.dim {
		return "", fmt.Errorf("voiceprint: embedding has dimension %d, want %d", len(embedding), h.dim)
	}
	out := make([]byte, (h.bits+7)/8)
	for i, plane := range h.planes {
		var dot float32
		for j := range plane {
			dot += plane[j] * embedding[j]
		}
		if dot > 0 {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return strings.ToUpper(hex.EncodeToString(out))[:h.bits/4], nil
}

// Label returns the voice label ("voice:XXXX") of a LocalEngine profile.
func (h *Hasher) Label(p Profile) (string, error) {
	d, err := DecodeProfile(p)
	if err != nil {
		return "", err
	}
	hash, err := h.Hash(d.Centroid)
	if err != nil {
		return "", err
	}
	return VoiceLabel(hash), nil
}

// Bits returns the number of hash bits.
func (h *Hasher) Bits() int { return h.bits }

// Dim returns the expected embedding dimension.
func (h *Hasher) Dim() int { return h.dim }
