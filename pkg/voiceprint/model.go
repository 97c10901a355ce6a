package voiceprint

import (
	"fmt"

	"github.com/haivivi/voicerelay/pkg/audio/fbank"
)

// Model extracts a speaker embedding from a block of mono PCM16 audio at
// the engine sample rate. Implementations must be safe for concurrent use.
type Model interface {
	Extract(samples []int16) ([]float32, error)

	// Dimension is the length of vectors returned by Extract.
	Dimension() int

	Close() error
}

// FbankModel embeds audio as pooled log mel filterbank statistics.
// It needs no model weights and is the default for LocalEngine.
type FbankModel struct {
	ext *fbank.Extractor
}

// NewFbankModel creates a FbankModel for cfg.
func NewFbankModel(cfg fbank.Config) *FbankModel {
	return &FbankModel{ext: fbank.New(cfg)}
}

// Extract pools the filterbank matrix of samples into one vector.
func (m *FbankModel) Extract(samples []int16) ([]float32, error) {
	features := m.ext.Extract(samples)
	if features == nil {
		return nil, fmt.Errorf("voiceprint: %d samples is shorter than one analysis window", len(samples))
	}
	return fbank.Pool(features), nil
}

// Dimension returns 2*NumMels.
func (m *FbankModel) Dimension() int { return 2 * m.ext.Config().NumMels }

func (m *FbankModel) Close() error { return nil }
