package wav

import (
	"encoding/binary"
	"errors"
	"testing"
)

func ramp(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i * 10)
	}
	return s
}

func TestToPCM_SameRate(t *testing.T) {
	in := ramp(320)
	out, err := ToPCM(Encode(in, 16000, 1), 16000)
	if err != nil {
		t.Fatalf("ToPCM error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestToPCM_FirstChannelOnly(t *testing.T) {
	// Left carries the signal, right is noise that must be discarded.
	stereo := []int16{1, 900, 2, -900, 3, 900}
	out, err := ToPCM(Encode(stereo, 16000, 2), 16000)
	if err != nil {
		t.Fatalf("ToPCM error: %v", err)
	}
	want := []int16{1, 2, 3}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestToPCM_Resamples(t *testing.T) {
	tests := []struct {
		name     string
		src, n   int
		want     int
		highQual bool
	}{
		{"8k->16k", 8000, 800, 1600, false},
		{"48k->16k", 48000, 4800, 1600, false},
		{"44.1k->16k", 44100, 44100, 16000, false},
		{"48k->16k hq", 48000, 4800, 1600, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.highQual {
				opts = append(opts, WithHighQuality())
			}
			out, err := ToPCM(Encode(ramp(tt.n), tt.src, 1), 16000, opts...)
			if err != nil {
				t.Fatalf("ToPCM error: %v", err)
			}
			if len(out) != tt.want {
				t.Errorf("len = %d, want %d", len(out), tt.want)
			}
		})
	}
}

func TestToPCM_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"raw pcm", make([]byte, 16000)},
		{"riff without wave", append([]byte("RIFF\x00\x00\x00\x00AVI "), make([]byte, 32)...)},
		{"no data chunk", Encode(nil, 16000, 1)[:36]},
		{"8 bit", withBits(Encode(ramp(4), 16000, 1), 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ToPCM(tt.data, 16000); !errors.Is(err, ErrMalformed) {
				t.Fatalf("error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestToPCM_InvalidTargetRate(t *testing.T) {
	_, err := ToPCM(Encode(ramp(4), 16000, 1), 0)
	if err == nil || errors.Is(err, ErrMalformed) {
		t.Fatalf("error = %v, want non-malformed error", err)
	}
}

func withBits(b []byte, bits uint16) []byte {
	binary.LittleEndian.PutUint16(b[34:36], bits)
	return b
}

func withDataSize(b []byte, size uint32) []byte {
	binary.LittleEndian.PutUint32(b[40:44], size)
	return b
}

func TestDecode_Empty(t *testing.T) {
	for _, b := range [][]byte{nil, {}} {
		if _, _, err := Decode(b); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Decode(%v) error = %v, want ErrMalformed", b, err)
		}
	}
}

func TestDecode_StreamingSizes(t *testing.T) {
	for _, size := range []uint32{0, 0xFFFFFFFF, 1 << 20} {
		b := withDataSize(Encode(ramp(100), 16000, 1), size)
		_, samples, err := Decode(b)
		if err != nil {
			t.Fatalf("size %#x: Decode error: %v", size, err)
		}
		if len(samples) != 100 {
			t.Errorf("size %#x: got %d samples, want 100", size, len(samples))
		}
	}
}

func TestDecode_TruncatedFrame(t *testing.T) {
	b := Encode(ramp(10), 16000, 2) // 5 frames
	b = b[:len(b)-3]                // cut into the last frame
	_, samples, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(samples) != 8 {
		t.Fatalf("got %d samples, want 8 (4 whole frames)", len(samples))
	}
}

func TestDecode_ConcatenatedSegments(t *testing.T) {
	b := append(Encode(ramp(50), 16000, 1), Encode(ramp(30), 16000, 1)...)
	h, samples, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if h.SampleRate != 16000 || h.Channels != 1 {
		t.Errorf("header = %+v", h)
	}
	if len(samples) != 80 {
		t.Fatalf("got %d samples, want 80", len(samples))
	}
	if samples[50] != 0 || samples[51] != 10 {
		t.Errorf("second segment starts with %d,%d, want 0,10", samples[50], samples[51])
	}
}

func TestDecode_SegmentFormatMismatch(t *testing.T) {
	b := append(Encode(ramp(50), 16000, 1), Encode(ramp(30), 8000, 1)...)
	if _, _, err := Decode(b); !errors.Is(err, ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
}

func TestDecode_SkipsUnknownChunks(t *testing.T) {
	enc := Encode(ramp(6), 16000, 1)
	list := []byte("LIST\x03\x00\x00\x00abc\x00") // odd size plus pad byte
	b := append(append(append([]byte{}, enc[:36]...), list...), enc[36:]...)
	_, samples, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(samples) != 6 {
		t.Fatalf("got %d samples, want 6", len(samples))
	}
}
