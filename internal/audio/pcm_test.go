package audio

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		name       string
		byteLen    int
		sampleRate int
		want       time.Duration
	}{
		{
			name:       "one second at 16kHz",
			byteLen:    32000,
			sampleRate: 16000,
			want:       time.Second,
		},
		{
			name:       "100ms at 24kHz",
			byteLen:    4800,
			sampleRate: 24000,
			want:       100 * time.Millisecond,
		},
		{
			name:       "zero bytes",
			byteLen:    0,
			sampleRate: 16000,
			want:       0,
		},
		{
			name:       "invalid sample rate",
			byteLen:    32000,
			sampleRate: 0,
			want:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Duration(tt.byteLen, tt.sampleRate)
			if got != tt.want {
				t.Errorf("Duration(%d, %d) = %v, want %v", tt.byteLen, tt.sampleRate, got, tt.want)
			}
		})
	}
}

func TestAlignFrame(t *testing.T) {
	even := []byte{1, 2, 3, 4}
	aligned, truncated := AlignFrame(even)
	if truncated {
		t.Error("even-length frame should not be truncated")
	}
	if len(aligned) != 4 {
		t.Errorf("expected 4 bytes, got %d", len(aligned))
	}

	odd := []byte{1, 2, 3}
	aligned, truncated = AlignFrame(odd)
	if !truncated {
		t.Error("odd-length frame should be truncated")
	}
	if len(aligned) != 2 {
		t.Errorf("expected 2 bytes after truncation, got %d", len(aligned))
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0}
	out := ResampleMono16(pcm, 16000, 16000)
	if len(out) != len(pcm) {
		t.Errorf("same-rate resample should be a no-op, got %d bytes", len(out))
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	// 24kHz -> 16kHz should yield 2/3 of the samples.
	srcSamples := 240
	pcm := make([]byte, srcSamples*2)
	for i := 0; i < srcSamples; i++ {
		pcm[i*2] = byte(i)
		pcm[i*2+1] = 0
	}

	out := ResampleMono16(pcm, 24000, 16000)
	wantSamples := srcSamples * 16000 / 24000
	if len(out) != wantSamples*2 {
		t.Errorf("expected %d samples, got %d", wantSamples, len(out)/2)
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	srcSamples := 160
	pcm := make([]byte, srcSamples*2)
	out := ResampleMono16(pcm, 16000, 24000)
	wantSamples := srcSamples * 24000 / 16000
	if len(out) != wantSamples*2 {
		t.Errorf("expected %d samples, got %d", wantSamples, len(out)/2)
	}
}

func TestResampleMono16_ConstantSignalPreserved(t *testing.T) {
	// A constant-value signal must survive interpolation unchanged.
	srcSamples := 100
	pcm := make([]byte, srcSamples*2)
	for i := 0; i < srcSamples; i++ {
		pcm[i*2] = 0x10
		pcm[i*2+1] = 0x01
	}

	out := ResampleMono16(pcm, 24000, 16000)
	for i := 0; i+1 < len(out); i += 2 {
		if out[i] != 0x10 || out[i+1] != 0x01 {
			t.Fatalf("sample %d changed during resample: %x %x", i/2, out[i], out[i+1])
		}
	}
}
