package audio

import (
	"bytes"
	"testing"
)

// pcm16 builds little-endian PCM bytes from int16 samples.
func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func TestMonoToStereo(t *testing.T) {
	t.Parallel()

	got := MonoToStereo(pcm16(100, -200))
	want := pcm16(100, 100, -200, -200)
	if !bytes.Equal(got, want) {
		t.Errorf("MonoToStereo = %v, want %v", got, want)
	}
}

func TestStereoToMonoAverages(t *testing.T) {
	t.Parallel()

	got := StereoToMono(pcm16(100, 200, -100, -300))
	want := pcm16(150, -200)
	if !bytes.Equal(got, want) {
		t.Errorf("StereoToMono = %v, want %v", got, want)
	}
}

func TestUpsample3xRepeatsSamples(t *testing.T) {
	t.Parallel()

	got := Upsample3x(pcm16(7, -9))
	want := pcm16(7, 7, 7, -9, -9, -9)
	if !bytes.Equal(got, want) {
		t.Errorf("Upsample3x = %v, want %v", got, want)
	}
	if len(Upsample3x(nil)) != 0 {
		t.Error("Upsample3x(nil) should be empty")
	}
}

func TestMixAverage16(t *testing.T) {
	t.Parallel()

	got := MixAverage16(pcm16(1000, -1000), pcm16(2000, 1000))
	want := pcm16(1500, 0)
	if !bytes.Equal(got, want) {
		t.Errorf("MixAverage16 = %v, want %v", got, want)
	}
}

func TestMixAverage16ShortSecondBuffer(t *testing.T) {
	t.Parallel()

	// The missing tail of b is silence, halving a there.
	got := MixAverage16(pcm16(1000, 1000), pcm16(1000))
	want := pcm16(1000, 500)
	if !bytes.Equal(got, want) {
		t.Errorf("MixAverage16 = %v, want %v", got, want)
	}
}

func TestMixAverage16NoOverflow(t *testing.T) {
	t.Parallel()

	got := MixAverage16(pcm16(32767), pcm16(32767))
	if s := int16(got[0]) | int16(got[1])<<8; s != 32767 {
		t.Errorf("mixed max samples = %d, want 32767", s)
	}
	got = MixAverage16(pcm16(-32768), pcm16(-32768))
	if s := int16(got[0]) | int16(got[1])<<8; s != -32768 {
		t.Errorf("mixed min samples = %d, want -32768", s)
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	in := pcm16(0, 100, 200, 300)
	same := ResampleMono16(in, 16000, 16000)
	if !bytes.Equal(same, in) {
		t.Error("same-rate resample should return input unchanged")
	}

	down := ResampleMono16(in, 32000, 16000)
	if len(down) != 4 {
		t.Fatalf("downsampled length = %d bytes, want 4", len(down))
	}

	up := ResampleMono16(in, 16000, 48000)
	if len(up) != len(in)*3 {
		t.Fatalf("upsampled length = %d bytes, want %d", len(up), len(in)*3)
	}
}
