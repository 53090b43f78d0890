// Package audio provides device discovery and PCM plumbing for Meetfox: the
// physical microphone and virtual output selection policies, capture and
// playback streams backed by miniaudio, and the int16 PCM helpers used by the
// mixer and the TTS router.
package audio

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// Input must be little-endian int16 PCM (2 bytes per sample).
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (lSample + rSample) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// Upsample3x triples the sample rate of 16-bit mono PCM by repeating each
// sample three times. This is the exact 16 kHz → 48 kHz conversion used for
// synthesised speech before it enters the 48 kHz mixer.
func Upsample3x(pcm []byte) []byte {
	samples := len(pcm) / 2
	out := make([]byte, samples*6)
	for i := range samples {
		lo, hi := pcm[i*2], pcm[i*2+1]
		j := i * 6
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
		out[j+4] = lo
		out[j+5] = hi
	}
	return out
}

// MixAverage16 mixes two equal-length int16 PCM buffers by averaging each
// sample pair and clamping to int16 range. If b is shorter than a, the
// missing tail of b is treated as silence. The result has len(a) bytes.
func MixAverage16(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := 0; i+1 < len(a); i += 2 {
		sa := int32(int16(a[i]) | int16(a[i+1])<<8)
		var sb int32
		if i+1 < len(b) {
			sb = int32(int16(b[i]) | int16(b[i+1])<<8)
		}
		mixed := (sa + sb) / 2

		if mixed > 32767 {
			mixed = 32767
		} else if mixed < -32768 {
			mixed = -32768
		}

		out[i] = byte(mixed)
		out[i+1] = byte(mixed >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples. If
// srcRate == dstRate, the input is returned unchanged. Used when a capture
// device cannot be opened at the rate a consumer wants.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
