package audioconv

import "math"

// Normalize returns a new mono 16 kHz 16-bit buffer. A buffer that is
// already in that shape comes back as an equal copy.
func Normalize(b Buffer) (Buffer, error) {
	if err := b.Validate(); err != nil {
		return Buffer{}, err
	}
	if b.IsNormalized() {
		return b.Clone(), nil
	}

	x, err := b.Float32()
	if err != nil {
		return Buffer{}, err
	}
	if b.Channels > 1 {
		x = downmixInterleaved(x, b.Channels)
	}
	if b.SampleRate != TargetRate {
		x = resampleLinear(x, b.SampleRate, TargetRate)
	}
	return FromFloat32(x, TargetRate, 1), nil
}

// helpers

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
