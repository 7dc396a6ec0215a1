package audio

import "encoding/binary"

// PCM16ToFloat converts signed 16-bit samples to [-1, 1).
func PCM16ToFloat(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// DecodeS16LE decodes little-endian 16-bit PCM. A trailing odd byte is
// ignored.
func DecodeS16LE(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// Downmix averages interleaved frames into mono. A trailing partial frame
// is dropped.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		base := f * channels
		for c := 0; c < channels; c++ {
			sum += interleaved[base+c]
		}
		out[f] = sum / float32(channels)
	}
	return out
}
