package audio

import (
	"time"

	"github.com/normanking/tutorbridge/internal/metrics"
	"github.com/normanking/tutorbridge/internal/model"
)

// ChunkSize is the number of samples in one chunk of duration d at rate.
func ChunkSize(rate int, d time.Duration) int {
	n := int(int64(rate) * int64(d) / int64(time.Second))
	if n < 1 {
		n = 1
	}
	return n
}

// Chunker cuts a mono sample stream into fixed-size chunks. It is owned by
// a single producer.
type Chunker struct {
	rate    int
	size    int
	buf     []float32
	out     chan<- model.AudioChunk
	dropped int
}

// NewChunker emits chunks of ChunkSize(rate, d) samples onto out.
func NewChunker(rate int, d time.Duration, out chan<- model.AudioChunk) *Chunker {
	size := ChunkSize(rate, d)
	return &Chunker{
		rate: rate,
		size: size,
		buf:  make([]float32, 0, size),
		out:  out,
	}
}

// Write appends samples and emits every chunk that fills. Emission never
// blocks; a full output drops the chunk.
func (c *Chunker) Write(samples []float32) {
	for len(samples) > 0 {
		n := c.size - len(c.buf)
		if n > len(samples) {
			n = len(samples)
		}
		c.buf = append(c.buf, samples[:n]...)
		samples = samples[n:]

		if len(c.buf) == c.size {
			c.emit()
		}
	}
}

func (c *Chunker) emit() {
	chunk := model.AudioChunk{
		Samples:    append([]float32(nil), c.buf...),
		SampleRate: c.rate,
	}
	c.buf = c.buf[:0]

	select {
	case c.out <- chunk:
	default:
		c.dropped++
		metrics.CaptureChunksDropped.Inc()
	}
}

// Size is the chunk length in samples.
func (c *Chunker) Size() int { return c.size }

// Pending is the number of buffered samples not yet emitted.
func (c *Chunker) Pending() int { return len(c.buf) }

// Dropped counts chunks lost to a full output.
func (c *Chunker) Dropped() int { return c.dropped }
