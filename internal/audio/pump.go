package audio

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/model"
)

// Sink accepts captured chunks. The mic-input bridge implements it.
type Sink interface {
	SendAudio(chunk model.AudioChunk) error
}

// Pump forwards chunks to sink until ctx is done or chunks is closed and
// returns the number of chunks the sink accepted. Sink errors are logged
// and the chunk is skipped.
func Pump(ctx context.Context, chunks <-chan model.AudioChunk, sink Sink, logger zerolog.Logger) int {
	sent := 0
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return sent
		case chunk, ok := <-chunks:
			if !ok {
				return sent
			}
			if err := sink.SendAudio(chunk); err != nil {
				failures++
				// first failure, then every 50th
				if failures%50 == 1 {
					logger.Warn().Err(err).Int("failures", failures).Msg("Audio sink rejected chunk")
				}
				continue
			}
			sent++
		}
	}
}
