package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/tutorbridge/internal/bus"
	"github.com/normanking/tutorbridge/internal/model"
)

func TestMeterSmoothingAndDecay(t *testing.T) {
	var m Meter

	m.Update([]float32{0.5, -1.0, 0.25})
	lv := m.Levels()
	assert.InDelta(t, 0.3, lv.Level, 1e-9)
	assert.InDelta(t, 1.0, lv.Peak, 1e-9)

	m.Update([]float32{0.1})
	lv = m.Levels()
	assert.InDelta(t, 0.3*0.7+0.1*0.3, lv.Level, 1e-9)
	assert.InDelta(t, 0.995, lv.Peak, 1e-9)

	m.Reset()
	assert.Equal(t, Levels{}, m.Levels())
}

func TestChunkSize(t *testing.T) {
	assert.Equal(t, 1600, ChunkSize(16000, 100*time.Millisecond))
	assert.Equal(t, 4410, ChunkSize(44100, 100*time.Millisecond))
	assert.Equal(t, 4800, ChunkSize(48000, 100*time.Millisecond))
	assert.Equal(t, 2205, ChunkSize(22050, 100*time.Millisecond))
	assert.Equal(t, 1, ChunkSize(5, 100*time.Millisecond))
}

func TestChunkerIsExhaustiveAndOrdered(t *testing.T) {
	out := make(chan model.AudioChunk, 100)
	c := NewChunker(1000, 100*time.Millisecond, out)
	require.Equal(t, 100, c.Size())

	var next float32
	// uneven writes straddle chunk boundaries
	for _, n := range []int{7, 93, 150, 1, 49, 300, 37} {
		buf := make([]float32, n)
		for i := range buf {
			buf[i] = next
			next++
		}
		c.Write(buf)
	}
	close(out)

	var expect float32
	chunks := 0
	for chunk := range out {
		require.Len(t, chunk.Samples, 100)
		assert.Equal(t, 1000, chunk.SampleRate)
		for _, s := range chunk.Samples {
			assert.Equal(t, expect, s)
			expect++
		}
		chunks++
	}
	assert.Equal(t, 6, chunks)
	assert.Equal(t, 37, c.Pending())
	assert.Equal(t, 0, c.Dropped())
}

func TestChunkerDropsWhenFull(t *testing.T) {
	out := make(chan model.AudioChunk, 1)
	c := NewChunker(100, 100*time.Millisecond, out)

	start := time.Now()
	c.Write(make([]float32, 50))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 4, c.Dropped())
	assert.Len(t, out, 1)
}

func TestPCMConversion(t *testing.T) {
	assert.Equal(t, []float32{0, 0.5, -1}, PCM16ToFloat([]int16{0, 16384, -32768}))
	assert.Equal(t, []int16{1, -2}, DecodeS16LE([]byte{0x01, 0x00, 0xfe, 0xff, 0x07}))
	assert.Equal(t, []float32{0.5, 0}, Downmix([]float32{1, 0, 0.5, -0.5, 9}, 2))
	mono := []float32{1, 2}
	assert.Equal(t, mono, Downmix(mono, 1))
}

type fakeStream struct {
	format Format
	closed bool
	err    error
}

func (s *fakeStream) Format() Format { return s.format }
func (s *fakeStream) Close() error {
	s.closed = true
	return s.err
}

type fakeSource struct {
	format  Format
	openErr error
	emit    FrameFunc
	stream  *fakeStream
}

func (f *fakeSource) Open(ctx context.Context, cfg Config, onFrames FrameFunc) (Stream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.emit = onFrames
	f.stream = &fakeStream{format: f.format}
	return f.stream, nil
}

func TestCaptureChunksAndMeters(t *testing.T) {
	src := &fakeSource{format: Format{SampleRate: 1000, Channels: 2}}
	eb := bus.NewEventBus()
	var events []bus.EventType
	eb.SubscribeMultiple([]bus.EventType{bus.EventTypeCaptureStarted, bus.EventTypeCaptureStopped}, func(e bus.Event) {
		events = append(events, e.Type)
	})

	c := NewCapture(Config{ChunkDuration: 100 * time.Millisecond, QueueSize: 4}, src, eb, zerolog.Nop())
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateCapturing, c.State())
	assert.ErrorIs(t, c.Start(context.Background()), ErrCaptureActive)

	frames := make([]float32, 2*150)
	for i := range frames {
		frames[i] = 0.5
	}
	src.emit(frames, src.format)

	select {
	case chunk := <-c.Chunks():
		assert.Len(t, chunk.Samples, 100)
		assert.Equal(t, 1000, chunk.SampleRate)
		assert.InDelta(t, 0.5, chunk.Samples[0], 1e-6)
	default:
		t.Fatal("expected one chunk")
	}
	assert.Greater(t, c.Levels().Peak, 0.0)

	// Out-of-phase stereo averages to silence but still registers on the meter.
	stereo := make([]float32, 2*10)
	for i := range stereo {
		stereo[i] = 0.8
		if i%2 == 1 {
			stereo[i] = -0.8
		}
	}
	src.emit(stereo, src.format)
	assert.InDelta(t, 0.8, c.Levels().Peak, 1e-6)
	assert.Greater(t, c.Levels().Level, 0.15)

	require.NoError(t, c.Stop())
	assert.True(t, src.stream.closed)
	assert.Equal(t, Levels{}, c.Levels())
	assert.Equal(t, StateIdle, c.State())

	require.NoError(t, c.Stop())
	assert.Equal(t, []bus.EventType{bus.EventTypeCaptureStarted, bus.EventTypeCaptureStopped}, events)
}

func TestCaptureStartErrors(t *testing.T) {
	c := NewCapture(DefaultConfig(), &fakeSource{openErr: errors.New("no device")}, nil, zerolog.Nop())
	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no device")
	assert.Equal(t, StateIdle, c.State())

	src := &fakeSource{format: Format{}}
	c = NewCapture(DefaultConfig(), src, nil, zerolog.Nop())
	assert.ErrorIs(t, c.Start(context.Background()), ErrInvalidFormat)
	assert.True(t, src.stream.closed)
}

type recordingSink struct {
	mu     sync.Mutex
	chunks []model.AudioChunk
	fail   bool
}

func (s *recordingSink) SendAudio(chunk model.AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("not connected")
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func TestPumpForwardsUntilClosed(t *testing.T) {
	chunks := make(chan model.AudioChunk, 3)
	chunks <- model.AudioChunk{SampleRate: 1}
	chunks <- model.AudioChunk{SampleRate: 2}
	close(chunks)

	sink := &recordingSink{}
	n := Pump(context.Background(), chunks, sink, zerolog.Nop())
	assert.Equal(t, 2, n)
	require.Len(t, sink.chunks, 2)
	assert.Equal(t, 2, sink.chunks[1].SampleRate)
}

func TestPumpSkipsRejectedAndStopsOnCancel(t *testing.T) {
	chunks := make(chan model.AudioChunk, 1)
	chunks <- model.AudioChunk{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan int)
	go func() { done <- Pump(ctx, chunks, &recordingSink{fail: true}, zerolog.Nop()) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
}

func writeScript(t *testing.T, name, contents string) string {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o755))
	return path
}

func TestFFmpegSourceStreamsFrames(t *testing.T) {
	// two s16le samples (0x4000 = 0.5, 0xc000 = -0.5) then stay alive
	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf '\\x00\\x40\\x00\\xc0'\nexec sleep 5\n")

	got := make(chan []float32, 4)
	src := NewFFmpegSource(zerolog.Nop())
	stream, err := src.Open(context.Background(), Config{Command: script, SampleRate: 8000, Channels: 1},
		func(s []float32, f Format) {
			assert.Equal(t, 8000, f.SampleRate)
			got <- s
		})
	require.NoError(t, err)

	select {
	case s := <-got:
		assert.Equal(t, []float32{0.5, -0.5}, s)
	case <-time.After(2 * time.Second):
		t.Fatal("no frames from source")
	}
	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
}

func TestFFmpegSourceEarlyExit(t *testing.T) {
	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")

	_, err := NewFFmpegSource(zerolog.Nop()).Open(context.Background(), Config{Command: script}, func([]float32, Format) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited before capture started")
	assert.Contains(t, err.Error(), "boom")
}

func TestFFmpegArgs(t *testing.T) {
	args := NewFFmpegSource(zerolog.Nop()).Args(DefaultConfig())
	assert.Equal(t, []string{
		"-nostdin", "-hide_banner", "-loglevel", "warning",
		"-f", "pulse", "-i", "default",
		"-ac", "1", "-ar", "16000",
		"-f", "s16le", "-",
	}, args)
}
