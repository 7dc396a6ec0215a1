package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	ffmpegStartupGrace = 250 * time.Millisecond
	ffmpegStopGrace    = 1200 * time.Millisecond
	ffmpegReadSize     = 4096
)

// FFmpegSource captures the microphone through an ffmpeg subprocess that
// writes s16le PCM to stdout.
type FFmpegSource struct {
	logger zerolog.Logger
}

// NewFFmpegSource creates an ffmpeg-backed source.
func NewFFmpegSource(logger zerolog.Logger) *FFmpegSource {
	return &FFmpegSource{logger: logger.With().Str("component", "ffmpeg-source").Logger()}
}

// Args returns the ffmpeg arguments for cfg.
func (s *FFmpegSource) Args(cfg Config) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Open starts ffmpeg and streams decoded frames to onFrames.
func (s *FFmpegSource) Open(ctx context.Context, cfg Config, onFrames FrameFunc) (Stream, error) {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = def.Channels
	}
	if cfg.Command == "" {
		cfg.Command = def.Command
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = def.InputFormat
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = def.InputDevice
	}

	cmd := exec.CommandContext(ctx, cfg.Command, s.Args(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(ffmpegStartupGrace):
	}

	st := &ffmpegStream{
		format:  Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
		readEnd: make(chan struct{}),
		logger:  s.logger,
	}
	go st.readLoop(onFrames)
	return st, nil
}

type ffmpegStream struct {
	format  Format
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error
	readEnd chan struct{}
	logger  zerolog.Logger

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegStream) Format() Format { return s.format }

func (s *ffmpegStream) readLoop(onFrames FrameFunc) {
	defer close(s.readEnd)

	buf := make([]byte, ffmpegReadSize)
	var carry []byte
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			// only whole interleaved frames are delivered
			whole := len(data) - len(data)%(2*s.format.Channels)
			if whole > 0 {
				onFrames(PCM16ToFloat(DecodeS16LE(data[:whole])), s.format)
			}
			carry = append([]byte(nil), data[whole:]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Warn().Err(err).Msg("ffmpeg read failed")
			}
			return
		}
	}
}

// Close interrupts ffmpeg, escalating to kill after a grace period, and
// waits for the reader to finish.
func (s *ffmpegStream) Close() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeExit(err)
			}
		case <-time.After(ffmpegStopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeExit(err)
			}
		}

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		<-s.readEnd

		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, bytes.TrimSpace(s.stderr.Bytes()))
		}
	})
	return s.stopErr
}

// normalizeExit treats a non-zero exit after a stop signal as a clean stop.
func normalizeExit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
