package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"github.com/seven320/pose-net-correction/internal/model"
	"github.com/seven320/pose-net-correction/pkg/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReplaySource reads recorded frames, one JSON object per line. Lines that
// do not decode are logged and skipped.
type ReplaySource struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
	line    int
	skipped atomic.Int64
}

func NewReplaySource(path string) *ReplaySource {
	return &ReplaySource{path: path}
}

func (s *ReplaySource) Open(context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: open recording %s: %v", ErrCameraUnavailable, s.path, err)
	}
	s.file = f
	s.line = 0
	s.scanner = bufio.NewScanner(f)
	s.scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return nil
}

func (s *ReplaySource) Next(ctx context.Context) (model.Frame, error) {
	if s.scanner == nil {
		return model.Frame{}, ErrClosed
	}
	for {
		if err := ctx.Err(); err != nil {
			return model.Frame{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return model.Frame{}, fmt.Errorf("read recording: %w", err)
			}
			return model.Frame{}, io.EOF
		}

		s.line++
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var f model.Frame
		if err := json.Unmarshal(line, &f); err != nil {
			s.skipped.Add(1)
			log.Warn(log.Fields{"path": s.path, "line": s.line, "error": err.Error()}, "[source.ReplaySource] skipping undecodable frame")
			continue
		}
		return f, nil
	}
}

// Skipped reports how many recorded lines failed to decode.
func (s *ReplaySource) Skipped() int64 {
	return s.skipped.Load()
}

func (s *ReplaySource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.scanner = nil
	return err
}
