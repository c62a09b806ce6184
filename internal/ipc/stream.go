package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

const maxLineSize = 1 << 20

// Stream is an Endpoint that exchanges newline-delimited JSON messages over
// a reader/writer pair, such as a child process's stdin and stdout.
type Stream struct {
	w      io.Writer
	r      io.Reader
	log    zerolog.Logger
	in     chan Message
	wmu    sync.Mutex
	once   sync.Once
	closed chan struct{}
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithStreamLogger sets the logger used for malformed inbound lines.
func WithStreamLogger(l zerolog.Logger) StreamOption {
	return func(s *Stream) {
		s.log = l
	}
}

// NewStream starts reading messages from r and returns the endpoint.
func NewStream(r io.Reader, w io.Writer, opts ...StreamOption) *Stream {
	s := &Stream{
		w:      w,
		r:      r,
		log:    zerolog.Nop(),
		in:     make(chan Message, DefaultPipeBuffer),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.readLoop()
	return s
}

func (s *Stream) readLoop() {
	defer close(s.in)
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.log.Warn().Err(err).Msg("skipping malformed message")
			continue
		}
		if err := msg.Validate(); err != nil {
			s.log.Warn().Err(err).Str("message", msg.String()).Msg("skipping unknown message")
			continue
		}
		select {
		case s.in <- msg:
		case <-s.closed:
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.log.Warn().Err(err).Msg("stream read failed")
	}
}

// Send writes msg as a single JSON line.
func (s *Stream) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err = s.w.Write(data)
	return err
}

// Receive implements Endpoint.
func (s *Stream) Receive() <-chan Message {
	return s.in
}

// Close stops the endpoint and closes the underlying reader and writer when
// they support it.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		if c, ok := s.w.(io.Closer); ok {
			err = c.Close()
		}
		if c, ok := s.r.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}
