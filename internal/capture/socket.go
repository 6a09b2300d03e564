package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

// maxEventLine bounds one NDJSON event from the recognizer.
const maxEventLine = 64 * 1024

// SocketSpeechBackend talks NDJSON to an external recognizer daemon over a
// Unix socket. Commands go out as {"cmd":"start",...} and {"cmd":"stop"};
// events come back one JSON object per line.
type SocketSpeechBackend struct {
	path   string
	logger *zap.Logger
	dialer net.Dialer

	mu      sync.Mutex
	conn    net.Conn
	closing chan struct{}
	done    chan struct{}
}

var _ SpeechBackend = (*SocketSpeechBackend)(nil)

// NewSocketSpeechBackend returns a backend for the socket at path.
func NewSocketSpeechBackend(path string, logger *zap.Logger) *SocketSpeechBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SocketSpeechBackend{path: path, logger: logger}
}

type startCommand struct {
	Cmd string `json:"cmd"`
	SpeechOptions
}

type stopCommand struct {
	Cmd string `json:"cmd"`
}

// Start connects, sends the start command and streams decoded events.
func (b *SocketSpeechBackend) Start(ctx context.Context, opts SpeechOptions) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return nil, errors.New("speech backend already started")
	}

	conn, err := b.dialer.DialContext(ctx, "unix", b.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionUnavailable, err)
	}
	if err := writeCommand(conn, startCommand{Cmd: "start", SpeechOptions: opts}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionUnavailable, err)
	}

	b.conn = conn
	b.closing = make(chan struct{})
	b.done = make(chan struct{})
	events := make(chan Event)
	go b.read(conn, events, b.closing, b.done)
	return events, nil
}

func (b *SocketSpeechBackend) read(conn net.Conn, out chan<- Event, closing <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxEventLine)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := DecodeEvent(line)
		if err != nil {
			b.logger.Warn("skipping speech event", zap.Error(err))
			continue
		}
		select {
		case out <- ev:
		case <-closing:
			return
		}
	}
	if err := sc.Err(); err != nil {
		select {
		case <-closing:
		default:
			b.logger.Debug("speech socket read ended", zap.Error(err))
		}
	}
}

// Stop asks the recognizer to finish. It keeps streaming until it sends
// end or the backend is closed.
func (b *SocketSpeechBackend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	return writeCommand(b.conn, stopCommand{Cmd: "stop"})
}

// Close drops the connection and waits for the reader to exit.
func (b *SocketSpeechBackend) Close() error {
	b.mu.Lock()
	conn, closing, done := b.conn, b.closing, b.done
	b.conn = nil
	b.mu.Unlock()

	if conn == nil {
		return nil
	}
	close(closing)
	err := conn.Close()
	<-done
	return err
}

func writeCommand(conn net.Conn, cmd any) error {
	b, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(b, '\n'))
	return err
}
