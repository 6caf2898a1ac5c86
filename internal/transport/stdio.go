package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dj707chen/postgres-mcp-server/internal/mcp"
)

// Stdio serves line-delimited JSON-RPC: one request per input line, one
// response per output line. Requests run concurrently; writes are serialized.
type Stdio struct {
	dispatcher *mcp.Dispatcher
	in         io.Reader
	out        io.Writer
	logger     *slog.Logger

	mu sync.Mutex // guards out
	wg sync.WaitGroup
}

func NewStdio(d *mcp.Dispatcher, in io.Reader, out io.Writer, logger *slog.Logger) *Stdio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stdio{dispatcher: d, in: in, out: out, logger: logger}
}

// Serve reads until EOF or until ctx is cancelled, then waits for in-flight
// requests to finish writing. Cancellation returns even while a read is
// still blocked.
func (s *Stdio) Serve(ctx context.Context) error {
	defer s.wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go s.readLines(ctx, lines, readErr)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				switch {
				case errors.Is(err, io.EOF):
					return nil
				case ctx.Err() != nil:
					return ctx.Err()
				}
				return fmt.Errorf("failed to read input: %w", err)
			}
			s.wg.Add(1)
			go s.handle(ctx, []byte(line))
		}
	}
}

// readLines sends each non-blank input line on lines, then the terminating
// read error on errc and closes lines.
func (s *Stdio) readLines(ctx context.Context, lines chan<- string, errc chan<- error) {
	defer close(lines)

	reader := bufio.NewReader(s.in)
	for {
		line, err := reader.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			select {
			case lines <- trimmed:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err != nil {
			errc <- err
			return
		}
	}
}

func (s *Stdio) handle(ctx context.Context, data []byte) {
	defer s.wg.Done()
	logger := s.logger.With("request_id", uuid.NewString())

	var resp *mcp.Response
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic while handling request", "panic", r)
				resp = &mcp.Response{
					JSONRPC: "2.0",
					Error:   &mcp.Error{Code: mcp.InternalError, Message: fmt.Sprintf("internal error: %v", r)},
				}
			}
		}()
		resp = s.dispatcher.HandleMessage(ctx, data)
	}()

	if resp == nil {
		return
	}
	if err := s.write(resp); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}

func (s *Stdio) write(resp *mcp.Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.out.Write(append(b, '\n'))
	return err
}
