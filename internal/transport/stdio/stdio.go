// Package stdio implements the trusted local transport: line-delimited
// JSON-RPC on standard input/output, a single peer, no authentication.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/taskmcp/mcp-task-server/internal/rpc"
)

// Server reads one JSON-RPC message per line from in and writes one response
// line per request to out. It blocks the calling goroutine until ctx is
// canceled or in reaches EOF.
type Server struct {
	dispatcher *rpc.Dispatcher
	in         io.Reader
	out        io.Writer
}

// New builds a stdio Server.
func New(dispatcher *rpc.Dispatcher, in io.Reader, out io.Writer) *Server {
	return &Server{dispatcher: dispatcher, in: in, out: out}
}

// Run blocks the calling goroutine serving requests until ctx is canceled or
// the input stream closes.
func (s *Server) Run(ctx context.Context) error {
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			errs <- err
			return
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			resp := s.dispatcher.Dispatch(ctx, []byte(line))
			if resp == nil {
				continue
			}
			if _, err := fmt.Fprintf(s.out, "%s\n", resp); err != nil {
				return err
			}
		}
	}
}
