// Package stdio serves the dispatcher as newline-delimited JSON-RPC over a
// reader/writer pair, normally the process's stdin and stdout.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/sourcegraph/jsonrpc2"

	"intel-mcp/internal/logger"
	"intel-mcp/internal/mcp"
)

// maxLineBytes bounds a single inbound message.
const maxLineBytes = 4 << 20

// lineMethod tags the envelope a raw line travels in through the connection.
const lineMethod = "stdio/line"

var errLineTooLong = errors.New("stdio: message exceeds line limit")

// Serve handles requests from r and writes replies to w until ctx is done or
// r reaches EOF. Requests run concurrently; notifications get no reply.
func Serve(ctx context.Context, d *mcp.Dispatcher, r io.Reader, w io.Writer) error {
	log := logger.ForComponent("stdio")
	stream := newLineStream(r, w, log)
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(&handler{dispatcher: d, stream: stream, log: log}))
	log.Info("stdio transport ready", "tools", d.Registry().Len())

	select {
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	case <-conn.DisconnectNotify():
		return nil
	}
}

// handler answers each line with the dispatcher's own envelope so request
// ids round-trip byte for byte, exactly as over HTTP.
type handler struct {
	dispatcher *mcp.Dispatcher
	stream     *lineStream
	log        *slog.Logger
}

func (h *handler) Handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Method != lineMethod || req.Notif {
		h.log.Warn("unexpected envelope", "method", req.Method)
		return
	}
	line, ok := h.stream.take(req.ID.Num)
	if !ok {
		h.log.Warn("no pending line", "seq", req.ID.Num)
		return
	}
	resp := h.dispatcher.HandleRaw(ctx, line)
	if resp == nil {
		return
	}
	if err := h.stream.WriteObject(resp); err != nil {
		h.log.Warn("reply failed", "error", err)
	}
}

// lineStream is a jsonrpc2.ObjectStream framing one JSON object per line.
// Each inbound line is parked under a sequence number and handed to the
// connection as a small envelope carrying only that number; the handler
// decodes the original bytes itself. Oversized lines are answered here,
// since the connection would otherwise drop on a read error.
type lineStream struct {
	r   *bufio.Reader
	w   io.Writer
	rc  io.Closer
	wc  io.Closer
	mu  sync.Mutex
	log *slog.Logger

	pmu     sync.Mutex
	seq     uint64
	pending map[uint64][]byte
}

func newLineStream(r io.Reader, w io.Writer, log *slog.Logger) *lineStream {
	s := &lineStream{
		r:       bufio.NewReaderSize(r, 64*1024),
		w:       w,
		log:     log,
		pending: make(map[uint64][]byte),
	}
	if c, ok := r.(io.Closer); ok {
		s.rc = c
	}
	if c, ok := w.(io.Closer); ok && any(w) != any(r) {
		s.wc = c
	}
	return s
}

// WriteObject implements jsonrpc2.ObjectStream.
func (s *lineStream) WriteObject(obj interface{}) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(data, '\n'))
	return err
}

// ReadObject implements jsonrpc2.ObjectStream.
func (s *lineStream) ReadObject(v interface{}) error {
	for {
		line, err := s.readLine()
		if errors.Is(err, errLineTooLong) {
			s.reject(mcp.CodeInvalidRequest, "invalid request: message exceeds line limit")
			continue
		}
		if err != nil {
			return err
		}
		if len(line) == 0 {
			continue
		}
		envelope, err := json.Marshal(struct {
			JSONRPC string `json:"jsonrpc"`
			ID      uint64 `json:"id"`
			Method  string `json:"method"`
		}{mcp.JSONRPCVersion, s.park(line), lineMethod})
		if err != nil {
			return err
		}
		return json.Unmarshal(envelope, v)
	}
}

// Close implements jsonrpc2.ObjectStream.
func (s *lineStream) Close() error {
	var errs []error
	if s.rc != nil {
		errs = append(errs, s.rc.Close())
	}
	if s.wc != nil {
		errs = append(errs, s.wc.Close())
	}
	return errors.Join(errs...)
}

func (s *lineStream) park(line []byte) uint64 {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	s.seq++
	s.pending[s.seq] = line
	return s.seq
}

func (s *lineStream) take(seq uint64) ([]byte, bool) {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	line, ok := s.pending[seq]
	delete(s.pending, seq)
	return line, ok
}

// readLine returns the next line without its terminator. A line longer than
// maxLineBytes is consumed up to its newline and reported as errLineTooLong.
func (s *lineStream) readLine() ([]byte, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, isPrefix, err := s.r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && (len(buf) > 0 || tooLong) {
				break
			}
			return nil, err
		}
		if !tooLong {
			buf = append(buf, chunk...)
			if len(buf) > maxLineBytes {
				tooLong, buf = true, nil
			}
		}
		if !isPrefix {
			break
		}
	}
	if tooLong {
		return nil, errLineTooLong
	}
	return bytes.TrimSpace(buf), nil
}

func (s *lineStream) reject(code int, message string) {
	s.log.Warn("rejected inbound line", "code", code, "message", message)
	resp := mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: json.RawMessage("null"), Error: &mcp.Error{Code: code, Message: message}}
	if err := s.WriteObject(resp); err != nil {
		s.log.Warn("write rejection failed", "error", err)
	}
}
