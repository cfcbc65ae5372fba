package wsclient

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/coder/wsclient/internal/util"
)

// defaultReadLimit is the message size limit used when
// SessionOptions.ReadLimit is zero.
const defaultReadLimit = 32768

// maxPendingPings bounds the number of unanswered pings remembered for
// round trip measurement. The oldest is forgotten first.
const maxPendingPings = 16

// Handlers are the callbacks of a Session. Each is optional and is
// invoked synchronously from the goroutine running the read loop,
// except OnConnect which runs on the goroutine calling Connect and
// OnClose which runs on whichever goroutine ends the session.
type Handlers struct {
	OnConnect func(s *Session, resp *HandshakeResponse)
	OnText    func(s *Session, msg string)
	OnBinary  func(s *Session, msg []byte)
	// OnPing replaces the automatic pong reply when set.
	OnPing func(s *Session, payload []byte)
	OnPong func(s *Session, payload []byte)
	// OnClose is called exactly once with the error that ended the
	// session: a CloseError when the server closed it, nil when Close
	// was called.
	OnClose func(s *Session, err error)
}

// SessionOptions configure a Session.
type SessionOptions struct {
	Handlers Handlers

	// Header holds extra handshake headers, sent in order after the
	// required ones.
	Header Header

	// Subprotocols lists the WebSocket subprotocols to offer.
	Subprotocols []string

	// ReadLimit is the maximum size of a received message.
	// Zero means 32768 bytes, a negative value disables the limit.
	ReadLimit int64

	// StaticMaskKey masks every frame with one key generated when the
	// Session is created instead of a fresh key per frame.
	StaticMaskKey bool

	// SendLimiter, if set, is waited on before every message or ping
	// the application sends. Replies generated by the Session itself
	// are not limited.
	SendLimiter *rate.Limiter

	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

// Session is a client WebSocket connection and its lifecycle.
//
// Connect, Next and Run must be called from a single goroutine.
// Write, Ping, Pong and Close may be called from any goroutine; Close
// unblocks a read loop waiting on the transport.
type Session struct {
	t    Transport
	opts SessionOptions
	log  logrus.FieldLogger
	rand io.Reader

	mu          sync.Mutex
	state       State
	closeErr    error
	closeSent   bool
	resp        *HandshakeResponse
	subprotocol string

	readMu sync.Mutex
	br     *bufio.Reader
	asm    Assembler

	writeMu  sync.Mutex
	writeBuf []byte
	maskKey  [4]byte

	pingsMu sync.Mutex
	pings   *queue.Queue
	rtt     time.Duration
}

type pendingPing struct {
	payload string
	sent    time.Time
}

// NewSession returns a Session in StateDisconnected that will run over t.
func NewSession(t Transport, opts *SessionOptions) *Session {
	return newSession(t, opts, rand.Reader)
}

func newSession(t Transport, opts *SessionOptions, rand io.Reader) *Session {
	s := &Session{
		t:     t,
		rand:  rand,
		pings: queue.New(),
	}
	if opts != nil {
		s.opts = *opts
	}

	s.log = s.opts.Logger
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	s.log = s.log.WithField("component", "wsclient")

	switch {
	case s.opts.ReadLimit == 0:
		s.asm.Limit = defaultReadLimit
	case s.opts.ReadLimit > 0:
		s.asm.Limit = s.opts.ReadLimit
	}

	if s.opts.StaticMaskKey {
		_, err := io.ReadFull(s.rand, s.maskKey[:])
		if err != nil {
			panic(fmt.Sprintf("failed to generate mask key: %v", err))
		}
	}

	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Header returns the headers of the server's handshake response or nil
// before the handshake completed.
func (s *Session) Header() Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resp == nil {
		return nil
	}
	return s.resp.Header
}

// Subprotocol returns the negotiated subprotocol.
// An empty string means the default protocol.
func (s *Session) Subprotocol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subprotocol
}

// RTT returns the round trip time measured by the most recent ping
// that was answered, or zero.
func (s *Session) RTT() time.Duration {
	s.pingsMu.Lock()
	defer s.pingsMu.Unlock()
	return s.rtt
}

// Connect connects the transport to host:port and performs the opening
// handshake for path. secure only affects the Host header; the transport
// decides whether the stream is encrypted.
//
// On failure the session is closed and the error is a *TransportError
// when the transport could not connect and a *HandshakeError otherwise.
func (s *Session) Connect(ctx context.Context, host string, port int, path string, secure bool) (_ *HandshakeResponse, err error) {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil, fmt.Errorf("cannot connect in state %v: %w", s.state, ErrInvalidState)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.release(err)
		}
	}()

	req, err := newHandshakeRequest(host, port, path, secure, s.rand)
	if err != nil {
		return nil, &HandshakeError{Reason: "failed to build request", Err: err}
	}
	for _, f := range s.opts.Header {
		err = req.AddHeader(f.Name, f.Value)
		if err != nil {
			return nil, &HandshakeError{Reason: "failed to build request", Err: err}
		}
	}
	if len(s.opts.Subprotocols) > 0 {
		err = req.AddHeader("Sec-WebSocket-Protocol", strings.Join(s.opts.Subprotocols, ","))
		if err != nil {
			return nil, &HandshakeError{Reason: "failed to build request", Err: err}
		}
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	err = s.t.Connect(ctx, host, port)
	if err != nil {
		s.log.Errorf("[Connect]: host = %v, err = %v", addr, err)
		return nil, &TransportError{Op: "connect", Err: err}
	}
	s.log.Debugf("[Connect]: transport connected to %v", addr)

	err = s.send(req.Bytes())
	if err != nil {
		return nil, &HandshakeError{Reason: "failed to send request", Err: err}
	}

	s.br = bufio.NewReader(util.ReaderFunc(s.receive))
	resp, err := ReadHandshakeResponse(s.br)
	if err != nil {
		return nil, err
	}
	err = req.Verify(resp)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.state = StateOpen
	s.resp = resp
	s.subprotocol = resp.Header.Get("Sec-WebSocket-Protocol")
	s.mu.Unlock()

	s.log.Debugf("[Connect]: handshake complete, path = %v", req.Path)
	if s.opts.Handlers.OnConnect != nil {
		s.opts.Handlers.OnConnect(s, resp)
	}
	return resp, nil
}

// Run reads and dispatches messages until the session ends. It returns
// the CloseError sent by the server, ErrClosed if Close was called, or
// the error that aborted the connection. Cancelling ctx stops Run
// before the next message is read without closing the session.
func (s *Session) Run(ctx context.Context) error {
	for {
		err := s.Next(ctx)
		if err != nil {
			return err
		}
	}
}

// Next reads one message, together with any control frames that precede
// it, and dispatches it to the handlers. A close frame from the server
// is answered, ends the session and is returned as a CloseError.
func (s *Session) Next(ctx context.Context) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	s.readMu.Lock()
	defer s.readMu.Unlock()

	switch st := s.State(); st {
	case StateOpen:
	case StateClosed:
		return ErrClosed
	default:
		return fmt.Errorf("cannot read in state %v: %w", st, ErrNotOpen)
	}

	op, msg, err := s.asm.ReadMessage(s.br, s.handleControl)
	if err != nil {
		return s.readFailed(err)
	}

	switch op {
	case OpText:
		if s.opts.Handlers.OnText != nil {
			s.opts.Handlers.OnText(s, string(msg))
		}
	case OpBinary:
		if s.opts.Handlers.OnBinary != nil {
			s.opts.Handlers.OnBinary(s, msg)
		}
	}
	return nil
}

func (s *Session) handleControl(f Frame) error {
	switch f.Opcode {
	case OpPing:
		if s.opts.Handlers.OnPing != nil {
			s.opts.Handlers.OnPing(s, f.Payload)
			return nil
		}
		return s.writeFrame(OpPong, f.Payload)
	case OpPong:
		s.matchPong(f.Payload)
		if s.opts.Handlers.OnPong != nil {
			s.opts.Handlers.OnPong(s, f.Payload)
		}
		return nil
	}

	ce, err := ParseClosePayload(f.Payload)
	if err != nil {
		return err
	}
	return ce
}

func (s *Session) readFailed(err error) error {
	defer s.asm.Reset()

	if s.State() == StateClosed {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closeErr != nil {
			return s.closeErr
		}
		return ErrClosed
	}

	var ce CloseError
	if errors.As(err, &ce) {
		s.log.Debugf("[Next]: received close frame: %v", ce)
		echo := ce.Code
		if echo == StatusNoStatusRcvd {
			echo = 0
		}
		werr := s.writeClose(echo, "")
		if werr != nil {
			s.log.Warnf("[Next]: failed to reply to close frame: %v", werr)
		}
		s.release(ce)
		return ce
	}

	var werr error
	switch {
	case errors.Is(err, ErrProtocolViolation):
		werr = s.writeClose(StatusProtocolError, "")
	case errors.Is(err, ErrMessageTooBig):
		werr = s.writeClose(StatusMessageTooBig, "")
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		err = &TransportError{Op: "receive", Err: err}
	}
	if werr != nil {
		s.log.Warnf("[Next]: failed to send close frame: %v", werr)
	}
	s.release(err)
	return err
}

// Write sends a text or binary message in a single frame.
func (s *Session) Write(ctx context.Context, typ MessageType, p []byte) error {
	if typ != MessageText && typ != MessageBinary {
		return fmt.Errorf("cannot write message of type %v", typ)
	}
	err := s.wait(ctx)
	if err != nil {
		return err
	}
	err = s.writeFrame(Opcode(typ), p)
	if err != nil {
		return fmt.Errorf("failed to write msg: %w", err)
	}
	return nil
}

// Ping sends a ping with payload p. The pong that answers it updates RTT.
func (s *Session) Ping(ctx context.Context, p []byte) error {
	err := s.control(ctx, OpPing, p)
	if err != nil {
		return err
	}

	s.pingsMu.Lock()
	defer s.pingsMu.Unlock()
	if s.pings.Length() >= maxPendingPings {
		s.pings.Remove()
	}
	s.pings.Add(pendingPing{payload: string(p), sent: time.Now()})
	return nil
}

// Pong sends an unsolicited pong with payload p.
func (s *Session) Pong(ctx context.Context, p []byte) error {
	return s.control(ctx, OpPong, p)
}

func (s *Session) control(ctx context.Context, op Opcode, p []byte) error {
	if len(p) > maxControlPayload {
		return fmt.Errorf("%v payload of length %d exceeds %d bytes", op, len(p), maxControlPayload)
	}
	err := s.wait(ctx)
	if err != nil {
		return err
	}
	err = s.writeFrame(op, p)
	if err != nil {
		return fmt.Errorf("failed to write %v frame: %w", op, err)
	}
	return nil
}

func (s *Session) matchPong(p []byte) {
	s.pingsMu.Lock()
	defer s.pingsMu.Unlock()

	match := -1
	for i := 0; i < s.pings.Length(); i++ {
		if s.pings.Get(i).(pendingPing).payload == string(p) {
			match = i
			break
		}
	}
	if match < 0 {
		return
	}

	var pp pendingPing
	for i := 0; i <= match; i++ {
		pp = s.pings.Remove().(pendingPing)
	}
	s.rtt = time.Since(pp.sent)
	s.log.Debugf("[Pong]: rtt = %v", s.rtt)
}

// Close sends a close frame with code and reason, releases the session's
// buffers and closes the transport. A code of 0 or StatusNoStatusRcvd
// sends a close frame without payload.
//
// Close on a closed session does nothing and returns nil.
func (s *Session) Close(code StatusCode, reason string) (err error) {
	if s.State() == StateClosed {
		return nil
	}

	var cause error
	if s.State() == StateOpen {
		err = s.writeClose(code, reason)
		var te *TransportError
		if errors.As(err, &te) {
			cause = err
		}
	}
	s.release(cause)

	if s.readMu.TryLock() {
		s.asm.Reset()
		s.readMu.Unlock()
	}

	if err != nil {
		return fmt.Errorf("failed to close WebSocket: %w", err)
	}
	return nil
}

func (s *Session) writeClose(code StatusCode, reason string) error {
	var p []byte
	if code != 0 && code != StatusNoStatusRcvd {
		var err error
		p, err = CloseError{Code: code, Reason: reason}.bytes()
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.closeSent {
		s.mu.Unlock()
		return nil
	}
	s.closeSent = true
	s.mu.Unlock()

	// The caller releases the session with the cause that ended it.
	return s.writeFrameLocked(OpClose, p)
}

func (s *Session) wait(ctx context.Context) error {
	if s.opts.SendLimiter == nil {
		return nil
	}
	return s.opts.SendLimiter.Wait(ctx)
}

// writeFrame masks and sends a single frame. A transport failure ends
// the session.
func (s *Session) writeFrame(op Opcode, p []byte) error {
	err := s.writeFrameLocked(op, p)
	var te *TransportError
	if errors.As(err, &te) {
		s.release(err)
	}
	return err
}

func (s *Session) writeFrameLocked(op Opcode, p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if st := s.State(); st != StateOpen {
		return fmt.Errorf("cannot write %v frame in state %v: %w", op, st, ErrNotOpen)
	}

	key := s.maskKey
	if !s.opts.StaticMaskKey {
		_, err := io.ReadFull(s.rand, key[:])
		if err != nil {
			return fmt.Errorf("failed to generate masking key: %w", err)
		}
	}

	s.writeBuf = AppendFrame(s.writeBuf[:0], op, key, p)
	return s.send(s.writeBuf)
}

func (s *Session) send(p []byte) error {
	n, err := s.t.Send(p)
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	if n < len(p) {
		return &TransportError{Op: "send", Err: ErrShortWrite}
	}
	return nil
}

func (s *Session) receive(p []byte) (int, error) {
	n, err := s.t.Receive(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = &TransportError{Op: "receive", Err: err}
	}
	return n, err
}

// release moves the session to StateClosed, closes the transport and
// notifies OnClose. Only the first call has any effect.
func (s *Session) release(cause error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.closeErr = cause
	s.mu.Unlock()

	err := s.t.Close()
	if err != nil {
		s.log.Warnf("[Close]: failed to close transport: %v", err)
	}

	switch {
	case cause == nil, CloseStatus(cause) == StatusNormalClosure:
		s.log.Debugf("[Close]: session closed: %v", cause)
	default:
		s.log.Warnf("[Close]: session closed: %v", cause)
	}

	if s.opts.Handlers.OnClose != nil {
		s.opts.Handlers.OnClose(s, cause)
	}
}
