package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/devwelkin/hermes-files/internal/request"
	"github.com/devwelkin/hermes-files/internal/response"
)

// DefaultWorkers is the pool size used when Config.Workers is not positive.
const DefaultWorkers = 10

// HandlerError is a structured error for http handlers
type HandlerError struct {
	StatusCode response.StatusCode
	Message    string
	// OmitBody sends the error head with Content-Length 0.
	OmitBody bool
	// Err is the underlying cause, logged but never sent to the client.
	Err error
}

func (e *HandlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Handler is the function signature for handling requests. A handler either
// writes a complete response to w and returns nil, or returns a
// HandlerError. The error is sent as the response only if w is untouched;
// otherwise the connection is dropped.
type Handler func(w *response.Writer, req *request.Request) *HandlerError

type Config struct {
	// Port 0 picks an ephemeral port, see Server.Addr.
	Port    int
	Workers int
}

// Server holds the state for our http server
type Server struct {
	listener net.Listener
	handler  Handler // the user-provided handler
	closed   atomic.Bool
	conns    chan net.Conn
	workers  sync.WaitGroup
	done     chan struct{}
}

func Serve(cfg Config, handler Handler) (*Server, error) {
	addr := fmt.Sprintf(":%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	s := &Server{
		listener: listener,
		handler:  handler, // store the handler
		conns:    make(chan net.Conn),
		done:     make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		s.workers.Add(1)
		go s.worker()
	}
	go s.listen()

	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting connections and waits for in-flight ones to finish.
// Nothing is cancelled mid-request.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.listener.Close()
	<-s.done
	s.workers.Wait()
	return err
}

// listen is the main accept loop. When every worker is busy the send on
// s.conns blocks and further clients wait in the kernel backlog.
func (s *Server) listen() {
	defer close(s.done)
	defer close(s.conns)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				log.Println("listener closed, server shutting down.")
				return
			}
			log.Printf("error accepting connection: %v", err)
			continue
		}
		s.conns <- conn
	}
}

func (s *Server) worker() {
	defer s.workers.Done()
	for conn := range s.conns {
		s.handle(conn)
	}
}

// writeErrorResponse is our dry helper for sending error pages
func writeErrorResponse(w *response.Writer, handlerErr *HandlerError) {
	if err := w.SendError(handlerErr.StatusCode, handlerErr.Message, !handlerErr.OmitBody); err != nil {
		log.Printf("error writing %d response: %v", handlerErr.StatusCode, err)
	}
}

func (s *Server) handle(conn net.Conn) {
	c := &connection{conn: conn, state: stateAccepted}
	defer c.close()
	c.serve(s.handler)
}
