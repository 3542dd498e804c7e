package server

import (
	"io"
	"log"
	"net"
	"runtime/debug"
	"time"

	"github.com/devwelkin/hermes-files/internal/request"
	"github.com/devwelkin/hermes-files/internal/response"
)

type connState int

const (
	stateAccepted connState = iota
	stateParsingRequest
	stateDispatching
	stateWritingResponse
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateAccepted:
		return "accepted"
	case stateParsingRequest:
		return "parsing"
	case stateDispatching:
		return "dispatching"
	case stateWritingResponse:
		return "writing"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// connection carries one request/response cycle over a socket it owns.
type connection struct {
	conn  net.Conn
	state connState
}

func (c *connection) serve(handler Handler) {
	w := response.NewWriter(c.conn)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic serving %s while %s: %v\n%s", c.conn.RemoteAddr(), c.state, r, debug.Stack())
			if !w.Started() {
				writeErrorResponse(w, &HandlerError{
					StatusCode: response.StatusInternalServerError,
					Message:    "Internal Server Error",
					OmitBody:   true,
				})
			}
		}
	}()

	// 1. parse the request
	c.state = stateParsingRequest
	req, err := request.RequestFromReader(c.conn)
	if err != nil {
		log.Printf("error parsing request from %s: %v", c.conn.RemoteAddr(), err)
		c.state = stateWritingResponse
		writeErrorResponse(w, &HandlerError{
			StatusCode: response.StatusBadRequest,
			Message:    "Bad Request: " + err.Error(),
		})
		return
	}

	// 2. call the handler; it writes the whole response on success
	c.state = stateDispatching
	handlerErr := handler(w, req)
	c.state = stateWritingResponse

	if handlerErr == nil {
		if !w.Started() {
			log.Printf("%s %s: handler wrote no response", req.Method(), req.Target())
			writeErrorResponse(w, &HandlerError{
				StatusCode: response.StatusInternalServerError,
				Message:    "Internal Server Error",
				OmitBody:   true,
			})
		}
		return
	}

	if handlerErr.Err != nil {
		log.Printf("%s %s: %v", req.Method(), req.Target(), handlerErr)
	}

	// 3. the head is immutable once flushed; all we can do is drop the conn
	if w.Started() {
		log.Printf("%s %s: failed after response head was sent", req.Method(), req.Target())
		return
	}
	writeErrorResponse(w, handlerErr)
}

// Closing a socket with unread input makes the kernel send RST, which can
// destroy a response the client has not read yet. Half-close first and
// discard a bounded amount of leftover input.
const (
	lingerBytes   = 256 << 10
	lingerTimeout = 500 * time.Millisecond
)

func (c *connection) close() {
	if c.state == stateClosed {
		return
	}
	c.state = stateClosed
	if tc, ok := c.conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err == nil {
			tc.SetReadDeadline(time.Now().Add(lingerTimeout))
			io.Copy(io.Discard, io.LimitReader(tc, lingerBytes))
		}
	}
	if err := c.conn.Close(); err != nil {
		log.Printf("error closing connection: %v", err)
	}
}
