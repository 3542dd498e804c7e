// Package wiretest sends raw requests to a running server and parses the
// bytes that come back, for use in tests.
package wiretest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/devwelkin/hermes-files/internal/headers"
)

type Response struct {
	StatusLine string
	StatusCode int
	Headers    *headers.Headers
	Body       []byte
}

// Header returns the named header or "".
func (r *Response) Header(name string) string {
	v, _ := r.Headers.Get(name)
	return v
}

// Parse splits a full response into status line, headers and body.
func Parse(data []byte) (*Response, error) {
	end := bytes.Index(data, []byte("\r\n\r\n"))
	if end == -1 {
		return nil, errors.New("no end of headers in response")
	}
	head, body := data[:end+2], data[end+4:]

	lineEnd := bytes.Index(head, []byte("\r\n"))
	statusLine := string(head[:lineEnd])
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 || parts[0] != "HTTP/1.1" {
		return nil, fmt.Errorf("bad status line %q", statusLine)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("bad status code in %q", statusLine)
	}

	h := headers.NewHeaders()
	rest := head[lineEnd+2:]
	for len(rest) > 0 {
		n, _ := h.Parse(rest)
		if n == 0 {
			break
		}
		rest = rest[n:]
	}

	return &Response{
		StatusLine: statusLine,
		StatusCode: code,
		Headers:    h,
		Body:       body,
	}, nil
}

// Send writes raw on a fresh loopback connection to addr, half-closes it,
// and parses everything the server sends back. It is safe to call from any
// goroutine.
func Send(addr net.Addr, raw string) (*Response, error) {
	port := addr.(*net.TCPAddr).Port
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, raw); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	return readResponse(conn)
}

func readResponse(conn net.Conn) (*Response, error) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	resp, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse response %q: %w", data, err)
	}
	return resp, nil
}

// Dial connects to the loopback port addr listens on.
func Dial(t testing.TB, addr net.Addr) net.Conn {
	t.Helper()
	port := addr.(*net.TCPAddr).Port
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

// Do is Send for the test goroutine; any failure stops the test.
func Do(t testing.TB, addr net.Addr, raw string) *Response {
	t.Helper()
	resp, err := Send(addr, raw)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// Read half-closes conn and parses everything the server sends back.
func Read(t testing.TB, conn net.Conn) *Response {
	t.Helper()
	resp, err := readResponse(conn)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}
