// request.go

package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/devwelkin/hermes-files/internal/headers"
)

// Custom errors
var (
	ErrInvalidRequestFormat = errors.New("invalid request line format")
	ErrUnsupportedHTTP      = errors.New("unsupported http version")
	ErrHeaderTooLarge       = errors.New("request header too large")
	ErrEmptyRequest         = errors.New("connection closed before request line")
)

// MaxHeaderBytes caps the request line plus header block.
const MaxHeaderBytes = 64 << 10

const (
	MethodGet  = "GET"
	MethodHead = "HEAD"
	MethodPost = "POST"
	MethodPut  = "PUT"
)

const (
	stateRequestLine = iota // 0
	stateHeaders            // 1
	stateDone               // 2
)

type Request struct {
	RequestLine RequestLine
	Headers     *headers.Headers
	// ContentLength is -1 when the header is absent or not a number.
	ContentLength int64
	Body          *Body
	state         int
}

type RequestLine struct {
	HTTPVersion   string
	RequestTarget string
	Method        string
}

// RequestFromReader parses the request line and headers from reader. Bytes
// read past the blank line are handed to the request Body, so the caller
// must not read from reader directly afterwards.
func RequestFromReader(reader io.Reader) (*Request, error) {
	req := &Request{
		state:         stateRequestLine,
		Headers:       headers.NewHeaders(),
		ContentLength: -1,
	}
	var accumulatedData []byte
	headerBytes := 0

	readBuf := make([]byte, 1024)

	for {
		n, err := reader.Read(readBuf)

		if n > 0 {
			accumulatedData = append(accumulatedData, readBuf[:n]...)
		}

		// keep parsing the buffer until it's empty
		for req.state != stateDone {
			consumed, pErr := req.parse(accumulatedData)
			if pErr != nil {
				return nil, pErr
			}
			if consumed == 0 {
				// not enough data in the buffer to parse a full line.
				break
			}
			accumulatedData = accumulatedData[consumed:]
			headerBytes += consumed
			if headerBytes > MaxHeaderBytes {
				return nil, ErrHeaderTooLarge
			}
		}

		if req.state == stateDone {
			break
		}

		// an unfinished block already past the cap can only grow
		if headerBytes+len(accumulatedData) > MaxHeaderBytes {
			return nil, ErrHeaderTooLarge
		}

		if err == io.EOF {
			// the client closed its side before the blank line
			if fErr := req.finish(accumulatedData); fErr != nil {
				return nil, fErr
			}
			accumulatedData = nil
			break
		}

		if err != nil {
			return nil, err
		}
	}

	req.ContentLength = contentLength(req.Headers)
	req.Body = newBody(accumulatedData, reader, req.ContentLength)

	return req, nil
}

// finish parses whatever is left when the stream ends mid-header.
func (r *Request) finish(rest []byte) error {
	switch r.state {
	case stateRequestLine:
		if len(rest) == 0 {
			return ErrEmptyRequest
		}
		reqLine, err := parseRequestLineText(string(bytes.TrimSuffix(rest, []byte("\r"))))
		if err != nil {
			return fmt.Errorf("failed to parse request line: %w", err)
		}
		r.RequestLine = *reqLine
	case stateHeaders:
		if len(rest) > 0 {
			r.Headers.ParseLine(rest)
		}
	}
	r.state = stateDone
	return nil
}

func parseRequestLine(data []byte) (*RequestLine, int, error) {
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		return nil, 0, nil
	}

	reqLine, err := parseRequestLineText(string(bytes.TrimSuffix(data[:idx], []byte("\r"))))
	if err != nil {
		return nil, 0, err
	}
	return reqLine, idx + 1, nil
}

func parseRequestLineText(line string) (*RequestLine, error) {
	parts := strings.Split(line, " ")
	// panic guard
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf(`%w: expected "METHOD TARGET [VERSION]", got %q`, ErrInvalidRequestFormat, line)
	}

	reqLine := &RequestLine{
		Method:        parts[0],
		RequestTarget: parts[1],
		HTTPVersion:   "1.0",
	}
	if len(parts) == 2 {
		return reqLine, nil
	}

	versionRaw := parts[2]
	http, httpv, ok := strings.Cut(versionRaw, "/")
	if !ok || http != "HTTP" || (httpv != "1.1" && httpv != "1.0") {
		return nil, fmt.Errorf("%w: expected 'HTTP/1.1', got '%s'", ErrUnsupportedHTTP, versionRaw)
	}
	reqLine.HTTPVersion = httpv

	return reqLine, nil
}

func (r *Request) parse(data []byte) (int, error) {
	switch r.state {
	case stateRequestLine:
		reqLine, consumed, err := parseRequestLine(data)
		if err != nil {
			return 0, fmt.Errorf("failed to parse request line: %w", err)
		}

		if consumed == 0 {
			return 0, nil
		}

		r.RequestLine = *reqLine
		r.state = stateHeaders
		return consumed, nil

	case stateHeaders:
		consumed, done := r.Headers.Parse(data)
		if done {
			r.state = stateDone
		}
		return consumed, nil

	case stateDone:
		return 0, nil

	default:
		return 0, errors.New("invalid parser state")
	}
}

// contentLength reads the Content-Length header. A missing, negative or
// non-numeric value yields -1.
func contentLength(h *headers.Headers) int64 {
	value, ok := h.Get("content-length")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Method returns the request method.
func (r *Request) Method() string {
	return r.RequestLine.Method
}

// Target returns the raw request target.
func (r *Request) Target() string {
	return r.RequestLine.RequestTarget
}

// ContentType returns the Content-Type header, or "" when absent.
func (r *Request) ContentType() string {
	v, _ := r.Headers.Get("content-type")
	return v
}
