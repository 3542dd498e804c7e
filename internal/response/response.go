package response

import (
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"time"

	"github.com/devwelkin/hermes-files/internal/headers"
)

type StatusCode int

const (
	StatusOK                   StatusCode = 200
	StatusCreated              StatusCode = 201
	StatusBadRequest           StatusCode = 400
	StatusNotFound             StatusCode = 404
	StatusMethodNotAllowed     StatusCode = 405
	StatusUnsupportedMediaType StatusCode = 415
	StatusInternalServerError  StatusCode = 500
)

var reasonPhrases = map[StatusCode]string{
	StatusOK:                   "OK",
	StatusCreated:              "Created",
	StatusBadRequest:           "Bad Request",
	StatusNotFound:             "Not Found",
	StatusMethodNotAllowed:     "Method Not Allowed",
	StatusUnsupportedMediaType: "Unsupported Media Type",
	StatusInternalServerError:  "Internal Server Error",
}

// StatusText returns the reason phrase for code, or "" if unknown.
func StatusText(code StatusCode) string {
	return reasonPhrases[code]
}

// TimeFormat is the HTTP date layout used for Last-Modified.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// FormatTime renders t as an HTTP date.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

var (
	ErrWrongState = errors.New("response written out of order")
	ErrBodyLength = errors.New("body length does not match Content-Length")
)

type writerState int

const (
	stateStatus  writerState = iota // can write status
	stateHeaders                    // can write headers
	stateBody                       // can write body
)

// Writer is a stateful writer for constructing an http response.
type Writer struct {
	w       io.Writer   // connection
	state   writerState // state machine
	status  StatusCode
	written int64 // body bytes
}

// NewWriter creates a new response Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:     w,
		state: stateStatus,
	}
}

// Started reports whether any part of the response reached the connection.
func (w *Writer) Started() bool {
	return w.state != stateStatus
}

// Status returns the status code written, or 0 before the status line.
func (w *Writer) Status() StatusCode {
	return w.status
}

// BodyBytes returns the number of body bytes written so far.
func (w *Writer) BodyBytes() int64 {
	return w.written
}

// WriteStatusLine writes the status line. can only be called once, and first.
func (w *Writer) WriteStatusLine(statusCode StatusCode) error {
	if w.state != stateStatus {
		return fmt.Errorf("%w: WriteStatusLine after status line", ErrWrongState)
	}
	statusLine := fmt.Sprintf("HTTP/1.1 %d %s\r\n", statusCode, StatusText(statusCode))

	w.status = statusCode
	w.state = stateHeaders
	if _, err := io.WriteString(w.w, statusLine); err != nil {
		return err
	}
	return nil
}

// WriteHeaders writes the headers and the blank line that ends them.
// must be called after status and before body.
func (w *Writer) WriteHeaders(h *headers.Headers) error {
	if w.state != stateHeaders {
		return fmt.Errorf("%w: WriteHeaders called in wrong state", ErrWrongState)
	}

	w.state = stateBody
	for key, val := range h.All() {
		line := fmt.Sprintf("%s: %s\r\n", key, val)
		if _, err := io.WriteString(w.w, line); err != nil {
			return err
		}
	}

	// final crlf to separate headers from body
	if _, err := io.WriteString(w.w, "\r\n"); err != nil {
		return err
	}
	return nil
}

// WriteBody writes to the response body. can be called multiple times, but
// only after headers have been written.
func (w *Writer) WriteBody(p []byte) (int, error) {
	if w.state != stateBody {
		return 0, fmt.Errorf("%w: WriteBody called before headers", ErrWrongState)
	}
	n, err := w.w.Write(p)
	w.written += int64(n)
	return n, err
}

// GetDefaultHeaders returns the framing headers every response carries.
func GetDefaultHeaders(contentType string, contentLen int64) *headers.Headers {
	h := headers.NewHeaders()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.FormatInt(contentLen, 10))
	h.Set("Connection", "close")
	return h
}

// SendHeader writes a complete head: status line, Content-Type,
// Content-Length, Connection and the blank line. Extra headers follow in
// order.
func (w *Writer) SendHeader(status StatusCode, contentType string, contentLength int64, extra ...[2]string) error {
	h := GetDefaultHeaders(contentType, contentLength)
	for _, kv := range extra {
		h.Set(kv[0], kv[1])
	}
	if err := w.WriteStatusLine(status); err != nil {
		return err
	}
	return w.WriteHeaders(h)
}

// ErrorBody renders the HTML page sent with error responses. The message is
// HTML-escaped.
func ErrorBody(message string) string {
	return "<html><body><h1>" + html.EscapeString(message) + "</h1></body></html>"
}

// SendError writes a text/html error response. When includeBody is false
// the response is header-only with Content-Length 0.
func (w *Writer) SendError(status StatusCode, message string, includeBody bool) error {
	var body []byte
	if includeBody {
		body = []byte(ErrorBody(message))
	}
	if err := w.SendHeader(status, "text/html", int64(len(body))); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.WriteBody(body)
	return err
}

// SendFile writes a 200 head and copies exactly size bytes from r. The copy
// goes straight to the connection so a *net.TCPConn destination can use
// sendfile.
func (w *Writer) SendFile(r io.Reader, contentType string, size int64, extra ...[2]string) error {
	if err := w.SendHeader(StatusOK, contentType, size, extra...); err != nil {
		return err
	}
	n, err := io.CopyN(w.w, r, size)
	w.written += n
	if err == io.EOF {
		return fmt.Errorf("%w: sent %d of %d bytes", ErrBodyLength, n, size)
	}
	return err
}
