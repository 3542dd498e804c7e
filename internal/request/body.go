package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var ErrBodyTooLarge = errors.New("request body too large")

// Body exposes exactly ContentLength bytes of the request body: whatever the
// parser had already buffered past the headers, then the connection itself.
// It reports io.EOF at the declared length and never reads further from the
// connection.
type Body struct {
	lr io.LimitedReader
}

func newBody(buffered []byte, conn io.Reader, length int64) *Body {
	if length < 0 {
		length = 0
	}
	var src io.Reader = conn
	if len(buffered) > 0 {
		src = io.MultiReader(bytes.NewReader(buffered), conn)
	}
	return &Body{lr: io.LimitedReader{R: src, N: length}}
}

func (b *Body) Read(p []byte) (int, error) {
	return b.lr.Read(p)
}

// Remaining returns the number of declared bytes not yet read.
func (b *Body) Remaining() int64 {
	return b.lr.N
}

// Bytes buffers the remainder of the body. It fails with ErrBodyTooLarge
// without reading anything if more than max bytes remain, and with
// io.ErrUnexpectedEOF if the stream ends early.
func (b *Body) Bytes(max int64) ([]byte, error) {
	if b.lr.N > max {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrBodyTooLarge, b.lr.N, max)
	}
	buf := make([]byte, b.lr.N)
	if _, err := io.ReadFull(b, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}
