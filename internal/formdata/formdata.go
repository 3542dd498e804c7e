// Package formdata decodes multipart/form-data request bodies into a
// sequence of parts.
package formdata

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"mime"
	"mime/multipart"
	"slices"

	"github.com/devwelkin/hermes-files/internal/headers"
)

var (
	ErrMissingBoundary = errors.New("multipart: missing boundary")
	ErrMalformed       = errors.New("multipart: malformed body")
	ErrValueTooLarge   = errors.New("multipart: form value too large")
)

const MediaType = "multipart/form-data"

// Part is one section of a multipart body. Content is valid until the next
// call to Decoder.Next.
type Part struct {
	Headers  *headers.Headers
	FormName string
	// FileName is the base name from the filename parameter.
	FileName string
	// IsFile is set when Content-Disposition carries a filename parameter,
	// even an empty one.
	IsFile  bool
	Content io.Reader
}

// Value buffers the part content, failing with ErrValueTooLarge past max
// bytes.
func (p *Part) Value(max int64) (string, error) {
	b, err := io.ReadAll(io.LimitReader(p.Content, max+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if int64(len(b)) > max {
		return "", fmt.Errorf("%w: field %q", ErrValueTooLarge, p.FormName)
	}
	return string(b), nil
}

// Boundary extracts the boundary parameter from a multipart/form-data
// Content-Type value.
func Boundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingBoundary, err)
	}
	if mediaType != MediaType {
		return "", fmt.Errorf("%w: media type %s", ErrMissingBoundary, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", ErrMissingBoundary
	}
	return boundary, nil
}

// Decoder yields the parts of a body one at a time. It skips the preamble
// and stops at the closing boundary; it cannot be restarted.
type Decoder struct {
	mr *multipart.Reader
}

func NewDecoder(body io.Reader, contentType string) (*Decoder, error) {
	boundary, err := Boundary(contentType)
	if err != nil {
		return nil, err
	}
	return &Decoder{mr: multipart.NewReader(body, boundary)}, nil
}

// Next returns the next part, or io.EOF after the closing boundary. Unread
// content of the previous part is discarded.
func (d *Decoder) Next() (*Part, error) {
	mp, err := d.mr.NextPart()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	h := headers.NewHeaders()
	for _, k := range slices.Sorted(maps.Keys(mp.Header)) {
		if vs := mp.Header[k]; len(vs) > 0 {
			h.Set(k, vs[len(vs)-1])
		}
	}

	p := &Part{
		Headers:  h,
		FormName: mp.FormName(),
		FileName: mp.FileName(),
		Content:  mp,
	}
	if cd, ok := h.Get("content-disposition"); ok {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			_, p.IsFile = params["filename"]
		}
	}
	return p, nil
}
