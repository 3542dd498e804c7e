package headers

import (
	"bytes"
	"iter"
	"strings"
)

type field struct {
	name  string
	value string
}

// Headers is an ordered header map. Lookups are case-insensitive and a
// repeated key replaces the earlier value in place.
type Headers struct {
	fields []field
	index  map[string]int // lower-cased name -> position in fields
}

func NewHeaders() *Headers {
	return &Headers{index: map[string]int{}}
}

// Parse consumes at most one header line from data. It returns the number
// of bytes consumed and whether the blank line ending the header block was
// reached. Both "\r\n" and bare "\n" terminate a line. A line that is not a
// valid "key: value" pair is consumed and dropped.
func (h *Headers) Parse(data []byte) (n int, done bool) {
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		return 0, false
	}

	line := bytes.TrimSuffix(data[:idx], []byte("\r"))
	if len(line) == 0 {
		// the empty line
		return idx + 1, true
	}

	h.parseLine(line)
	return idx + 1, false
}

// ParseLine handles a final header line that arrived without a terminator.
func (h *Headers) ParseLine(line []byte) {
	h.parseLine(bytes.TrimSuffix(line, []byte("\r")))
}

func (h *Headers) parseLine(line []byte) {
	colonIdx := bytes.IndexByte(line, ':')
	if colonIdx <= 0 {
		return
	}

	key := bytes.TrimSpace(line[:colonIdx])
	if len(key) == 0 || !validKey(key) {
		return
	}

	// always lowercase the key
	key = bytes.ToLower(key)
	value := bytes.TrimSpace(line[colonIdx+1:])

	h.Set(string(key), string(value))
}

func validKey(key []byte) bool {
	for _, b := range key {
		isLetter := (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
		isDigit := (b >= '0' && b <= '9')
		isSpecial := bytes.IndexByte([]byte("!#$%&'*+-.^_`|~"), b) != -1

		if !isLetter && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}

// Get looks a header up by name, ignoring case.
func (h *Headers) Get(key string) (string, bool) {
	i, ok := h.index[strings.ToLower(key)]
	if !ok {
		return "", false
	}
	return h.fields[i].value, true
}

// Set adds or overwrites a header. An overwrite keeps the original position.
func (h *Headers) Set(key, value string) {
	lower := strings.ToLower(key)
	if i, ok := h.index[lower]; ok {
		h.fields[i].value = value
		return
	}
	h.index[lower] = len(h.fields)
	h.fields = append(h.fields, field{name: key, value: value})
}

func (h *Headers) Len() int {
	return len(h.fields)
}

// All yields the headers in insertion order.
func (h *Headers) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, f := range h.fields {
			if !yield(f.name, f.value) {
				return
			}
		}
	}
}
