package main

import (
	"bufio"
	"io"
	"log"

	"github.com/devwelkin/hermes-files/internal/request"
)

// readLines streams the lines of r with "\r\n" or "\n" stripped, the same
// endings the request parser accepts, and closes r when the stream ends.
// A line longer than the request header cap ends the stream.
func readLines(r io.ReadCloser) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)
		defer r.Close()

		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 4096), request.MaxHeaderBytes)
		for sc.Scan() {
			lines <- sc.Text()
		}
		if err := sc.Err(); err != nil {
			log.Printf("error reading lines: %v", err)
		}
	}()

	return lines
}
