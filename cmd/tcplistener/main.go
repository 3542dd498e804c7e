package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/dustin/go-humanize"

	"github.com/devwelkin/hermes-files/internal/request"
)

func main() {
	addr := flag.String("addr", ":42069", "address to listen on")
	raw := flag.Bool("raw", false, "print raw lines instead of the parsed request")
	flag.Parse()

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal(err)
	}
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("connection has accepted from %s\n", conn.RemoteAddr())

		if *raw {
			for line := range readLines(conn) {
				fmt.Printf("%q\n", line)
			}
			continue
		}
		dump(conn)
	}
}

// dump prints the parsed request read from conn and closes it.
func dump(conn net.Conn) {
	defer conn.Close()

	req, err := request.RequestFromReader(conn)
	if err != nil {
		fmt.Printf("error parsing request: %v\n", err)
		return
	}

	fmt.Println("Request line:")
	fmt.Printf("- Method: %s\n", req.RequestLine.Method)
	fmt.Printf("- Target: %s\n", req.RequestLine.RequestTarget)
	fmt.Printf("- Version: %s\n", req.RequestLine.HTTPVersion)
	fmt.Println("Headers:")
	for key, value := range req.Headers.All() {
		fmt.Printf("- %s: %s\n", key, value)
	}

	n, err := io.Copy(io.Discard, req.Body)
	fmt.Printf("Body: %s", humanize.Bytes(uint64(n)))
	if req.ContentLength >= 0 {
		fmt.Printf(" of %s declared", humanize.Bytes(uint64(req.ContentLength)))
	}
	fmt.Println()
	if err != nil {
		fmt.Printf("error reading body: %v\n", err)
	}
}
