package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/devwelkin/hermes-files/internal/docroot"
	"github.com/devwelkin/hermes-files/internal/fileserver"
	"github.com/devwelkin/hermes-files/internal/server"
)

const (
	helpPort    = `Port number the server listens on.`
	helpDir     = `Document root that files are served from and written to.`
	helpWorkers = `Number of connections handled at once; further clients wait.`
	helpUploads = `Directory, relative to the document root, for multipart uploads.`
	helpVerbose = `Log every request with its status and size.`
)

func main() {
	port := flag.Int("p", 8080, helpPort)
	dir := flag.String("d", ".", helpDir)
	workers := flag.Int("w", server.DefaultWorkers, helpWorkers)
	uploads := flag.String("u", fileserver.DefaultUploadDir, helpUploads)
	verbose := flag.Bool("v", false, helpVerbose)
	flag.Parse()
	if *workers <= 0 {
		*workers = server.DefaultWorkers
	}

	root, err := docroot.New(*dir)
	if err != nil {
		log.Fatalf("Error opening document root: %v", err)
	}

	files := fileserver.New(fileserver.Config{
		Root:      root,
		UploadDir: *uploads,
	})
	var handler server.Handler = files.Handle
	if *verbose {
		handler = server.WithAccessLog(log.Default(), handler)
	}

	srv, err := server.Serve(server.Config{Port: *port, Workers: *workers}, handler)
	if err != nil {
		log.Fatalf("Error starting server: %v", err)
	}
	log.Printf("Serving %s on %s with %d workers", root.Dir(), srv.Addr(), *workers)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	if err := srv.Close(); err != nil {
		log.Printf("Error closing listener: %v", err)
	}
	log.Println("Server gracefully stopped")
}
