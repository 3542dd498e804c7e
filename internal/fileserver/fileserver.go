// Package fileserver implements the GET, HEAD, POST and PUT handlers that
// serve and store files under a document root.
package fileserver

import (
	"errors"
	"io"
	"log"
	"mime"
	"net/url"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/devwelkin/hermes-files/internal/docroot"
	"github.com/devwelkin/hermes-files/internal/formdata"
	"github.com/devwelkin/hermes-files/internal/mimetype"
	"github.com/devwelkin/hermes-files/internal/request"
	"github.com/devwelkin/hermes-files/internal/response"
	"github.com/devwelkin/hermes-files/internal/server"
)

const (
	DefaultUploadDir    = "uploads"
	DefaultMaxFormBytes = 1 << 20

	formURLEncoded = "application/x-www-form-urlencoded"
)

type Config struct {
	Root *docroot.Root
	// UploadDir receives multipart file parts, relative to Root.
	UploadDir string
	// MaxFormBytes caps urlencoded bodies and multipart field values.
	MaxFormBytes int64
}

type FileServer struct {
	root         *docroot.Root
	uploadDir    string
	maxFormBytes int64
}

func New(cfg Config) *FileServer {
	fs := &FileServer{
		root:         cfg.Root,
		uploadDir:    cfg.UploadDir,
		maxFormBytes: cfg.MaxFormBytes,
	}
	if fs.uploadDir == "" {
		fs.uploadDir = DefaultUploadDir
	}
	if fs.maxFormBytes <= 0 {
		fs.maxFormBytes = DefaultMaxFormBytes
	}
	return fs
}

// Handle dispatches on the request method. It matches server.Handler.
func (fs *FileServer) Handle(w *response.Writer, req *request.Request) *server.HandlerError {
	switch req.Method() {
	case request.MethodGet:
		return fs.serveTarget(w, req.Target(), true)
	case request.MethodHead:
		return fs.serveTarget(w, req.Target(), false)
	case request.MethodPost:
		return fs.handlePost(w, req)
	case request.MethodPut:
		return fs.handlePut(w, req)
	default:
		return &server.HandlerError{
			StatusCode: response.StatusMethodNotAllowed,
			Message:    "Method Not Allowed",
			OmitBody:   true,
		}
	}
}

func (fs *FileServer) serveTarget(w *response.Writer, target string, withBody bool) *server.HandlerError {
	path, err := fs.root.Resolve(target)
	if err != nil {
		return badPath(err, withBody)
	}
	return fs.serveFile(w, path, withBody)
}

// serveFile answers with the file at path. Without body it sends the head
// only, with the same Content-Length.
func (fs *FileServer) serveFile(w *response.Writer, path string, withBody bool) *server.HandlerError {
	f, info, err := fs.root.Open(path)
	if err != nil {
		if errors.Is(err, docroot.ErrNotFound) {
			return notFound(withBody)
		}
		return ioFailure(err)
	}
	defer f.Close()

	contentType := mimetype.TypeByName(path)
	lastModified := [2]string{"Last-Modified", response.FormatTime(info.ModTime())}

	if withBody {
		err = w.SendFile(f, contentType, info.Size(), lastModified)
	} else {
		err = w.SendHeader(response.StatusOK, contentType, info.Size(), lastModified)
	}
	if err != nil {
		return ioFailure(err)
	}
	return nil
}

func (fs *FileServer) handlePost(w *response.Writer, req *request.Request) *server.HandlerError {
	mediaType, _, err := mime.ParseMediaType(req.ContentType())
	if err != nil {
		return unsupportedMedia()
	}

	switch mediaType {
	case formURLEncoded:
		return fs.postForm(w, req)
	case formdata.MediaType:
		return fs.postMultipart(w, req)
	default:
		return unsupportedMedia()
	}
}

// postForm serves the file named by the "filename" form field, exactly as
// a GET for that name would.
func (fs *FileServer) postForm(w *response.Writer, req *request.Request) *server.HandlerError {
	body, err := req.Body.Bytes(fs.maxFormBytes)
	if err != nil {
		if errors.Is(err, request.ErrBodyTooLarge) || errors.Is(err, io.ErrUnexpectedEOF) {
			return badRequest("Bad Request: "+err.Error(), err)
		}
		return ioFailure(err)
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return badRequest("Bad Request: malformed form body", err)
	}
	fileName := strings.TrimSpace(values.Get("filename"))
	if fileName == "" {
		return badRequest("Bad Request: Filename is required", nil)
	}

	path, err := fs.root.ResolveName(fileName)
	if err != nil {
		return badPath(err, true)
	}
	return fs.serveFile(w, path, true)
}

// postMultipart stores every part that carries a file name under the upload
// directory and answers 201 with an empty body.
func (fs *FileServer) postMultipart(w *response.Writer, req *request.Request) *server.HandlerError {
	dec, err := formdata.NewDecoder(req.Body, req.ContentType())
	if err != nil {
		return badRequest("Bad Request: "+err.Error(), err)
	}

	fields := 0
	for {
		part, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return badRequest("Bad Request: malformed multipart body", err)
		}

		if !part.IsFile {
			if _, err := part.Value(fs.maxFormBytes); err != nil {
				return badRequest("Bad Request: "+err.Error(), err)
			}
			fields++
			continue
		}
		if part.FileName == "" {
			// a file input left empty
			continue
		}
		if herr := fs.storeUpload(part); herr != nil {
			return herr
		}
	}

	if fields > 0 {
		log.Printf("multipart upload carried %d form field(s)", fields)
	}
	if err := w.SendHeader(response.StatusCreated, "text/plain", 0); err != nil {
		return ioFailure(err)
	}
	return nil
}

func (fs *FileServer) storeUpload(part *formdata.Part) *server.HandlerError {
	f, err := fs.root.CreateUnique(fs.uploadDir, part.FileName)
	if err != nil {
		return ioFailure(err)
	}
	n, err := io.Copy(f, part.Content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return ioFailure(err)
	}
	log.Printf("stored upload %s as %s (%s)", part.FileName, f.Name(), humanize.Bytes(uint64(n)))
	return nil
}

// handlePut replaces the target with the request body. The response is
// header-only and describes the stored file: Content-Length is the stored
// size, yet no body follows, so strict clients such as curl report a
// truncated transfer on a non-empty PUT.
func (fs *FileServer) handlePut(w *response.Writer, req *request.Request) *server.HandlerError {
	path, err := fs.root.Resolve(req.Target())
	if err != nil {
		return badPath(err, true)
	}

	length := req.ContentLength
	if length < 0 {
		length = 0
	}
	created, _, err := fs.root.WriteFile(path, req.Body, length)
	if err != nil {
		return &server.HandlerError{
			StatusCode: response.StatusInternalServerError,
			Message:    "Internal Server Error: Failed to write file",
			OmitBody:   true,
			Err:        err,
		}
	}

	info, err := fs.root.Stat(path)
	if err != nil {
		return ioFailure(err)
	}

	status := response.StatusOK
	if created {
		status = response.StatusCreated
	}
	lastModified := [2]string{"Last-Modified", response.FormatTime(info.ModTime())}
	if err := w.SendHeader(status, mimetype.TypeByName(path), info.Size(), lastModified); err != nil {
		return ioFailure(err)
	}
	return nil
}
