package fileserver

import (
	"errors"

	"github.com/devwelkin/hermes-files/internal/docroot"
	"github.com/devwelkin/hermes-files/internal/response"
	"github.com/devwelkin/hermes-files/internal/server"
)

func notFound(withBody bool) *server.HandlerError {
	return &server.HandlerError{
		StatusCode: response.StatusNotFound,
		Message:    "Not Found",
		OmitBody:   !withBody,
	}
}

func badRequest(message string, err error) *server.HandlerError {
	return &server.HandlerError{
		StatusCode: response.StatusBadRequest,
		Message:    message,
		Err:        err,
	}
}

// badPath maps a docroot resolution failure to a response.
func badPath(err error, withBody bool) *server.HandlerError {
	if errors.Is(err, docroot.ErrOutsideRoot) || errors.Is(err, docroot.ErrInvalidPath) {
		herr := badRequest("Bad Request: invalid path", err)
		herr.OmitBody = !withBody
		return herr
	}
	return ioFailure(err)
}

func unsupportedMedia() *server.HandlerError {
	return &server.HandlerError{
		StatusCode: response.StatusUnsupportedMediaType,
		Message:    "Unsupported Media Type",
		OmitBody:   true,
	}
}

func ioFailure(err error) *server.HandlerError {
	return &server.HandlerError{
		StatusCode: response.StatusInternalServerError,
		Message:    "Internal Server Error",
		OmitBody:   true,
		Err:        err,
	}
}
