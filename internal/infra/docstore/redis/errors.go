package redis

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/docsync/internal/infra/docstore"
)

// serverErrorCodes maps Redis error prefixes to canonical codes.
var serverErrorCodes = map[string]string{
	"NOAUTH":      docstore.CodeUnauthenticated,
	"WRONGPASS":   docstore.CodeUnauthenticated,
	"NOPERM":      docstore.CodePermissionDenied,
	"OOM":         docstore.CodeResourceExhausted,
	"LOADING":     docstore.CodeUnavailable,
	"BUSY":        docstore.CodeUnavailable,
	"TRYAGAIN":    docstore.CodeUnavailable,
	"CLUSTERDOWN": docstore.CodeUnavailable,
	"MASTERDOWN":  docstore.CodeUnavailable,
	"READONLY":    docstore.CodeFailedPrecondition,
	"EXECABORT":   docstore.CodeAborted,
	"WRONGTYPE":   docstore.CodeInvalidArgument,
}

// mapError converts a go-redis error into a *docstore.Error.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if docstore.CodeOf(err) != "" {
		return err
	}

	switch {
	case errors.Is(err, redis.Nil):
		return docstore.WrapError(docstore.CodeNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return docstore.WrapError(docstore.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return docstore.WrapError(docstore.CodeCancelled, err)
	case errors.Is(err, redis.ErrClosed):
		return docstore.WrapError(docstore.CodeFailedPrecondition, err)
	}

	var rerr redis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		prefix, _, _ := strings.Cut(msg, " ")
		if code, ok := serverErrorCodes[prefix]; ok {
			return docstore.WrapError(code, err)
		}
		return docstore.WrapError(docstore.CodeInternal, err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return docstore.WrapError(docstore.CodeDeadlineExceeded, err)
		}
		return docstore.WrapError(docstore.CodeUnavailable, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return docstore.WrapError(docstore.CodeUnavailable, err)
	}

	return docstore.WrapError(docstore.CodeUnknown, err)
}
