package minio

import (
	"context"
	"errors"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/filestore"
)

// readCodes classifies the S3 error codes the read path can produce. Some
// gateways answer these with a 200 or a generic 400, so the code wins over
// the status.
var readCodes = map[string]errs.ErrKind{
	"NoSuchBucket":          errs.ErrKindNotFound,
	"NoSuchKey":             errs.ErrKindNotFound,
	"NoSuchVersion":         errs.ErrKindNotFound,
	"AccessDenied":          errs.ErrKindPermissionDenied,
	"AllAccessDisabled":     errs.ErrKindPermissionDenied,
	"InvalidAccessKeyId":    errs.ErrKindPermissionDenied,
	"SignatureDoesNotMatch": errs.ErrKindPermissionDenied,
	"InvalidBucketName":     errs.ErrKindInvalidInput,
	"InvalidObjectName":     errs.ErrKindInvalidInput,
	"KeyTooLongError":       errs.ErrKindInvalidInput,
	"InvalidRange":          errs.ErrKindInvalidInput,
	// The object was replaced between stat and read.
	"PreconditionFailed": errs.ErrKindResourceFailed,
	"RequestTimeout":     errs.ErrKindTimeout,
	"SlowDown":           errs.ErrKindTimeout,
}

var readStatuses = map[int]errs.ErrKind{
	http.StatusNotFound:                     errs.ErrKindNotFound,
	http.StatusForbidden:                    errs.ErrKindPermissionDenied,
	http.StatusUnauthorized:                 errs.ErrKindPermissionDenied,
	http.StatusBadRequest:                   errs.ErrKindInvalidInput,
	http.StatusRequestedRangeNotSatisfiable: errs.ErrKindInvalidInput,
	http.StatusPreconditionFailed:           errs.ErrKindResourceFailed,
}

// mapError turns a MinIO SDK error from op into a *errs.Error whose message
// names the object as s3://bucket/key. An empty bucket means the call was
// not about one object.
func mapError(err error, op, bucket, key string) *errs.Error {
	if err == nil {
		return nil
	}

	msg := op
	if bucket != "" {
		msg = op + " " + filestore.ObjectURI(bucket, key)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		if kind, ok := readCodes[resp.Code]; ok {
			return errs.Wrap(kind, msg, err)
		}
		if kind, ok := readStatuses[resp.StatusCode]; ok {
			return errs.Wrap(kind, msg, err)
		}
		return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
