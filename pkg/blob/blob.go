// Package blob stores the raw bytes of uploaded source files so runs can stream them again.
package blob

import (
	"context"
	"io"
	"path"
	"strings"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
)

type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Key builds the object key for an uploaded file
func Key(tenantID, workspaceID, fileID, name string) string {
	return path.Join(tenantID, workspaceID, fileID, path.Base(strings.ReplaceAll(name, "\\", "/")))
}

func notFound(key string) error {
	return ferrors.NewNotFoundError("blob", key)
}
