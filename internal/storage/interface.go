package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrObjectTooLarge is returned by ReadText when an object exceeds the byte limit.
var ErrObjectTooLarge = errors.New("object exceeds size limit")

// ObjectStorage is the read side of an object store.
type ObjectStorage interface {
	// Download opens an object for reading. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// ReadText downloads an object and returns it as a string. When maxBytes is
// positive an object larger than maxBytes is rejected with ErrObjectTooLarge
// rather than cut short.
func ReadText(ctx context.Context, store ObjectStorage, key string, maxBytes int64) (string, error) {
	body, err := store.Download(ctx, key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var r io.Reader = body
	if maxBytes > 0 {
		r = io.LimitReader(body, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%s: %w (%d bytes)", key, ErrObjectTooLarge, maxBytes)
	}
	return string(data), nil
}
