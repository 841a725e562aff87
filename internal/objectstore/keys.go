package objectstore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Static errors.
var (
	ErrInvalidKey = errors.New("invalid object key")
	ErrForeignURL = errors.New("URL does not belong to this object store")
)

// escapeKey path-escapes each segment of key, keeping the separators.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}

	return strings.Join(segments, "/")
}

// keyFromURL strips prefix from rawURL and unescapes the remainder. Inputs
// without a scheme are treated as keys already.
func keyFromURL(prefix, rawURL string) (string, error) {
	var key string

	switch {
	case strings.HasPrefix(rawURL, prefix):
		escaped := strings.TrimPrefix(rawURL, prefix)
		if cut := strings.IndexAny(escaped, "?#"); cut >= 0 {
			escaped = escaped[:cut]
		}

		unescaped, err := url.PathUnescape(escaped)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}

		key = unescaped
	case strings.Contains(rawURL, "://"):
		return "", fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	default:
		key = rawURL
	}

	return key, validateKey(key)
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}

	return nil
}
