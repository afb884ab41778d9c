package storage

import (
	"context"
	"errors"
	"regexp"
)

// Fixed collection names of the local-only records
const (
	CollectionCart      = "cart"
	CollectionFavorites = "favorites"
)

// ErrInvalidNamespace is returned for namespaces that are not safe as file or key names
var ErrInvalidNamespace = errors.New("invalid storage namespace")

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// LocalStore keeps serialized collections for sessions without a backend identity.
// Data is stored and returned verbatim; a missing record loads as nil with no error.
type LocalStore interface {
	Load(ctx context.Context, namespace, collection string) ([]byte, error)
	Save(ctx context.Context, namespace, collection string, data []byte) error
	Delete(ctx context.Context, namespace, collection string) error
	Close() error
}

// ValidNamespace reports whether namespace can be used with a LocalStore
func ValidNamespace(namespace string) bool {
	return namespacePattern.MatchString(namespace)
}

func checkKey(namespace, collection string) error {
	if !ValidNamespace(namespace) || !ValidNamespace(collection) {
		return ErrInvalidNamespace
	}
	return nil
}
