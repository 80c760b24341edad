package app

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const (
	channelsCollection = "channels"
	queueCollection    = "queue"
	ownersCollection   = "owners"

	// EmptyDocument is what a collection holds when first created.
	EmptyDocument = "[]"
)

// DocumentStore persists one document per collection name. Implementations do not cache:
// every call goes to the backing resource.
type DocumentStore interface {
	// EnsureExists creates the document with EmptyDocument, and whatever contains it,
	// when absent. It never alters an existing document.
	EnsureExists(name string) error

	// Read returns the document, creating it first when absent.
	Read(name string) ([]byte, error)

	// Write replaces the whole document.
	Write(name string, data []byte) error
}

// CollectionName joins a namespace and a collection. Names are slash separated and may
// not contain empty or dot elements.
func CollectionName(namespace, collection string) string {
	if namespace == "" {
		return collection
	}
	return namespace + "/" + collection
}

// ValidateName rejects names that could escape a store's root.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `\:`) {
			return errors.Wrapf(ErrInvalidName, "%q", name)
		}
	}
	return nil
}

func loadCollection(store DocumentStore, name string, out interface{}) error {
	data, err := store.Read(name)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &CorruptDataError{Collection: name, Err: err}
	}
	return nil
}

func replaceCollection(store DocumentStore, name string, records interface{}) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode collection %s", name)
	}

	return store.Write(name, data)
}

// lockCollection takes mu and then the shared lock of name. The returned func releases both.
func lockCollection(mu *sync.Mutex, locker Locker, name string) (func(), error) {
	mu.Lock()
	unlock, err := locker.Lock(context.Background(), name)
	if err != nil {
		mu.Unlock()
		return nil, errors.Wrapf(err, "failed to lock collection %s", name)
	}
	return func() {
		unlock()
		mu.Unlock()
	}, nil
}
