package filestore

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
)

const (
	dirPerm  = 0700
	filePerm = 0600
	ext      = ".json"
)

// Store keeps every collection as <root>/<name>.json. A name such as "user1/queue" lives in
// a sub directory of root.
type Store struct {
	root string
}

// New returns a store rooted at root, creating the directory when needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("filestore: empty root directory")
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, &app.ResourceAccessError{Collection: root, Op: "create", Err: err}
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) path(name string) (string, error) {
	if err := app.ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(name)+ext), nil
}

func (s *Store) EnsureExists(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "create", Err: err}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if os.IsExist(err) {
		return nil
	}
	if err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "create", Err: err}
	}

	_, err = f.WriteString(app.EmptyDocument)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "create", Err: err}
	}
	return nil
}

func (s *Store) Read(name string) ([]byte, error) {
	if err := s.EnsureExists(name); err != nil {
		return nil, err
	}

	path, err := s.path(name)
	if err != nil {
		return nil, err
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, &app.ResourceAccessError{Collection: name, Op: "read", Err: err}
	}
	return data, nil
}

// Write replaces the document atomically: readers see either the old or the new content.
func (s *Store) Write(name string, data []byte) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "write", Err: err}
	}

	tmp, err := ioutil.TempFile(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "write", Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &app.ResourceAccessError{Collection: name, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &app.ResourceAccessError{Collection: name, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "write", Err: err}
	}
	if err := os.Chmod(tmp.Name(), filePerm); err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "write", Err: err}
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "write", Err: err}
	}
	return nil
}
