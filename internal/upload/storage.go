package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	dErrors "taskdesk/pkg/domain-errors"
)

// DiskStorage persists accepted uploads under a single directory. Object
// names are a fresh random token plus the validated extension, so concurrent
// writes cannot collide and the declared name never touches the filesystem.
type DiskStorage struct {
	dir string
}

func NewDiskStorage(dir string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not create upload directory")
	}
	return &DiskStorage{dir: dir}, nil
}

// Write streams the upload to disk under a generated object name and returns
// the name and the byte count actually written.
func (s *DiskStorage) Write(declaredName string, r io.Reader) (string, int64, error) {
	objectName := fmt.Sprintf("%s%s", uuid.NewString(), SafeExtension(declaredName))

	f, err := os.OpenFile(filepath.Join(s.dir, objectName), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", 0, dErrors.Wrap(err, dErrors.CodeInternal, "could not create upload file")
	}
	defer f.Close()

	written, err := io.Copy(f, r)
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, dErrors.Wrap(err, dErrors.CodeInternal, "could not write upload file")
	}
	return objectName, written, nil
}

// Open returns a reader over a stored object.
func (s *DiskStorage) Open(objectName string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(objectName)))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "stored file not found")
	}
	return f, nil
}

// Delete removes a stored object. Used when a post-write check fails so no
// orphaned unsafe file remains servable.
func (s *DiskStorage) Delete(objectName string) error {
	if err := os.Remove(filepath.Join(s.dir, filepath.Base(objectName))); err != nil && !os.IsNotExist(err) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not delete stored file")
	}
	return nil
}

// Stat reports the on-disk size of a stored object.
func (s *DiskStorage) Stat(objectName string) (int64, error) {
	info, err := os.Stat(filepath.Join(s.dir, filepath.Base(objectName)))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeNotFound, "stored file not found")
	}
	return info.Size(), nil
}
