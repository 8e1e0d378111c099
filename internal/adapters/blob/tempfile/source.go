// Package tempfile spools multipart uploads to local disk so the blob store
// can read them after the request body is gone.
package tempfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/gabriel-vasile/mimetype"
)

type Source struct {
	path        string
	name        string
	contentType string

	once sync.Once
	err  error
}

var _ model.ImageSource = (*Source)(nil)

// Save copies fh into dir. The caller owns the result and must Release it.
func Save(dir string, fh *multipart.FileHeader) (*Source, error) {
	in, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer in.Close()
	return Spool(dir, fh.Filename, in)
}

// Spool writes r into a new temp file under dir.
func Spool(dir, name string, r io.Reader) (*Source, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	out, err := os.CreateTemp(dir, "upload-*"+safeExt(name))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	src := &Source{path: out.Name(), name: filepath.Base(name)}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		_ = src.Release()
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = src.Release()
		return nil, fmt.Errorf("spool upload: %w", err)
	}

	mt, err := mimetype.DetectFile(src.path)
	if err != nil {
		_ = src.Release()
		return nil, fmt.Errorf("detect content type: %w", err)
	}
	src.contentType = mt.String()
	return src, nil
}

func (s *Source) Name() string        { return s.name }
func (s *Source) ContentType() string { return s.contentType }
func (s *Source) Path() string        { return s.path }

// IsImage reports whether the sniffed content is an image.
func (s *Source) IsImage() bool {
	return strings.HasPrefix(s.contentType, "image/")
}

func (s *Source) Open() (io.ReadCloser, error) {
	return os.Open(s.path)
}

// Release removes the file. Only the first call does any work.
func (s *Source) Release() error {
	s.once.Do(func() {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.err = err
		}
	})
	return s.err
}

func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}
