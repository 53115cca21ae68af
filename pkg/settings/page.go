package settings

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PageSize is the size of the reserved storage page.
const PageSize = 64

// erased is the value of every byte of an erased page.
const erased = 0xFF

// ErrNotErased is returned when programming over bytes that were not erased.
var ErrNotErased = errors.New("page is not erased")

// Page is one erasable storage page.
type Page interface {
	// Read returns the full page.
	Read() ([]byte, error)
	// Erase sets every byte of the page to 0xFF.
	Erase() error
	// Program writes data at the start of an erased page.
	Program(data []byte) error
}

func erasedPage() []byte {
	return bytes.Repeat([]byte{erased}, PageSize)
}

func program(page []byte, data []byte) error {
	if len(data) > len(page) {
		return pkgerrors.Errorf("record of %d bytes does not fit a %d byte page", len(data), len(page))
	}
	for i := range data {
		if page[i] != erased {
			return ErrNotErased
		}
	}
	copy(page, data)
	return nil
}

// MemPage is a Page held in memory.
type MemPage struct {
	mu   sync.Mutex
	data []byte
}

var _ Page = &MemPage{}

// NewMemPage returns an erased in-memory page.
func NewMemPage() *MemPage {
	return &MemPage{data: erasedPage()}
}

func (p *MemPage) Read() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.data), nil
}

func (p *MemPage) Erase() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = erasedPage()
	return nil
}

func (p *MemPage) Program(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return program(p.data, data)
}

// Corrupt flips every bit of the byte at offset. For tests.
func (p *MemPage) Corrupt(offset int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[offset] ^= 0xFF
}

// FilePage emulates a flash page with a file. A missing file reads as an
// erased page. Every write replaces the whole file through a rename, so a
// crash leaves either the old or the new page.
type FilePage struct {
	mu   sync.Mutex
	path string
}

var _ Page = &FilePage{}

// NewFilePage returns a page stored at path.
func NewFilePage(path string) *FilePage {
	return &FilePage{path: path}
}

func (p *FilePage) read() ([]byte, error) {
	b, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return erasedPage(), nil
		}
		return nil, pkgerrors.Wrapf(err, "failed to read settings page %s", p.path)
	}

	page := erasedPage()
	copy(page, b)
	return page, nil
}

func (p *FilePage) write(page []byte) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".*")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create temp file in %s", dir)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("failed to remove temp file %s", tmp.Name())
		}
	}()

	if _, err := tmp.Write(page); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to write settings page %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to sync settings page %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to close settings page %s", tmp.Name())
	}

	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return pkgerrors.Wrapf(err, "failed to replace settings page %s", p.path)
	}
	return nil
}

func (p *FilePage) Read() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read()
}

func (p *FilePage) Erase() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(erasedPage())
}

func (p *FilePage) Program(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	page, err := p.read()
	if err != nil {
		return err
	}
	if err := program(page, data); err != nil {
		return pkgerrors.Wrapf(err, "failed to program settings page %s", p.path)
	}
	return p.write(page)
}
