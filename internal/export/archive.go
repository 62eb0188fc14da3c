package export

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrArchiveClosed is returned by Append after Finalize.
var ErrArchiveClosed = errors.New("archive already finalized")

// AssemblyError reports a failure to write or finalize the archive.
type AssemblyError struct {
	Path string
	Err  error
}

func (e *AssemblyError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("assembling archive: %v", e.Err)
	}
	return fmt.Sprintf("assembling archive entry %s: %v", e.Path, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// Entry is one file in the archive.
type Entry struct {
	Path    string
	Content []byte
}

// Archive builds a ZIP document in memory. Appends may come from any number of
// goroutines; a single goroutine owns the zip writer.
type Archive struct {
	buf      bytes.Buffer
	zw       *zip.Writer
	modified time.Time

	entries chan Entry
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	// written by the owner goroutine only, read after done is closed
	err   error
	paths []string
}

// OpenArchive starts a new archive. level is a compress/flate level; modified
// is stamped on every entry.
func OpenArchive(level int, modified time.Time) *Archive {
	a := &Archive{
		modified: modified,
		entries:  make(chan Entry, 64),
		done:     make(chan struct{}),
	}
	a.zw = zip.NewWriter(&a.buf)
	a.zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	go a.run()
	return a
}

func (a *Archive) run() {
	defer close(a.done)
	for e := range a.entries {
		if a.err != nil {
			continue
		}
		if err := a.write(e); err != nil {
			a.err = &AssemblyError{Path: e.Path, Err: err}
			continue
		}
		a.paths = append(a.paths, e.Path)
	}
}

func (a *Archive) write(e Entry) error {
	w, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:     e.Path,
		Method:   zip.Deflate,
		Modified: a.modified,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(e.Content)
	return err
}

// Append queues an entry for writing.
func (a *Archive) Append(path string, content []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrArchiveClosed
	}
	a.entries <- Entry{Path: path, Content: content}
	return nil
}

// Finalize waits for queued entries, closes the archive and returns its bytes.
// Calling it more than once returns ErrArchiveClosed.
func (a *Archive) Finalize() ([]byte, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrArchiveClosed
	}
	a.closed = true
	close(a.entries)
	a.mu.Unlock()

	<-a.done
	if a.err != nil {
		return nil, a.err
	}
	if err := a.zw.Close(); err != nil {
		return nil, &AssemblyError{Err: err}
	}
	return a.buf.Bytes(), nil
}

// Paths returns the entry paths written so far, in write order. It is only
// meaningful after Finalize.
func (a *Archive) Paths() []string {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if !closed {
		return nil
	}
	<-a.done
	return append([]string(nil), a.paths...)
}
