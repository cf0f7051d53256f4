package wasienv

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	_ File = &FileReader{}
	_ File = &FileWriter{}
	_ File = &FileOpened{}
	_ File = &FilePipe{}
)

// File defines a virtual file bound into one of the guest's well known
// descriptor slots.
type File interface {
	isFile()
}

// FileReader is an input file backed by a reader.
type FileReader struct {
	Reader io.Reader
}

func (*FileReader) isFile() {}

// NewFileReader creates an input file backed by the reader.
func NewFileReader(r io.Reader) File {
	return &FileReader{Reader: r}
}

// FileWriter is an output file piped into the writer.
type FileWriter struct {
	Writer io.Writer
}

func (*FileWriter) isFile() {}

// NewFileWriter creates an output file piped into the writer.
func NewFileWriter(w io.Writer) File {
	return &FileWriter{Writer: w}
}

// FileOpened is an already opened host file.
type FileOpened struct {
	File *os.File
}

func (*FileOpened) isFile() {}

// NewFileOpened wraps an already opened host file. The file is owned by the
// environment after binding and closed with it.
func NewFileOpened(f *os.File) File {
	return &FileOpened{File: f}
}

// FilePipe is an in memory duplex pipe. The guest reads from or writes to
// one end while the host holds the other.
type FilePipe struct {
	mu     sync.Mutex
	buf    []byte
	closed bool
	notify chan struct{}
}

func (*FilePipe) isFile() {}

// NewFilePipe creates an empty pipe.
func NewFilePipe() *FilePipe {
	return &FilePipe{notify: make(chan struct{})}
}

// Write appends to the pipe buffer and wakes pending readers.
func (p *FilePipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	p.buf = append(p.buf, b...)
	close(p.notify)
	p.notify = make(chan struct{})
	return len(b), nil
}

// Read drains buffered bytes, blocking until data arrives or the pipe is
// closed.
func (p *FilePipe) Read(b []byte) (int, error) {
	for {
		p.mu.Lock()
		if len(p.buf) > 0 {
			n := copy(b, p.buf)
			p.buf = p.buf[n:]
			p.mu.Unlock()
			return n, nil
		}
		if p.closed {
			p.mu.Unlock()
			return 0, io.EOF
		}
		wait := p.notify
		p.mu.Unlock()
		<-wait
	}
}

// Close marks the write end closed. Pending and future reads observe EOF
// once the buffer drains.
func (p *FilePipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.notify)
		p.notify = make(chan struct{})
	}
	return nil
}

// DefaultStdin returns the console input used when no stdin override is
// configured. Reads block until the host feeds the pipe.
func DefaultStdin() *FilePipe {
	return NewFilePipe()
}

// FileToReader exposes the readable side of a file. The returned reader must
// be closed by the caller.
func FileToReader(f File) (io.ReadCloser, error) {
	switch f := f.(type) {
	case *FileOpened:
		return f.File, nil
	case *FileReader:
		return io.NopCloser(f.Reader), nil
	case *FilePipe:
		return io.NopCloser(f), nil
	default:
		return nil, fmt.Errorf("file cannot open as reader: %T", f)
	}
}

// FileToWriter exposes the writable side of a file.
func FileToWriter(f File) (io.Writer, error) {
	switch f := f.(type) {
	case *FileOpened:
		return f.File, nil
	case *FileWriter:
		return f.Writer, nil
	case *FilePipe:
		return f, nil
	default:
		return nil, fmt.Errorf("file cannot open as writer: %T", f)
	}
}
