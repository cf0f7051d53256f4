package engine

import (
	"bytes"
	"io"
	"io/fs"
	"time"

	"github.com/guestbox/guestbox/wasienv"
)

// FS exposes a guest filesystem backing as a read-only fs.FS so it can be
// mounted into a guest instance.
func FS(fsys wasienv.FileSystem) fs.FS {
	return guestFS{fsys: fsys}
}

type guestFS struct {
	fsys wasienv.FileSystem
}

func (g guestFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	p := "/"
	if name != "." {
		p = "/" + name
	}
	fi, err := g.fsys.Stat(p)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	if name == "." {
		fi.Name = "."
	}
	if fi.Dir {
		children, err := g.fsys.ReadDir(p)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &guestDir{info: fi, children: children}, nil
	}
	data, err := g.fsys.ReadFile(p)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &guestFile{info: fi, r: bytes.NewReader(data)}, nil
}

type fileInfo struct {
	fi wasienv.FileInfo
}

func (i fileInfo) Name() string       { return i.fi.Name }
func (i fileInfo) Size() int64        { return i.fi.Size }
func (i fileInfo) ModTime() time.Time { return i.fi.ModTime }
func (i fileInfo) IsDir() bool        { return i.fi.Dir }
func (i fileInfo) Sys() any           { return nil }

func (i fileInfo) Mode() fs.FileMode {
	if i.fi.Dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

func (i fileInfo) Type() fs.FileMode          { return i.Mode().Type() }
func (i fileInfo) Info() (fs.FileInfo, error) { return i, nil }

type guestFile struct {
	info wasienv.FileInfo
	r    *bytes.Reader
}

func (f *guestFile) Stat() (fs.FileInfo, error) { return fileInfo{f.info}, nil }
func (f *guestFile) Read(b []byte) (int, error) { return f.r.Read(b) }
func (f *guestFile) Close() error               { return nil }

type guestDir struct {
	info     wasienv.FileInfo
	children []wasienv.FileInfo
	offset   int
}

func (d *guestDir) Stat() (fs.FileInfo, error) { return fileInfo{d.info}, nil }
func (d *guestDir) Close() error               { return nil }

func (d *guestDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.Name, Err: fs.ErrInvalid}
}

func (d *guestDir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := len(d.children) - d.offset
	if n <= 0 {
		n = rest
	} else if rest == 0 {
		return nil, io.EOF
	} else if n > rest {
		n = rest
	}
	out := make([]fs.DirEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fileInfo{d.children[d.offset+i]})
	}
	d.offset += n
	return out, nil
}
