package source

import (
	"io"
	"os"
	"time"
)

// plainChunk is the 1 MiB window used for plain-file chunk hints.
const plainChunk = 1 << 20

// PlainFile is the Byte Source adapter over a local, uncompressed file.
// Reads are positioned (os.File.ReadAt), which is safe for concurrent use
// and keeps the index from ever holding a file cursor across calls.
type PlainFile struct {
	file *os.File
	name string
	size uint64
}

// OpenPlainFile opens path for positioned reads.
func OpenPlainFile(path string) (*PlainFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	pf := &PlainFile{file: f, name: path}
	if err := pf.stat(); err != nil {
		f.Close()
		return nil, err
	}
	return pf, nil
}

func (pf *PlainFile) stat() error {
	info, err := pf.file.Stat()
	if err != nil {
		return err
	}
	pf.size = uint64(info.Size())
	return nil
}

func (pf *PlainFile) Name() string { return pf.name }

func (pf *PlainFile) Len() uint64 { return pf.size }

func (pf *PlainFile) ReadAt(buf []byte, offset uint64) (int, error) {
	n, err := pf.file.ReadAt(buf, int64(offset))
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// Poll re-stats the file; a growing log (still being appended to) is the
// only way Len can change for a plain file.
func (pf *PlainFile) Poll(deadline time.Time) bool {
	before := pf.size
	_ = pf.stat()
	return pf.size > before
}

// ChunkHint centres a plainChunk-byte window on target.
func (pf *PlainFile) ChunkHint(target uint64) (uint64, uint64) {
	half := uint64(plainChunk / 2)
	var start uint64
	if target > half {
		start = target - half
	}
	end := start + plainChunk
	return start, end
}

func (pf *PlainFile) Close() error { return pf.file.Close() }
