package source

import (
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the little-endian magic number at the start of every zstd
// frame (RFC 8878 §3.1.1).
const zstdMagic = 0xFD2FB528

// FrameInfo records one independently-decodable frame of a compressed
// source, as scanned at open time. Sentinel is true for the single
// trailing entry pushed when a frame's decoded length could not be
// determined without fully decoding it.
type FrameInfo struct {
	Physical uint64
	Logical  uint64
	Len      uint64
	Sentinel bool
}

// CompressedSource is the Byte Source adapter over a concatenation of zstd
// frames, translating logical (decoded) byte offsets to physical frame
// offsets, with klauspost/compress/zstd as the decoding engine.
type CompressedSource struct {
	ra   io.ReaderAt
	name string
	size uint64 // physical size of the underlying source

	frames []FrameInfo

	dec      *zstd.Decoder
	curFrame int
	logPos   uint64

	// statSize, if set, re-measures the physical size of a still-growing
	// underlying file; Poll uses it before re-scanning for new frames.
	statSize func() (uint64, error)
}

// OpenCompressed scans ra (of the given physical size) for zstd frames and
// returns a Source presenting their concatenated decoded content. It
// returns *UnsupportedFormatError if the first bytes are not zstd-framed.
func OpenCompressed(ra io.ReaderAt, name string, physicalSize uint64) (*CompressedSource, error) {
	cs := &CompressedSource{ra: ra, name: name, size: physicalSize, curFrame: -1}
	if err := cs.scanFrames(); err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, &DecoderFailureError{Detail: err.Error()}
	}
	cs.dec = dec
	return cs, nil
}

// OpenCompressedFile opens path and wraps it as a CompressedSource, wiring
// Poll to re-stat the file so a still-growing compressed log discovers
// newly-appended frames.
func OpenCompressedFile(path string) (*CompressedSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	cs, err := OpenCompressed(f, path, uint64(info.Size()))
	if err != nil {
		f.Close()
		return nil, err
	}
	cs.statSize = func() (uint64, error) {
		info, err := f.Stat()
		if err != nil {
			return 0, err
		}
		return uint64(info.Size()), nil
	}
	return cs, nil
}

func (cs *CompressedSource) Name() string { return cs.name }

// scanFrames walks the physical bytes once, recording each frame's
// (physical offset, logical offset, decoded length). It stops and records
// a sentinel as soon as a frame's content size cannot be read from its
// header.
func (cs *CompressedSource) scanFrames() error {
	var physical, logical uint64
	if n := len(cs.frames); n > 0 {
		last := cs.frames[n-1]
		physical, logical = last.Physical, last.Logical
		cs.frames = cs.frames[:n-1]
	}
	magicBuf := make([]byte, 4)

	for physical < cs.size {
		if _, err := cs.ra.ReadAt(magicBuf, int64(physical)); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if binary.LittleEndian.Uint32(magicBuf) != zstdMagic {
			if len(cs.frames) == 0 {
				return &UnsupportedFormatError{Path: cs.name}
			}
			break
		}

		hdr, headerLen, err := cs.readFrameHeader(physical + 4)
		if err != nil {
			return &DecoderFailureError{Detail: err.Error()}
		}
		blocksStart := physical + 4 + uint64(headerLen)

		if !hdr.knownSize {
			cs.frames = append(cs.frames, FrameInfo{Physical: physical, Logical: logical, Sentinel: true})
			return nil
		}

		blocksLen, err := cs.walkBlocks(blocksStart)
		if err != nil {
			// Truncated mid-frame: treat as the growing tail of a stream
			// still being written, per the same sentinel policy.
			cs.frames = append(cs.frames, FrameInfo{Physical: physical, Logical: logical, Sentinel: true})
			return nil
		}
		frameEnd := blocksStart + blocksLen
		if hdr.checksum {
			frameEnd += 4
		}

		cs.frames = append(cs.frames, FrameInfo{Physical: physical, Logical: logical, Len: hdr.contentSize})
		logical += hdr.contentSize
		physical = frameEnd
	}
	return nil
}

type frameHeader struct {
	contentSize uint64
	knownSize   bool
	checksum    bool
}

// readFrameHeader parses the frame header descriptor starting at off (the
// byte immediately after the 4-byte magic) and returns the decoded content
// size (if declared) and the header's length in bytes beyond the magic.
func (cs *CompressedSource) readFrameHeader(off uint64) (frameHeader, int, error) {
	var descByte [1]byte
	if _, err := cs.ra.ReadAt(descByte[:], int64(off)); err != nil {
		return frameHeader{}, 0, err
	}
	desc := descByte[0]
	fcsFlag := desc >> 6
	singleSegment := desc&(1<<5) != 0
	checksum := desc&(1<<2) != 0
	dictIDFlag := desc & 0x3

	pos := off + 1
	if !singleSegment {
		pos++ // Window_Descriptor (1 byte)
	}

	dictIDSizes := [4]int{0, 1, 2, 4}
	pos += uint64(dictIDSizes[dictIDFlag])

	var fcsFieldSize int
	switch fcsFlag {
	case 0:
		if singleSegment {
			fcsFieldSize = 1
		}
	case 1:
		fcsFieldSize = 2
	case 2:
		fcsFieldSize = 4
	case 3:
		fcsFieldSize = 8
	}

	h := frameHeader{checksum: checksum}
	if fcsFieldSize > 0 {
		buf := make([]byte, fcsFieldSize)
		if _, err := cs.ra.ReadAt(buf, int64(pos)); err != nil {
			return frameHeader{}, 0, err
		}
		switch fcsFieldSize {
		case 1:
			h.contentSize = uint64(buf[0])
		case 2:
			h.contentSize = uint64(binary.LittleEndian.Uint16(buf)) + 256
		case 4:
			h.contentSize = uint64(binary.LittleEndian.Uint32(buf))
		case 8:
			h.contentSize = binary.LittleEndian.Uint64(buf)
		}
		h.knownSize = true
		pos += uint64(fcsFieldSize)
	}

	return h, int(pos - off), nil
}

// walkBlocks scans the Data_Block sequence starting at start without
// decompressing it, summing each block's physical length (RLE blocks
// occupy exactly one physical byte regardless of their declared
// regenerated size) until the Last_Block flag is seen.
func (cs *CompressedSource) walkBlocks(start uint64) (uint64, error) {
	pos := start
	hdr := make([]byte, 3)
	for {
		if _, err := cs.ra.ReadAt(hdr, int64(pos)); err != nil {
			return 0, err
		}
		raw := uint32(hdr[0]) | uint32(hdr[1])<<8 | uint32(hdr[2])<<16
		last := raw&1 != 0
		blockType := (raw >> 1) & 0x3
		blockSize := raw >> 3
		pos += 3
		if blockType == 1 { // RLE: one physical byte regardless of blockSize
			pos++
		} else {
			pos += uint64(blockSize)
		}
		if last {
			break
		}
	}
	return pos - start, nil
}

// Len returns sum(decoded_len) across known frames, plus an estimate for a
// trailing sentinel: its remaining physical (compressed) bytes, which the
// index tolerates until decoding proves out the real length.
func (cs *CompressedSource) Len() uint64 {
	var total uint64
	for _, f := range cs.frames {
		if f.Sentinel {
			total += cs.size - f.Physical
			continue
		}
		total += f.Len
	}
	return total
}

// Poll re-scans for additional frames appended to a still-growing
// compressed stream by re-running frame scanning from the last sentinel
// (or known-length) frame's physical start.
func (cs *CompressedSource) Poll(deadline time.Time) bool {
	before := cs.Len()
	if cs.statSize != nil {
		if sz, err := cs.statSize(); err == nil {
			cs.size = sz
		}
	}
	cs.scanFrames()
	return cs.Len() > before
}

// ChunkHint returns the bounds of the frame containing target, so gap
// resolution reads and decodes exactly one frame at a time.
func (cs *CompressedSource) ChunkHint(target uint64) (uint64, uint64) {
	i := cs.frameIndexNear(target)
	f := cs.frames[i]
	end := cs.Len()
	if i+1 < len(cs.frames) {
		end = cs.frames[i+1].Logical
	}
	return f.Logical, end
}

// frameIndexNear finds the frame covering target, first probing near the
// current frame (sequential reads are the common case) before falling back
// to binary search.
func (cs *CompressedSource) frameIndexNear(target uint64) int {
	if cs.curFrame >= 0 {
		for d := -1; d <= 2; d++ {
			i := cs.curFrame + d
			if i < 0 || i >= len(cs.frames) {
				continue
			}
			if cs.frameContains(i, target) {
				return i
			}
		}
	}
	lo, hi := 0, len(cs.frames)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if cs.frames[mid].Logical <= target {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func (cs *CompressedSource) frameContains(i int, target uint64) bool {
	f := cs.frames[i]
	end := cs.Len()
	if i+1 < len(cs.frames) {
		end = cs.frames[i+1].Logical
	}
	return target >= f.Logical && target < end
}

// ReadAt decodes logical bytes starting at offset into buf, resetting the
// decoder onto a new frame's physical window when the seek target falls
// outside the frame currently being decoded.
func (cs *CompressedSource) ReadAt(buf []byte, offset uint64) (int, error) {
	if len(cs.frames) == 0 {
		return 0, io.EOF
	}
	i := cs.frameIndexNear(offset)
	f := cs.frames[i]

	if i != cs.curFrame || offset < cs.logPos {
		physEnd := cs.size
		if i+1 < len(cs.frames) {
			physEnd = cs.frames[i+1].Physical
		}
		sr := io.NewSectionReader(cs.ra, int64(f.Physical), int64(physEnd-f.Physical))
		if err := cs.dec.Reset(sr); err != nil {
			return 0, &DecoderFailureError{Detail: err.Error()}
		}
		cs.curFrame = i
		cs.logPos = f.Logical
	}

	if offset > cs.logPos {
		skip := offset - cs.logPos
		if _, err := io.CopyN(io.Discard, cs.dec, int64(skip)); err != nil {
			return 0, &DecoderFailureError{Detail: err.Error()}
		}
		cs.logPos = offset
	}

	n, err := cs.dec.Read(buf)
	cs.logPos += uint64(n)
	if err == io.EOF {
		// The decoder ran the sentinel's physical window to completion, so
		// the tail's true decoded length is now known: back-fill it in place
		// of the over-estimate. The window spans every remaining physical
		// frame (the decoder consumes concatenated frames transparently), so
		// no further sentinel is owed until Poll discovers appended bytes.
		if f := &cs.frames[cs.curFrame]; f.Sentinel {
			f.Len = cs.logPos - f.Logical
			f.Sentinel = false
		}
	}
	if err == io.EOF && n > 0 {
		err = nil
	}
	if err != nil && err != io.EOF {
		return n, &DecoderFailureError{Detail: err.Error()}
	}
	return n, err
}

func (cs *CompressedSource) Close() error {
	cs.dec.Close()
	if c, ok := cs.ra.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// DetectCompressed reports whether the first bytes at the start of ra
// carry zstd's frame magic. Only the one supported codec's magic is
// recognized; gzip/bzip2 auto-detection is out of scope.
func DetectCompressed(ra io.ReaderAt) bool {
	var buf [4]byte
	if _, err := ra.ReadAt(buf[:], 0); err != nil {
		return false
	}
	return binary.LittleEndian.Uint32(buf[:]) == zstdMagic
}
