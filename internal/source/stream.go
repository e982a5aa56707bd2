package source

import (
	"bufio"
	"io"
	"sync"
	"time"
)

// streamChunk is the unit shipped from the background reader goroutine to
// the foreground over StreamCache.chunks.
type streamChunk struct {
	data []byte
	err  error
}

// streamQueueSize bounds the background-reader-to-foreground channel; it
// throttles a producer that outruns the foreground consumer.
const streamQueueSize = 100

// streamReadSize is how much the background reader asks for per
// Read call on the underlying pipe/stdin.
const streamReadSize = 64 * 1024

// readThreshold is the margin ReadAt tries to keep buffered ahead of the
// requested offset before it stops draining the channel.
const readThreshold = 10 * 1024

// StreamCache is the Byte Source adapter that turns an unseekable
// io.Reader (a pipe or stdin) into a growing, seekable byte source: a
// background goroutine reads continuously and ships chunks over a bounded
// channel; the foreground appends them into an ever-growing buffer on
// demand.
type StreamCache struct {
	name string

	mu     sync.Mutex
	buf    []byte
	closed bool
	err    error

	chunks chan streamChunk
}

// OpenStream starts the background reader over r and returns a Source.
func OpenStream(r io.Reader, name string) *StreamCache {
	sc := &StreamCache{name: name, chunks: make(chan streamChunk, streamQueueSize)}
	go sc.pump(r)
	return sc
}

func (sc *StreamCache) pump(r io.Reader) {
	br := bufio.NewReaderSize(r, streamReadSize)
	for {
		buf := make([]byte, streamReadSize)
		n, err := br.Read(buf)
		if n > 0 {
			sc.chunks <- streamChunk{data: buf[:n]}
		}
		if err != nil {
			sc.chunks <- streamChunk{err: err}
			close(sc.chunks)
			return
		}
	}
}

func (sc *StreamCache) Name() string { return sc.name }

// drainAvailable appends chunks already sitting in the channel, without
// blocking, until the channel is empty or the buffer holds at least until
// bytes.
func (sc *StreamCache) drainAvailable(until uint64) {
	for sc.bufLen() < until {
		select {
		case c, ok := <-sc.chunks:
			if !ok {
				return
			}
			sc.applyChunk(c)
		default:
			return
		}
	}
}

// drainBlocking waits for exactly one chunk (or channel closure).
func (sc *StreamCache) drainBlocking() {
	c, ok := <-sc.chunks
	if !ok {
		return
	}
	sc.applyChunk(c)
}

func (sc *StreamCache) applyChunk(c streamChunk) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if c.err != nil {
		sc.closed = true
		if c.err != io.EOF {
			sc.err = c.err
		}
		return
	}
	sc.buf = append(sc.buf, c.data...)
}

func (sc *StreamCache) bufLen() uint64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return uint64(len(sc.buf))
}

// Len reports the bytes buffered so far. It does not block waiting for
// more; WaitForEnd blocks until the stream has ended, after which Len is
// final.
func (sc *StreamCache) Len() uint64 { return sc.bufLen() }

// ReadAt drains the channel into the buffer until either the channel runs
// dry or the buffer covers offset+len(buf)+readThreshold. If offset lies
// beyond what's buffered, it blocks for one more chunk and retries.
func (sc *StreamCache) ReadAt(buf []byte, offset uint64) (int, error) {
	for {
		sc.drainAvailable(offset + uint64(len(buf)) + readThreshold)

		sc.mu.Lock()
		bufLen := uint64(len(sc.buf))
		closed := sc.closed
		err := sc.err
		sc.mu.Unlock()

		if offset < bufLen {
			sc.mu.Lock()
			n := copy(buf, sc.buf[offset:])
			sc.mu.Unlock()
			return n, nil
		}
		if closed {
			if err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		sc.drainBlocking()
	}
}

// Poll drains whatever has arrived since the last call, waiting up to
// deadline for at least one more chunk if nothing is immediately
// available, and reports whether the buffer grew.
func (sc *StreamCache) Poll(deadline time.Time) bool {
	before := sc.bufLen()
	sc.drainAvailable(^uint64(0))
	if sc.bufLen() == before && !sc.isClosed() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case c, ok := <-sc.chunks:
			if ok {
				sc.applyChunk(c)
			}
		case <-timer.C:
		}
	}
	return sc.bufLen() > before
}

func (sc *StreamCache) isClosed() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.closed
}

// WaitForEnd blocks, draining the channel, until the source reports EOF
// (or error), so that Len afterwards is the stream's final length.
func (sc *StreamCache) WaitForEnd() {
	for !sc.isClosed() {
		sc.drainBlocking()
	}
}

// ChunkHint returns a fixed window starting at target; streams have no
// natural alignment to advise beyond "read forward from here."
func (sc *StreamCache) ChunkHint(target uint64) (uint64, uint64) {
	return target, target + streamReadSize
}

// Close returns nil and releases nothing: the background reader goroutine
// keeps running until the underlying reader reports EOF or an error.
func (sc *StreamCache) Close() error {
	return nil
}
