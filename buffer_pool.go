package go_nrepl

import (
	"sync"
	"sync/atomic"
)

// bufferPool manages reusable byte slices to reduce GC pressure.
// Uses sync.Pool with size-based buckets for efficient allocation.
//
// Size classes:
//   - 512 bytes:  control requests (clone, interrupt, close)
//   - 4096 bytes: typical eval requests
//   - 16384 bytes: socket read chunks
//   - 65536 bytes: large code submissions
type bufferPool struct {
	pool512 sync.Pool
	pool4K  sync.Pool
	pool16K sync.Pool
	pool64K sync.Pool
	enabled atomic.Bool

	gets          [4]atomic.Uint64
	puts          [4]atomic.Uint64
	getsOversized atomic.Uint64
}

var bufferClasses = [4]int{512, 4096, 16384, 65536}

func newBufferPool() *bufferPool {
	bp := &bufferPool{}
	for i, pool := range bp.pools() {
		size := bufferClasses[i]
		pool.New = func() interface{} {
			buf := make([]byte, 0, size)
			return &buf
		}
	}
	bp.enabled.Store(true)
	return bp
}

func (bp *bufferPool) pools() [4]*sync.Pool {
	return [4]*sync.Pool{&bp.pool512, &bp.pool4K, &bp.pool16K, &bp.pool64K}
}

// Global buffer pool instance
var globalBufferPool = newBufferPool()

// EnableBufferPool enables pooling of encode buffers and read chunks.
// Pooling is on by default.
func EnableBufferPool() {
	globalBufferPool.enabled.Store(true)
}

// DisableBufferPool disables global buffer pooling.
// After calling this, every buffer is freshly allocated.
func DisableBufferPool() {
	globalBufferPool.enabled.Store(false)
}

// IsBufferPoolEnabled returns whether buffer pooling is currently enabled.
func IsBufferPoolEnabled() bool {
	return globalBufferPool.enabled.Load()
}

func classFor(size int) int {
	for i, c := range bufferClasses {
		if size <= c {
			return i
		}
	}
	return -1
}

// GetBuffer retrieves a buffer from the appropriate pool based on requested size.
// Returns a buffer with capacity >= size. The buffer's length is 0.
func (bp *bufferPool) GetBuffer(size int) []byte {
	if !bp.enabled.Load() {
		return make([]byte, 0, size)
	}
	class := classFor(size)
	if class < 0 {
		bp.getsOversized.Add(1)
		return make([]byte, 0, size)
	}
	bp.gets[class].Add(1)
	bufPtr := bp.pools()[class].Get().(*[]byte)
	return (*bufPtr)[:0]
}

// PutBuffer returns a buffer to the appropriate pool for reuse.
// Buffers whose capacity is not exactly a size class are left to the GC.
func (bp *bufferPool) PutBuffer(buf []byte) {
	if !bp.enabled.Load() || buf == nil {
		return
	}
	buf = buf[:0]
	for i, c := range bufferClasses {
		if cap(buf) == c {
			bp.puts[i].Add(1)
			bp.pools()[i].Put(&buf)
			return
		}
	}
}

// BufferPoolStats reports buffer pool usage per size class.
type BufferPoolStats struct {
	Gets512       uint64
	Gets4K        uint64
	Gets16K       uint64
	Gets64K       uint64
	GetsOversized uint64
	Puts512       uint64
	Puts4K        uint64
	Puts16K       uint64
	Puts64K       uint64
}

// GetBufferPoolStats returns current buffer pool statistics.
// Returns nil if buffer pooling is disabled.
func GetBufferPoolStats() *BufferPoolStats {
	bp := globalBufferPool
	if !bp.enabled.Load() {
		return nil
	}
	return &BufferPoolStats{
		Gets512:       bp.gets[0].Load(),
		Gets4K:        bp.gets[1].Load(),
		Gets16K:       bp.gets[2].Load(),
		Gets64K:       bp.gets[3].Load(),
		GetsOversized: bp.getsOversized.Load(),
		Puts512:       bp.puts[0].Load(),
		Puts4K:        bp.puts[1].Load(),
		Puts16K:       bp.puts[2].Load(),
		Puts64K:       bp.puts[3].Load(),
	}
}

// encodePooled frames m into a pooled buffer. The caller must hand the
// returned slice back with releaseBuffer once it has been written.
func encodePooled(m *Message) ([]byte, error) {
	if m == nil || m.Dict == nil {
		return nil, &EncodeError{Kind: "nil message"}
	}
	buf := globalBufferPool.GetBuffer(512)
	out, err := AppendValue(buf, m.Dict)
	if err != nil {
		globalBufferPool.PutBuffer(buf)
		return nil, err
	}
	return out, nil
}

func releaseBuffer(buf []byte) {
	globalBufferPool.PutBuffer(buf)
}
