package audio

// Framer regroups an arbitrary run of samples into fixed-size blocks.
// It is not safe for concurrent use.
type Framer struct {
	size int
	buf  []float32
}

func NewFramer(size int) *Framer {
	if size <= 0 {
		size = 1
	}
	return &Framer{size: size, buf: make([]float32, 0, size)}
}

// Push appends samples and calls emit once per completed block. The block
// passed to emit is freshly allocated and may be retained.
func (f *Framer) Push(samples []float32, emit func([]float32)) {
	for len(samples) > 0 {
		n := min(f.size-len(f.buf), len(samples))
		f.buf = append(f.buf, samples[:n]...)
		samples = samples[n:]
		if len(f.buf) == f.size {
			block := make([]float32, f.size)
			copy(block, f.buf)
			f.buf = f.buf[:0]
			emit(block)
		}
	}
}

// Buffered returns the number of samples waiting for a full block.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset drops any partial block.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
