package protocol

// InputBuffer is a queue of received bytes that the transport consumes
type InputBuffer interface {
	Data() []byte
	Available() int
	Pop(n int)
}

// OutputBuffer collects bytes of outgoing frames. Update and DataSince let
// the encoder patch the length byte and checksum a frame after writing it.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer adapts a byte slice to InputBuffer
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput is a fixed array OutputBuffer. Writes past the end are
// truncated rather than grown, so it never allocates after creation.
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int { return s.pos }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset
func (s *ScratchOutput) Result() []byte { return s.buf[:s.pos] }

// Reset empties the buffer
func (s *ScratchOutput) Reset() { s.pos = 0 }

// FifoBuffer is a ring of bytes between a reader (USB, UART, serial port)
// and the frame decoder.
type FifoBuffer struct {
	buf   []byte
	head  int // next byte to read
	count int
	flat  []byte // scratch used by Data when the contents wrap
}

// NewFifoBuffer allocates a ring holding up to capacity bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf:  make([]byte, capacity),
		flat: make([]byte, 0, capacity),
	}
}

// Write appends as much of data as fits and returns how much that was
func (f *FifoBuffer) Write(data []byte) int {
	n := min(len(data), f.Free())
	for i := 0; i < n; i++ {
		f.buf[(f.head+f.count+i)%len(f.buf)] = data[i]
	}
	f.count += n
	return n
}

// Read moves up to len(data) bytes out of the ring
func (f *FifoBuffer) Read(data []byte) int {
	n := min(len(data), f.count)
	for i := 0; i < n; i++ {
		data[i] = f.buf[(f.head+i)%len(f.buf)]
	}
	f.Pop(n)
	return n
}

func (f *FifoBuffer) Available() int { return f.count }
func (f *FifoBuffer) Free() int      { return len(f.buf) - f.count }
func (f *FifoBuffer) IsEmpty() bool  { return f.count == 0 }

// Data returns the buffered bytes as one contiguous slice. When the
// contents wrap they are copied into a scratch slice; the result is valid
// until the next Write or Pop.
func (f *FifoBuffer) Data() []byte {
	end := f.head + f.count
	if end <= len(f.buf) {
		return f.buf[f.head:end]
	}
	f.flat = append(f.flat[:0], f.buf[f.head:]...)
	return append(f.flat, f.buf[:end-len(f.buf)]...)
}

// Pop discards n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	n = min(n, f.count)
	f.count -= n
	if f.count == 0 {
		f.head = 0
		return
	}
	f.head = (f.head + n) % len(f.buf)
}

// Reset empties the ring
func (f *FifoBuffer) Reset() {
	f.head = 0
	f.count = 0
}
