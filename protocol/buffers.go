package protocol

// InputBuffer is a queue of received bytes the transport parses in place.
type InputBuffer interface {
	Data() []byte
	Available() int
	Pop(n int)
}

// OutputBuffer receives encoded bytes. CurPosition, Update and DataSince
// let an encoder patch the length byte once the payload is known.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer is an InputBuffer over a fixed slice.
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput is a fixed size OutputBuffer. Bytes past MessageMax are dropped.
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

// Result returns the bytes written so far. The slice is reused by later writes.
func (s *ScratchOutput) Result() []byte { return s.buf[:s.pos] }

func (s *ScratchOutput) Reset() { s.pos = 0 }

// FifoBuffer is a bounded byte queue between a reader goroutine and the
// protocol loop. It is not safe for concurrent use; callers serialise access.
type FifoBuffer struct {
	buf  []byte
	head int // first unread byte
	tail int // one past the last written byte
}

func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count written.
func (f *FifoBuffer) Write(data []byte) int {
	if len(data) > len(f.buf)-f.tail && f.head > 0 {
		f.compact()
	}
	n := copy(f.buf[f.tail:], data)
	f.tail += n
	return n
}

// Read moves up to len(data) bytes out of the queue.
func (f *FifoBuffer) Read(data []byte) int {
	n := copy(data, f.buf[f.head:f.tail])
	f.Pop(n)
	return n
}

func (f *FifoBuffer) Available() int { return f.tail - f.head }
func (f *FifoBuffer) Free() int { return len(f.buf) - f.Available() }

// Data returns the queued bytes as one contiguous slice.
func (f *FifoBuffer) Data() []byte { return f.buf[f.head:f.tail] }

func (f *FifoBuffer) Pop(n int) {
	f.head += min(n, f.Available())
	if f.head == f.tail {
		f.head, f.tail = 0, 0
	}
}

func (f *FifoBuffer) IsEmpty() bool { return f.head == f.tail }

func (f *FifoBuffer) Reset() { f.head, f.tail = 0, 0 }

func (f *FifoBuffer) compact() {
	n := copy(f.buf, f.buf[f.head:f.tail])
	f.head, f.tail = 0, n
}
