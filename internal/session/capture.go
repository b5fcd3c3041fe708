package session

import "sync"

// ChunkStream names the recorder a chunk came from.
type ChunkStream string

const (
	// StreamCombined is the audio+video recorder kept for archival.
	StreamCombined ChunkStream = "combined"
	// StreamAudio is the audio-only recorder fed to transcription.
	StreamAudio ChunkStream = "audio"
)

const (
	MaxChunkBytes    = 1 << 20
	MaxQuestionBytes = 64 << 20
)

// CaptureRecorder buffers media chunks per question. It borrows the stream
// handle from the acquirer and never stops it.
type CaptureRecorder struct {
	mu        sync.Mutex
	stream    Stream
	question  int
	owned     bool
	capturing bool
	combined  map[int][][]byte
	sizes     map[int]int
	audio     map[int][][]byte
	audioSize map[int]int
}

func NewCaptureRecorder() *CaptureRecorder {
	return &CaptureRecorder{
		combined:  make(map[int][][]byte),
		sizes:     make(map[int]int),
		audio:     make(map[int][][]byte),
		audioSize: make(map[int]int),
	}
}

// Attach lends a live stream to the recorder. A nil stream means text-only.
func (r *CaptureRecorder) Attach(s Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stream = s
}

// StartCapture clears q's buffers and begins accepting chunks for q. It
// returns false when there is no stream to capture from.
func (r *CaptureRecorder) StartCapture(q int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		r.capturing = false
		r.owned = false
		return false
	}
	r.question = q
	r.owned = true
	r.capturing = true
	r.combined[q] = nil
	r.sizes[q] = 0
	r.audio[q] = nil
	r.audioSize[q] = 0
	return true
}

// StopCapture ends the active capture. Calling it while idle is a no-op that
// returns false.
func (r *CaptureRecorder) StopCapture() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.capturing {
		return false
	}
	r.capturing = false
	return true
}

// Capturing reports whether a capture is running.
func (r *CaptureRecorder) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capturing
}

// Write appends a chunk for question q. Chunks are accepted for the question
// the recorder currently owns, including late flushes after StopCapture.
func (r *CaptureRecorder) Write(q int, stream ChunkStream, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if len(data) > MaxChunkBytes {
		return ErrChunkTooBig
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.owned || q != r.question {
		return ErrForeignChunk
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	switch stream {
	case StreamAudio:
		if r.audioSize[q]+len(buf) > MaxQuestionBytes {
			return ErrChunkTooBig
		}
		r.audio[q] = append(r.audio[q], buf)
		r.audioSize[q] += len(buf)
	default:
		if r.sizes[q]+len(buf) > MaxQuestionBytes {
			return ErrChunkTooBig
		}
		r.combined[q] = append(r.combined[q], buf)
		r.sizes[q] += len(buf)
	}
	return nil
}

// Audio returns the audio-only chunks recorded for q.
func (r *CaptureRecorder) Audio(q int) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	chunks := r.audio[q]
	out := make([][]byte, len(chunks))
	copy(out, chunks)
	return out
}

// Combined returns the archival chunks recorded for q.
func (r *CaptureRecorder) Combined(q int) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	chunks := r.combined[q]
	out := make([][]byte, len(chunks))
	copy(out, chunks)
	return out
}

// Questions lists the questions holding archival chunks.
func (r *CaptureRecorder) Questions() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var qs []int
	for q, chunks := range r.combined {
		if len(chunks) > 0 {
			qs = append(qs, q)
		}
	}
	return qs
}

// Release drops every chunk held for q.
func (r *CaptureRecorder) Release(q int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.combined, q)
	delete(r.sizes, q)
	delete(r.audio, q)
	delete(r.audioSize, q)
}

// Reset stops capturing and forgets the stream and every buffer.
func (r *CaptureRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capturing = false
	r.owned = false
	r.stream = nil
	r.combined = make(map[int][][]byte)
	r.sizes = make(map[int]int)
	r.audio = make(map[int][][]byte)
	r.audioSize = make(map[int]int)
}
