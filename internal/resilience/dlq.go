package resilience

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// Error classes recorded on dead letters.
const (
	ErrorTransient = "transient"
	ErrorPermanent = "permanent"
)

// DeadLetter is an input record the importer gave up on, kept so it can be
// fixed and replayed.
type DeadLetter struct {
	Line      int             `json:"line"`
	Record    json.RawMessage `json:"record"`
	Error     string          `json:"error"`
	ErrorType string          `json:"error_type"`
	Attempts  int             `json:"attempts"`
	FailedAt  time.Time       `json:"failed_at"`
}

// DeadLetterWriter appends dead letters to w as JSON lines. It is safe for
// concurrent use.
type DeadLetterWriter struct {
	mu    sync.Mutex
	enc   *json.Encoder
	count int
}

// NewDeadLetterWriter returns a writer over w. A nil w discards letters but
// still counts them.
func NewDeadLetterWriter(w io.Writer) *DeadLetterWriter {
	if w == nil {
		w = io.Discard
	}
	return &DeadLetterWriter{enc: json.NewEncoder(w)}
}

// Write records a failed input line.
func (d *DeadLetterWriter) Write(line int, record []byte, attempts int, cause error) error {
	dl := DeadLetter{
		Line:      line,
		Record:    json.RawMessage(record),
		ErrorType: ClassifyError(cause),
		Attempts:  attempts,
		FailedAt:  time.Now().UTC(),
	}
	if cause != nil {
		dl.Error = cause.Error()
	}
	if !json.Valid(record) {
		quoted, _ := json.Marshal(string(record))
		dl.Record = quoted
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	return eris.Wrapf(d.enc.Encode(dl), "resilience: write dead letter line %d", line)
}

// Count returns the number of letters written.
func (d *DeadLetterWriter) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// ClassifyError reports whether err was transient or permanent.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTransient
	}
	return ErrorPermanent
}
