package trace

// Sink receives diagnostic records. Emit is fire-and-forget: implementations
// must not block on I/O and have no way to fail the caller.
type Sink interface {
	Emit(r Record)
}

// Discard drops every record.
type Discard struct{}

func (Discard) Emit(Record) {}

// Multi fans a record out to several sinks in order.
type Multi []Sink

func (m Multi) Emit(r Record) {
	for _, s := range m {
		s.Emit(r)
	}
}

// Recorder collects records in memory.
type Recorder struct {
	Records []Record
}

// NewRecorder creates a Recorder ready for recording.
func NewRecorder() *Recorder {
	return &Recorder{Records: make([]Record, 0)}
}

// Emit appends r.
func (rec *Recorder) Emit(r Record) {
	rec.Records = append(rec.Records, r)
}

// Named returns the records with the given event name, in emission order.
func (rec *Recorder) Named(name string) []Record {
	var out []Record
	for _, r := range rec.Records {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Reset discards everything recorded so far.
func (rec *Recorder) Reset() {
	rec.Records = rec.Records[:0]
}
