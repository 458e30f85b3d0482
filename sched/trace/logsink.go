package trace

import "github.com/sirupsen/logrus"

// LogSink writes every record as a structured logrus entry whose message is
// the event name.
type LogSink struct {
	Logger *logrus.Logger
	Level  logrus.Level
}

// NewLogSink creates a LogSink. A nil logger selects logrus.StandardLogger().
func NewLogSink(logger *logrus.Logger, level logrus.Level) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{Logger: logger, Level: level}
}

func (s *LogSink) Emit(r Record) {
	if !s.Logger.IsLevelEnabled(s.Level) {
		return
	}
	fields := make(logrus.Fields, len(r.Fields)+3)
	fields["core"] = r.Core
	fields["clock"] = r.Clock
	if r.TID != 0 {
		fields["tid"] = r.TID
	}
	for _, f := range r.Fields {
		fields[f.Key] = f.Value
	}
	s.Logger.WithFields(fields).Log(s.Level, r.Name)
}
