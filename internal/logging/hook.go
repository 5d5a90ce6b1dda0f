package logging

import "github.com/sirupsen/logrus"

// ProgressSink receives error and warning log entries so the WebSocket progress
// stream (internal/api) can surface them without logging depending on api.
type ProgressSink interface {
	PublishLog(auditID, level, message string)
}

// CorrelationHook fans error/warn entries carrying an audit_id field out to a
// ProgressSink, mirroring how the teacher's WebSocketLogHook fans workflow log
// lines out to its EventBus.
type CorrelationHook struct {
	sink ProgressSink
}

// NewCorrelationHook builds a hook publishing through sink.
func NewCorrelationHook(sink ProgressSink) *CorrelationHook {
	return &CorrelationHook{sink: sink}
}

func (h *CorrelationHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.ErrorLevel, logrus.WarnLevel}
}

func (h *CorrelationHook) Fire(entry *logrus.Entry) error {
	if h.sink == nil {
		return nil
	}
	auditID, ok := entry.Data["audit_id"].(string)
	if !ok || auditID == "" {
		return nil
	}
	h.sink.PublishLog(auditID, entry.Level.String(), entry.Message)
	return nil
}
