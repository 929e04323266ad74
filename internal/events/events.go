// Package events publishes job lifecycle and progress events to NATS.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/mailmerge/internal/orchestrator"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is prepended to the job ID to form a subject.
const DefaultSubjectPrefix = "mailmerge.jobs"

// Publisher is the part of *nats.Conn the observer needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

var _ orchestrator.Observer = (*NATSObserver)(nil)

// NATSObserver publishes every orchestrator event as JSON on
// "{prefix}.{jobID}". Publish failures are logged and dropped.
type NATSObserver struct {
	pub    Publisher
	prefix string
	logger *zap.Logger
}

// NewNATSObserver returns an observer over pub. An empty prefix uses
// DefaultSubjectPrefix; a nil logger discards logs.
func NewNATSObserver(pub Publisher, prefix string, logger *zap.Logger) *NATSObserver {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSObserver{pub: pub, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Subject returns the subject events for jobID are published on.
func (o *NATSObserver) Subject(jobID string) string {
	return o.prefix + "." + jobID
}

// Emit implements orchestrator.Observer. nats.Conn buffers publishes, so
// this does not wait on the network.
func (o *NATSObserver) Emit(ev orchestrator.ProgressEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		o.logger.Warn("encode event", zap.String("job_id", ev.JobID), zap.Error(err))
		return
	}
	if err := o.pub.Publish(o.Subject(ev.JobID), data); err != nil {
		o.logger.Warn("publish event",
			zap.String("job_id", ev.JobID),
			zap.String("subject", o.Subject(ev.JobID)),
			zap.Error(err),
		)
	}
}

// Connect dials the NATS server at url with reconnects enabled.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("mailmerge"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect %s: %w", url, err)
	}
	return nc, nil
}
