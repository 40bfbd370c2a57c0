package monitor

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// StatusSubject is where status reports are published
const StatusSubject = "leadscrew.status"

// Publisher sends a message to a subject
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// ConnectNATS connects to a NATS server and keeps reconnecting for the
// life of the monitor
func ConnectNATS(url string, logger *log.Entry) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("leadscrew-monitor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}
