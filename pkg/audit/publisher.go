package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// BundlePublisher fans a snapshot bundle out to an external subscriber
// over NATS whenever one is configured, so other services (dashboards,
// long-term archival) can consume the audit trail without polling the
// in-process log. Wiring is optional: with no URL configured,
// PublishBundle is a no-op.
type BundlePublisher struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

// NewBundlePublisher connects to url and returns a publisher that
// publishes to subject. A blank url disables publishing entirely.
func NewBundlePublisher(url, subject string, log *slog.Logger) (*BundlePublisher, error) {
	if log == nil {
		log = slog.Default()
	}
	if url == "" {
		return &BundlePublisher{log: log}, nil
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("audit: connecting to nats at %s: %w", url, err)
	}
	return &BundlePublisher{conn: conn, subject: subject, log: log}, nil
}

// PublishBundle serializes and publishes bundle. No-op if no connection
// was configured.
func (p *BundlePublisher) PublishBundle(bundle Bundle) error {
	if p.conn == nil {
		return nil
	}
	payload, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("audit: marshaling bundle %s: %w", bundle.BundleID, err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.log.Error("audit: bundle publish failed", "bundle_id", bundle.BundleID, "error", err)
		return err
	}
	return nil
}

// Close drains and closes the underlying connection, if any.
func (p *BundlePublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
