// Package notifier implements a NATS-backed notification sink. Publishing is
// fire-and-forget: a failed publish is logged and swallowed so that
// notification delivery can never fail a settlement operation.
package notifier

import (
	"encoding/json"
	"fmt"

	"github.com/danilovkiri/dk-go-settler/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

type notification struct {
	UserID   string            `json:"user_id"`
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Notifier defines attributes of a struct available to its methods.
type Notifier struct {
	conn    *nats.Conn
	subject string
	log     *zerolog.Logger
}

// InitNotifier connects to NATS and returns a sink. An absent NATS URL or a
// failed connection degrades to a log-only sink rather than an error.
func InitNotifier(cfg *config.NotifierConfig, log *zerolog.Logger) *Notifier {
	if cfg.NatsURL == "" {
		log.Warn().Msg("NATS URL is not set, notifications will only be logged")
		return &Notifier{subject: cfg.Subject, log: log}
	}
	conn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		log.Warn().Err(err).Msg("NATS connection failed, notifications will only be logged")
		return &Notifier{subject: cfg.Subject, log: log}
	}
	log.Info().Msg("NATS notification sink initialized")
	return &Notifier{conn: conn, subject: cfg.Subject, log: log}
}

// Notify publishes one notification and never returns an error.
func (n *Notifier) Notify(userID, notificationType, title, body string, metadata map[string]string) {
	payload, err := json.Marshal(notification{
		UserID:   userID,
		Type:     notificationType,
		Title:    title,
		Body:     body,
		Metadata: metadata,
	})
	if err != nil {
		n.log.Error().Err(err).Msg(fmt.Sprintf("could not marshal notification for %s", userID))
		return
	}
	if n.conn == nil {
		n.log.Info().Msg(fmt.Sprintf("notification for %s: %s", userID, string(payload)))
		return
	}
	err = n.conn.Publish(n.subject, payload)
	if err != nil {
		n.log.Error().Err(err).Msg(fmt.Sprintf("could not publish notification for %s", userID))
	}
}
