// Package telemetry reports fatal errors to Sentry. A nil *Reporter is valid
// and reports nothing, which is what runs when no DSN is configured.
package telemetry

import (
	"time"

	"github.com/Joseda-hg/plantcare/internal/config"
	"github.com/getsentry/sentry-go"
)

type Reporter struct {
	hub *sentry.Hub
}

// New returns nil when cfg has no DSN and no transport is given. transport
// is only set by tests.
func New(cfg config.SentryConfig, release string, transport sentry.Transport) (*Reporter, error) {
	if cfg.DSN == "" && transport == nil {
		return nil, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          "plantcare@" + release,
		SampleRate:       1.0,
		AttachStacktrace: true,
		ServerName:       "",
		Transport:        transport,
		BeforeSend:       scrub,
	})
	if err != nil {
		return nil, err
	}
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *Reporter) Enabled() bool {
	return r != nil
}

// Capture sends err with the given tags and returns the event id, or "" when
// reporting is off.
func (r *Reporter) Capture(err error, tags map[string]string) string {
	if r == nil || err == nil {
		return ""
	}
	var id *sentry.EventID
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		id = r.hub.CaptureException(err)
	})
	if id == nil {
		return ""
	}
	return string(*id)
}

func (r *Reporter) Flush(timeout time.Duration) bool {
	if r == nil {
		return true
	}
	return r.hub.Flush(timeout)
}

// scrub drops cookies and credentials from request data before sending.
func scrub(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Request != nil {
		event.Request.Cookies = ""
		for header := range event.Request.Headers {
			switch header {
			case "Authorization", "Cookie", "X-Csrf-Token":
				delete(event.Request.Headers, header)
			}
		}
	}
	event.User = sentry.User{}
	return event
}
