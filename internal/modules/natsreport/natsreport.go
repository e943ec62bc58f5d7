// Package natsreport provides the nats reporter: it publishes a JSON event
// for every lifecycle stage of the run to a NATS subject.
package natsreport

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/module"
)

// Implementation is the catalog name of the reporter.
const Implementation = "nats"

const (
	keyURL     = "url"
	keySubject = "subject"

	defaultSubject = "loadcore.lifecycle"
	connectTimeout = 5 * time.Second
	flushTimeout   = 5 * time.Second
)

// Event is the message published for each stage.
type Event struct {
	RunID          string    `json:"run_id"`
	Stage          string    `json:"stage"`
	Time           time.Time `json:"time"`
	StoppingReason string    `json:"stopping_reason,omitempty"`
}

// Publisher is the part of a NATS connection the reporter uses.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Dialer opens a Publisher for url.
type Dialer func(url string) (Publisher, error)

// Reporter publishes lifecycle events.
type Reporter struct {
	module.Base

	dial    Dialer
	now     func() time.Time
	subject string
	conn    Publisher
}

var _ module.Module = (*Reporter)(nil)

// New creates a reporter connecting with nats.Connect.
func New() module.Module {
	return NewWithDialer(dialNATS)
}

// NewWithDialer creates a reporter using dial to connect.
func NewWithDialer(dial Dialer) *Reporter {
	return &Reporter{dial: dial, now: time.Now}
}

func dialNATS(url string) (Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("loadcore"), nats.Timeout(connectTimeout))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Prepare connects and publishes the prepare event.
func (r *Reporter) Prepare(context.Context) error {
	url, err := r.OptionString(keyURL, nats.DefaultURL)
	if err != nil {
		return err
	}
	if r.subject, err = r.OptionString(keySubject, defaultSubject); err != nil {
		return err
	}

	conn, err := r.dial(url)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to connect to NATS").
			WithContext("url", url).
			Build()
	}
	r.conn = conn
	r.Log().Info("NATS reporter connected", slog.String("url", url), slog.String("subject", r.subject))
	return r.publish("prepare")
}

func (r *Reporter) Startup(context.Context) error {
	return r.publish("startup")
}

func (r *Reporter) Shutdown(context.Context) error {
	return r.publish("shutdown")
}

// PostProcess publishes the final event, flushes and closes the connection.
func (r *Reporter) PostProcess(context.Context) error {
	if r.conn == nil {
		return nil
	}
	defer func() {
		r.conn.Close()
		r.conn = nil
	}()
	if err := r.publish("post-process"); err != nil {
		return err
	}
	if err := r.conn.FlushTimeout(flushTimeout); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to flush NATS connection").Build()
	}
	return nil
}

func (r *Reporter) publish(stage string) error {
	if r.conn == nil {
		return nil
	}
	event := Event{
		RunID: r.Host().RunID(),
		Stage: stage,
		Time:  r.now().UTC(),
	}
	if reason := r.Host().StoppingReason(); reason != nil {
		event.StoppingReason = reason.Error()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal event").Build()
	}
	if err := r.conn.Publish(r.subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to publish event").
			WithContext("subject", r.subject).
			Build()
	}
	r.Log().Debug("Published lifecycle event", logfields.Stage(stage), slog.String("subject", r.subject))
	return nil
}
