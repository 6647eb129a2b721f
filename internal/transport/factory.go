// Package transport builds authenticated SMTP handles against the fixed
// outbound relay. A handle wraps one live, authenticated connection that is
// reused for every recipient of a job.
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

var (
	// ErrAuthRejected means the relay refused the credentials.
	ErrAuthRejected = errors.New("smtp authentication rejected")
	// ErrUnreachable means the relay could not be reached at all.
	ErrUnreachable = errors.New("smtp relay unreachable")
)

// Mailer is a live sending handle bound to one sender identity.
type Mailer interface {
	Send(m *gomail.Message) error
	Close() error
}

// Dialer creates Mailers. The engine depends on this interface so tests can
// substitute a fake transport.
type Dialer interface {
	Connect(identity, secret string) (Mailer, error)
}

// Factory dials the configured relay. Host, port and security mode are
// fixed configuration; only the credentials vary per job.
type Factory struct {
	Host string
	Port int
	SSL  bool

	log *zap.Logger
}

func NewFactory(host string, port int, ssl bool, logger *zap.Logger) *Factory {
	return &Factory{Host: host, Port: port, SSL: ssl, log: logger}
}

// Connect performs the handshake eagerly so credential problems surface
// before any recipient is processed. The secret is used for the handshake
// only and is never logged.
func (f *Factory) Connect(identity, secret string) (Mailer, error) {
	d := gomail.NewDialer(f.Host, f.Port, identity, secret)
	d.SSL = f.SSL

	sc, err := d.Dial()
	if err != nil {
		f.log.Warn("smtp handshake failed",
			zap.String("host", f.Host),
			zap.Int("port", f.Port),
			zap.String("identity", identity),
			zap.Error(err),
		)
		return nil, classify(err)
	}

	f.log.Info("smtp handle ready",
		zap.String("host", f.Host),
		zap.String("identity", identity),
	)
	return &handle{sc: sc}, nil
}

// classify splits handshake failures into actionable categories where the
// underlying transport exposes the distinction.
func classify(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 530, 534, 535:
			return fmt.Errorf("%w: %v", ErrAuthRejected, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("smtp connect: %w", err)
}

type handle struct {
	sc gomail.SendCloser
}

func (h *handle) Send(m *gomail.Message) error {
	return gomail.Send(h.sc, m)
}

func (h *handle) Close() error {
	return h.sc.Close()
}
