// Package mqttipc carries ipc messages over an MQTT broker. Each message is
// published on <prefix>/<kind>/<name> with the JSON payload as body.
package mqttipc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appErrors "updatekit/internal/errors"
	"updatekit/internal/ipc"
)

// Client is the subset of the paho client used by the endpoint.
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Role selects which message kind an endpoint publishes and which it receives.
type Role int

const (
	// RoleService publishes statuses and receives commands.
	RoleService Role = iota
	// RoleRenderer publishes commands and receives statuses.
	RoleRenderer
)

func (r Role) kinds() (send, receive ipc.Kind) {
	if r == RoleRenderer {
		return ipc.KindCommand, ipc.KindStatus
	}
	return ipc.KindStatus, ipc.KindCommand
}

const disconnectQuiesceMillis = 250

// Topic returns the topic a message of the given kind and name is published on.
func Topic(prefix string, kind ipc.Kind, name string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + string(kind) + "/" + name
}

// Endpoint is an ipc.Endpoint backed by MQTT.
type Endpoint struct {
	client  Client
	prefix  string
	qos     byte
	send    ipc.Kind
	receive ipc.Kind
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	in     chan ipc.Message
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithQoS sets the quality of service for publish and subscribe.
func WithQoS(qos byte) Option {
	return func(e *Endpoint) {
		if qos <= 2 {
			e.qos = qos
		}
	}
}

// WithLogger sets the endpoint logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Endpoint) {
		e.log = l
	}
}

// New subscribes to the inbound topics for role and returns the endpoint.
// The client must already be connected.
func New(client Client, prefix string, role Role, opts ...Option) (*Endpoint, error) {
	send, receive := role.kinds()
	e := &Endpoint{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     1,
		send:    send,
		receive: receive,
		log:     zerolog.Nop(),
		in:      make(chan ipc.Message, ipc.DefaultPipeBuffer),
	}
	for _, opt := range opts {
		opt(e)
	}

	token := client.Subscribe(e.inboundFilter(), e.qos, e.onMessage)
	if token.Wait() && token.Error() != nil {
		return nil, appErrors.New(appErrors.CodeTransportError, "subscribe to "+e.inboundFilter(), token.Error())
	}
	return e, nil
}

func (e *Endpoint) inboundFilter() string {
	return e.prefix + "/" + string(e.receive) + "/+"
}

func (e *Endpoint) onMessage(_ mqtt.Client, m mqtt.Message) {
	base := e.prefix + "/" + string(e.receive) + "/"
	name, ok := strings.CutPrefix(m.Topic(), base)
	if !ok || name == "" {
		return
	}
	msg := ipc.Message{Kind: e.receive, Name: name}
	if payload := m.Payload(); len(payload) > 0 {
		msg.Payload = append([]byte(nil), payload...)
	}
	if err := msg.Validate(); err != nil {
		e.log.Warn().Err(err).Str("topic", m.Topic()).Msg("ignoring unknown message")
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.in <- msg:
	default:
		e.log.Warn().Str("message", msg.String()).Msg("inbound buffer full, dropping message")
	}
}

// Send publishes msg on its topic and waits for the broker to accept it.
func (e *Endpoint) Send(ctx context.Context, msg ipc.Message) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ipc.ErrClosed
	}
	if msg.Kind != e.send {
		return fmt.Errorf("endpoint publishes %s messages, got %s", e.send, msg.Kind)
	}

	var body []byte
	if msg.HasPayload() {
		body = []byte(msg.Payload)
	}
	topic := Topic(e.prefix, msg.Kind, msg.Name)
	token := e.client.Publish(topic, e.qos, false, body)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return appErrors.New(appErrors.CodeTransportError, "publish "+topic, err)
	}
	return nil
}

// Receive implements ipc.Endpoint.
func (e *Endpoint) Receive() <-chan ipc.Message {
	return e.in
}

// Close unsubscribes and disconnects the client.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.in)
	e.mu.Unlock()

	token := e.client.Unsubscribe(e.inboundFilter())
	token.WaitTimeout(time.Second)
	e.client.Disconnect(disconnectQuiesceMillis)
	return token.Error()
}

// Settings describe how to reach the broker.
type Settings struct {
	Broker     string
	ClientID   string
	CACertPath string
}

// Dial connects a paho client. A random suffix is appended to the client id
// so several processes can share one configured id. A CA certificate path
// enables TLS.
func Dial(s Settings) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.Broker)
	opts.SetClientID(s.ClientID + "-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)

	if strings.TrimSpace(s.CACertPath) != "" {
		tlsConfig, err := loadTLSConfig(s.CACertPath)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, appErrors.New(appErrors.CodeTransportError, "connect to "+s.Broker, token.Error())
	}
	return client, nil
}

func loadTLSConfig(caCertPath string) (*tls.Config, error) {
	//nolint:gosec // G304: CA path comes from configuration
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, appErrors.New(appErrors.CodeConfigurationError, "read CA certificate", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, appErrors.New(appErrors.CodeConfigurationError, "append CA certificate", nil)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}
