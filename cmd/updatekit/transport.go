package main

import (
	"errors"
	"io"

	"github.com/rs/zerolog"

	"updatekit/internal/config"
	"updatekit/internal/ipc"
	"updatekit/internal/ipc/mqttipc"
)

// transport holds the endpoints this process serves. Either side is nil
// when the role runs only the other one.
type transport struct {
	service  ipc.Endpoint
	renderer ipc.Endpoint
}

func (t *transport) Close() error {
	var errs []error
	for _, ep := range []ipc.Endpoint{t.service, t.renderer} {
		if ep == nil {
			continue
		}
		if err := ep.Close(); err != nil && !errors.Is(err, ipc.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type mqttDialer func(mqttipc.Settings) (mqttipc.Client, error)

func dialMQTT(s mqttipc.Settings) (mqttipc.Client, error) {
	return mqttipc.Dial(s)
}

// openTransport connects the service and renderer sides requested by opts.
// The stdio transport speaks JSON lines on in and out.
func openTransport(opts runtimeOptions, in io.Reader, out io.Writer, dial mqttDialer, log zerolog.Logger) (*transport, error) {
	switch opts.transport {
	case config.TransportLocal:
		svc, rnd := ipc.Pipe(ipc.DefaultPipeBuffer)
		return &transport{service: svc, renderer: rnd}, nil

	case config.TransportStdio:
		return &transport{service: ipc.NewStream(in, out, ipc.WithStreamLogger(log))}, nil

	case config.TransportMQTT:
		if dial == nil {
			dial = dialMQTT
		}
		settings := mqttipc.Settings{
			Broker:     config.GetString(config.KeyMQTTBroker),
			ClientID:   config.GetString(config.KeyMQTTClientID),
			CACertPath: config.GetString(config.KeyMQTTCACert),
		}
		prefix := config.GetString(config.KeyMQTTTopicPrefix)
		qos := byte(clampQoS(config.GetInt(config.KeyMQTTQoS)))

		t := &transport{}
		// Closing an endpoint disconnects its client, so each side dials
		// its own.
		open := func(role mqttipc.Role) (ipc.Endpoint, error) {
			client, err := dial(settings)
			if err != nil {
				return nil, err
			}
			ep, err := mqttipc.New(client, prefix, role, mqttipc.WithQoS(qos), mqttipc.WithLogger(log))
			if err != nil {
				client.Disconnect(0)
				return nil, err
			}
			return ep, nil
		}
		if opts.role != roleUI {
			ep, err := open(mqttipc.RoleService)
			if err != nil {
				return nil, err
			}
			t.service = ep
		}
		if opts.role != roleService {
			ep, err := open(mqttipc.RoleRenderer)
			if err != nil {
				_ = t.Close()
				return nil, err
			}
			t.renderer = ep
		}
		return t, nil
	}
	return nil, errors.New("unknown transport " + opts.transport)
}

func clampQoS(q int) int {
	if q < 0 {
		return 0
	}
	if q > 2 {
		return 2
	}
	return q
}
