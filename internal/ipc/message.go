// Package ipc carries status and command messages between the update
// service and the status renderer. Messages are one-way: a sender never
// waits for a reply.
package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"updatekit/internal/status"
)

// Kind distinguishes the two message families on the wire.
type Kind string

const (
	// KindStatus flows from the service to the renderer.
	KindStatus Kind = "status"
	// KindCommand flows from the renderer to the service.
	KindCommand Kind = "command"
)

// ErrNoPayload is returned by Decode when the message carries no payload.
var ErrNoPayload = errors.New("message has no payload")

// Message is the unit exchanged over an Endpoint.
type Message struct {
	Kind    Kind            `json:"kind"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StatusMessage builds a status message. A nil payload produces a message
// without payload.
func StatusMessage(s status.Status, payload any) (Message, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", s, err)
	}
	return Message{Kind: KindStatus, Name: string(s), Payload: raw}, nil
}

// CommandMessage builds a command message.
func CommandMessage(c status.Command) Message {
	return Message{Kind: KindCommand, Name: string(c)}
}

// Status returns the status carried by a status message.
func (m Message) Status() (status.Status, error) {
	if m.Kind != KindStatus {
		return "", fmt.Errorf("message kind %q is not a status", m.Kind)
	}
	return status.Parse(m.Name)
}

// Command returns the command carried by a command message.
func (m Message) Command() (status.Command, error) {
	if m.Kind != KindCommand {
		return "", fmt.Errorf("message kind %q is not a command", m.Kind)
	}
	return status.ParseCommand(m.Name)
}

// HasPayload reports whether the message carries a non-null payload.
func (m Message) HasPayload() bool {
	trimmed := bytes.TrimSpace(m.Payload)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if !m.HasPayload() {
		return ErrNoPayload
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Name, err)
	}
	return nil
}

// Validate checks that the message names a known status or command.
func (m Message) Validate() error {
	switch m.Kind {
	case KindStatus:
		_, err := m.Status()
		return err
	case KindCommand:
		_, err := m.Command()
		return err
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
}

func (m Message) String() string {
	return string(m.Kind) + "/" + m.Name
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	return json.Marshal(payload)
}
