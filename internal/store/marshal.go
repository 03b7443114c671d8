package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/scenesync/internal/protocol"
)

// marshalMessage converts a message payload to canonical JSON TEXT for
// storage.
func marshalMessage(m protocol.Message) (string, error) {
	data, err := protocol.MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", m.Subject(), err)
	}
	return string(data), nil
}

// unmarshalMessage parses a stored payload back into its typed message.
func unmarshalMessage(subject string, data string) (protocol.Message, error) {
	if !json.Valid([]byte(data)) {
		return nil, fmt.Errorf("unmarshal %s: invalid JSON", subject)
	}
	m, err := protocol.DecodeData(protocol.Subject(subject), []byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", subject, err)
	}
	return m, nil
}

// entityOf returns the (kind, id) a message is about, or empty strings for
// input and result messages.
func entityOf(m protocol.Message) (protocol.Kind, string) {
	if em, ok := m.(protocol.EntityMessage); ok {
		return em.Entity()
	}
	return "", ""
}
