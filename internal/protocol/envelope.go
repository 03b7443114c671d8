package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the serialized form of a message on the channel and in the
// journal.
type Envelope struct {
	Subject Subject         `json:"subject"`
	Seq     int64           `json:"seq"`
	Data    json.RawMessage `json:"data"`
}

// Encode serializes m with its sequence number.
func Encode(seq int64, m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Subject(), err)
	}
	return json.Marshal(Envelope{Subject: m.Subject(), Seq: seq, Data: data})
}

// Decode parses an envelope and its typed payload.
func Decode(b []byte) (Message, int64, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, 0, InvalidMessage("", err)
	}
	m, err := DecodeData(env.Subject, env.Data)
	if err != nil {
		return nil, 0, err
	}
	return m, env.Seq, nil
}

// DecodeData parses the payload of a message with a known subject.
func DecodeData(subject Subject, data []byte) (Message, error) {
	var (
		m   Message
		err error
	)
	switch subject {
	case SubjectCreateNode:
		m, err = decodeInto[CreateNode](data)
	case SubjectChangeNode:
		m, err = decodeInto[ChangeNode](data)
	case SubjectDisposeNode:
		m, err = decodeInto[DisposeNode](data)
	case SubjectCreateMesh:
		m, err = decodeInto[CreateMesh](data)
	case SubjectChangeMesh:
		m, err = decodeInto[ChangeMesh](data)
	case SubjectDisposeMesh:
		m, err = decodeInto[DisposeMesh](data)
	case SubjectCreatePrimitive:
		m, err = decodeInto[CreatePrimitive](data)
	case SubjectChangePrimitive:
		m, err = decodeInto[ChangePrimitive](data)
	case SubjectDisposePrimitive:
		m, err = decodeInto[DisposePrimitive](data)
	case SubjectCreateMaterial:
		m, err = decodeInto[CreateMaterial](data)
	case SubjectChangeMaterial:
		m, err = decodeInto[ChangeMaterial](data)
	case SubjectDisposeMaterial:
		m, err = decodeInto[DisposeMaterial](data)
	case SubjectPointerDown:
		m, err = decodeInto[PointerDown](data)
	case SubjectPointerMove:
		m, err = decodeInto[PointerMove](data)
	case SubjectPointerUp:
		m, err = decodeInto[PointerUp](data)
	case SubjectClickedNode:
		m, err = decodeInto[ClickedNode](data)
	case SubjectGesture:
		m, err = decodeInto[Gesture](data)
	default:
		return nil, InvalidMessage(subject, fmt.Errorf("unknown subject"))
	}
	if err != nil {
		return nil, InvalidMessage(subject, err)
	}
	return m, nil
}

func decodeInto[T Message](data []byte) (Message, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
