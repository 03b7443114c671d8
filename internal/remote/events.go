// Package remote mirrors other players reported by the space host into the
// scene store.
//
// Host events arrive already validated by the transport. Each joined player
// becomes a node "player-<id>" with a cylinder collider, placed at the
// world's default spawn point; later events are applied as ordinary node
// patches so both mirrors see them like any local edit.
package remote

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/scenesync/internal/protocol"
)

// EventType names a host event.
type EventType string

const (
	EventPlayerJoined   EventType = "player_joined"
	EventPlayerLeft     EventType = "player_left"
	EventPlayerChat     EventType = "player_chat"
	EventPlayerGrounded EventType = "player_grounded"
	EventPlayerName     EventType = "player_name"
	EventPlayerAvatar   EventType = "player_avatar"
	EventPlayerAddress  EventType = "player_address"
	EventPlayerLocation EventType = "player_location"
)

// MaxPlayerID is the largest player id the host assigns.
const MaxPlayerID = 255

// Event is a decoded host event.
type Event interface {
	Type() EventType
	Player() int
}

// PlayerJoined announces a player. Nil fields were not set by the player.
type PlayerJoined struct {
	PlayerID  int     `json:"playerId"`
	Name      *string `json:"name"`
	Avatar    *string `json:"avatar"`
	Address   *string `json:"address"`
	BeforeYou bool    `json:"beforeYou,omitempty"`
}

type PlayerLeft struct {
	PlayerID int `json:"playerId"`
}

type PlayerChat struct {
	PlayerID  int    `json:"playerId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type PlayerGrounded struct {
	PlayerID int  `json:"playerId"`
	Grounded bool `json:"grounded"`
}

type PlayerName struct {
	PlayerID int     `json:"playerId"`
	Name     *string `json:"name"`
}

type PlayerAvatar struct {
	PlayerID int     `json:"playerId"`
	Avatar   *string `json:"avatar"`
}

type PlayerAddress struct {
	PlayerID int     `json:"playerId"`
	Address  *string `json:"address"`
}

// PlayerLocation moves a player. Yaw is in radians about +y.
type PlayerLocation struct {
	PlayerID int           `json:"playerId"`
	Position protocol.Vec3 `json:"position"`
	Yaw      float64       `json:"rotation"`
}

func (PlayerJoined) Type() EventType   { return EventPlayerJoined }
func (PlayerLeft) Type() EventType     { return EventPlayerLeft }
func (PlayerChat) Type() EventType     { return EventPlayerChat }
func (PlayerGrounded) Type() EventType { return EventPlayerGrounded }
func (PlayerName) Type() EventType     { return EventPlayerName }
func (PlayerAvatar) Type() EventType   { return EventPlayerAvatar }
func (PlayerAddress) Type() EventType  { return EventPlayerAddress }
func (PlayerLocation) Type() EventType { return EventPlayerLocation }

func (e PlayerJoined) Player() int   { return e.PlayerID }
func (e PlayerLeft) Player() int     { return e.PlayerID }
func (e PlayerChat) Player() int     { return e.PlayerID }
func (e PlayerGrounded) Player() int { return e.PlayerID }
func (e PlayerName) Player() int     { return e.PlayerID }
func (e PlayerAvatar) Player() int   { return e.PlayerID }
func (e PlayerAddress) Player() int  { return e.PlayerID }
func (e PlayerLocation) Player() int { return e.PlayerID }

// envelope is the host wire form: {"subject": ..., "data": {...}}.
type envelope struct {
	Subject EventType       `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

// Decode parses one host event. Unknown subjects and out-of-range player ids
// are reported as invalid messages.
func Decode(b []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, protocol.InvalidMessage("", err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Subject {
	case EventPlayerJoined:
		ev, err = decodeEvent[PlayerJoined](env.Data)
	case EventPlayerLeft:
		ev, err = decodeEvent[PlayerLeft](env.Data)
	case EventPlayerChat:
		ev, err = decodeEvent[PlayerChat](env.Data)
	case EventPlayerGrounded:
		ev, err = decodeEvent[PlayerGrounded](env.Data)
	case EventPlayerName:
		ev, err = decodeEvent[PlayerName](env.Data)
	case EventPlayerAvatar:
		ev, err = decodeEvent[PlayerAvatar](env.Data)
	case EventPlayerAddress:
		ev, err = decodeEvent[PlayerAddress](env.Data)
	case EventPlayerLocation:
		ev, err = decodeEvent[PlayerLocation](env.Data)
	default:
		return nil, protocol.InvalidMessage(protocol.Subject(env.Subject), fmt.Errorf("unknown host event"))
	}
	if err != nil {
		return nil, protocol.InvalidMessage(protocol.Subject(env.Subject), err)
	}
	if id := ev.Player(); id < 0 || id > MaxPlayerID {
		return nil, protocol.InvalidMessage(protocol.Subject(env.Subject), fmt.Errorf("player id %d out of range", id))
	}
	return ev, nil
}

// Encode produces the host wire form of ev.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	return json.Marshal(envelope{Subject: ev.Type(), Data: data})
}

func decodeEvent[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
