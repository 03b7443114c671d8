package remote

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/scene"
	"github.com/roach88/scenesync/internal/transform"
)

// Player body dimensions.
const (
	PlayerHeight = 1.6
	PlayerRadius = 0.25
)

// NodeID returns the scene node id used for player id.
func NodeID(playerID int) string {
	return fmt.Sprintf("player-%d", playerID)
}

// ChatLine is one chat message received from a player.
type ChatLine struct {
	PlayerID  int    `json:"player_id" yaml:"player_id"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Text      string `json:"text" yaml:"text"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
}

// DefaultChatHistory bounds the chat lines a Players keeps.
const DefaultChatHistory = 100

// Players applies host events to a scene store. It is not safe for
// concurrent use; call it from the authoring context only.
type Players struct {
	store   *scene.Store
	spawn   *protocol.Transform
	players map[int]bool
	chat    []ChatLine
	history int
}

// Option configures Players.
type Option func(*Players)

// WithSpawn fixes the transform new players appear at. Without it the
// world transform of the store's default spawn node is used, or the origin.
func WithSpawn(t protocol.Transform) Option {
	return func(p *Players) { p.spawn = &t }
}

// WithChatHistory sets how many chat lines are retained.
func WithChatHistory(n int) Option {
	return func(p *Players) { p.history = n }
}

// NewPlayers returns a Players writing to s.
func NewPlayers(s *scene.Store, opts ...Option) *Players {
	p := &Players{
		store:   s,
		players: make(map[int]bool),
		history: DefaultChatHistory,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply mirrors ev into the store.
func (p *Players) Apply(ev Event) error {
	switch e := ev.(type) {
	case PlayerJoined:
		return p.join(e)
	case PlayerLeft:
		return p.leave(e.PlayerID)
	case PlayerChat:
		return p.chatLine(e)
	case PlayerGrounded:
		return p.updateInfo(e.PlayerID, func(info *protocol.PlayerInfo) { info.Grounded = e.Grounded })
	case PlayerName:
		return p.updateInfo(e.PlayerID, func(info *protocol.PlayerInfo) { info.Name = deref(e.Name) })
	case PlayerAvatar:
		return p.updateInfo(e.PlayerID, func(info *protocol.PlayerInfo) { info.Avatar = deref(e.Avatar) })
	case PlayerAddress:
		return p.updateInfo(e.PlayerID, func(info *protocol.PlayerInfo) { info.Address = deref(e.Address) })
	case PlayerLocation:
		return p.move(e)
	}
	return protocol.InvalidMessage("", fmt.Errorf("unhandled host event %T", ev))
}

// Online returns the ids of players currently in the space.
func (p *Players) Online() []int {
	return slices.Sorted(maps.Keys(p.players))
}

// Chat returns the retained chat lines, oldest first.
func (p *Players) Chat() []ChatLine {
	return slices.Clone(p.chat)
}

func (p *Players) join(e PlayerJoined) error {
	at := p.spawnTransform()
	name := deref(e.Name)
	collider := protocol.CylinderCollider(PlayerHeight, PlayerRadius)
	st := protocol.NodeState{
		Name:        name,
		Translation: at.Translation,
		Rotation:    at.Rotation,
		Scale:       protocol.UnitScale,
		Collider:    &collider,
		Player: &protocol.PlayerInfo{
			PlayerID: e.PlayerID,
			Name:     name,
			Avatar:   deref(e.Avatar),
			Address:  deref(e.Address),
		},
	}
	if _, err := p.store.CreateNode(NodeID(e.PlayerID), st); err != nil {
		return err
	}
	p.players[e.PlayerID] = true
	slog.Info("player joined", "player", e.PlayerID, "name", name, "before_you", e.BeforeYou)
	return nil
}

func (p *Players) leave(id int) error {
	delete(p.players, id)
	if err := p.store.DisposeNode(NodeID(id)); err != nil {
		return err
	}
	slog.Info("player left", "player", id)
	return nil
}

func (p *Players) chatLine(e PlayerChat) error {
	line := ChatLine{PlayerID: e.PlayerID, Text: e.Text, Timestamp: e.Timestamp}
	if n, ok := p.store.Node(NodeID(e.PlayerID)); ok {
		if info := n.State().Player; info != nil {
			line.Name = info.Name
		}
	}
	slog.Info("player chat", "player", e.PlayerID, "name", line.Name, "text", e.Text)

	if p.history <= 0 {
		return nil
	}
	p.chat = append(p.chat, line)
	if len(p.chat) > p.history {
		p.chat = slices.Delete(p.chat, 0, len(p.chat)-p.history)
	}
	return nil
}

func (p *Players) updateInfo(id int, edit func(*protocol.PlayerInfo)) error {
	nodeID := NodeID(id)
	n, ok := p.store.Node(nodeID)
	if !ok {
		return protocol.NotFound(protocol.KindNode, nodeID)
	}
	info := protocol.PlayerInfo{PlayerID: id}
	if cur := n.State().Player; cur != nil {
		info = *cur
	}
	edit(&info)

	patch := protocol.NodePatch{Player: protocol.Some(info)}
	if info.Name != n.State().Name {
		patch.Name = &info.Name
	}
	return p.store.ApplyNode(nodeID, patch)
}

func (p *Players) move(e PlayerLocation) error {
	pos := e.Position
	rot := transform.Yaw(e.Yaw)
	return p.store.ApplyNode(NodeID(e.PlayerID), protocol.NodePatch{
		Translation: &pos,
		Rotation:    &rot,
	})
}

// spawnTransform returns where a joining player appears.
func (p *Players) spawnTransform() protocol.Transform {
	if p.spawn != nil {
		return *p.spawn
	}
	snap := p.store.Snapshot()
	for _, id := range slices.Sorted(maps.Keys(snap.Nodes)) {
		if sp := snap.Nodes[id].Spawn; sp != nil && sp.Default {
			if w, ok := p.store.World(id); ok {
				return w
			}
		}
	}
	return protocol.IdentityTransform()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
