// Package shardstate implements the shard server's per-process session
// tables from spec.md §4.9: pending player-enter records keyed by
// serial-key, buyback lists, ongoing trades, groups, and the login-server
// connection handle. It owns the entity map (internal/entitymap) and is
// the "state any" that entity Tick/Cleanup implementations type-assert
// back to when they need trade/group bookkeeping, per the comment in
// internal/entity/player.go's Cleanup.
package shardstate

import (
	"time"

	"github.com/google/uuid"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

// LoginData is what a shard remembers about a player that the login
// server handed off but who has not yet sent REQ_PC_ENTER, per spec.md
// §4.9.
type LoginData struct {
	AccountID  int64
	PCUID      int64
	FEKey      codec.Key
	ServerTime uint64
	Channel    int32
	ReceivedAt time.Time
}

// Item is a single stack stored in a buyback list.
type Item struct {
	ItemType int32
	Count    int32
}

// TradeOffer is one side of a trade context, per spec.md §3.
type TradeOffer struct {
	Taros     int64
	Items     [5]TradeItemSlot
	Confirmed bool
}

// TradeItemSlot names the source inventory slot and quantity offered.
type TradeItemSlot struct {
	SourceSlot int32
	Quantity   int32
	HasItem    bool
}

// TradeContext is an in-progress trade between two players, per spec.md §3.
type TradeContext struct {
	ID        uuid.UUID
	PlayerA   entitymap.EntityID
	PlayerB   entitymap.EntityID
	OfferA    TradeOffer
	OfferB    TradeOffer
}

// Group is a party of players and/or NPCs, per spec.md §3.
type Group struct {
	ID      uuid.UUID
	Leader  entitymap.EntityID
	Members []entitymap.EntityID
}

// State holds every per-shard table from spec.md §4.9, plus the entity map
// it owns.
type State struct {
	World *entitymap.EntityMap

	EnterTimeout time.Duration

	loginData    map[string]LoginData
	buybackLists map[entitymap.EntityID][]Item
	buybackLimit int

	trades map[uuid.UUID]*TradeContext
	groups map[uuid.UUID]*Group

	loginServerConnID    uuid.UUID
	hasLoginServerConnID bool

	vehicles map[entitymap.EntityID]VehicleMount
}

// VehicleMount is a player's currently equipped or inventoried vehicle
// item, tracked for the 1/min expiry sweep in spec.md §4.11.
type VehicleMount struct {
	ItemType int32
	Expiry   time.Time
	Mounted  bool
}

// NewState builds an empty per-shard state table set around world.
// buybackLimit bounds each player's FIFO buyback list length; enterTimeout
// is how long a pending login_data row survives before it is considered
// stale and evicted by housekeeping.
func NewState(world *entitymap.EntityMap, buybackLimit int, enterTimeout time.Duration) *State {
	return &State{
		World:        world,
		EnterTimeout: enterTimeout,
		loginData:    make(map[string]LoginData),
		buybackLists: make(map[entitymap.EntityID][]Item),
		buybackLimit: buybackLimit,
		trades:       make(map[uuid.UUID]*TradeContext),
		groups:       make(map[uuid.UUID]*Group),
		vehicles:     make(map[entitymap.EntityID]VehicleMount),
	}
}

// SetVehicle records or updates the vehicle item id has equipped or holds
// with a pending expiry.
func (s *State) SetVehicle(id entitymap.EntityID, mount VehicleMount) {
	s.vehicles[id] = mount
}

// ClearVehicle removes id's tracked vehicle, e.g. once it expires or is
// sold.
func (s *State) ClearVehicle(id entitymap.EntityID) {
	delete(s.vehicles, id)
}

// ExpiredVehicles returns every tracked vehicle whose expiry has passed,
// for the 1/min sweep in spec.md §4.11 ("delete the item, dismount if
// active, push a delete packet"). Callers are expected to perform those
// three effects then call ClearVehicle for each returned id.
func (s *State) ExpiredVehicles(now time.Time) map[entitymap.EntityID]VehicleMount {
	expired := make(map[entitymap.EntityID]VehicleMount)
	for id, v := range s.vehicles {
		if now.After(v.Expiry) {
			expired[id] = v
		}
	}
	return expired
}

// PutLoginData records a REQ_UPDATE_LOGIN_INFO hand-off, awaiting the
// player's REQ_PC_ENTER.
func (s *State) PutLoginData(serialKey string, data LoginData) {
	s.loginData[serialKey] = data
}

// ExpireLoginData evicts any login_data row older than EnterTimeout,
// returning the serial keys removed (slow-tick housekeeping, spec.md
// §4.11's 1Hz slow tick).
func (s *State) ExpireLoginData(now time.Time) []string {
	var expired []string
	for key, d := range s.loginData {
		if now.Sub(d.ReceivedAt) >= s.EnterTimeout {
			expired = append(expired, key)
			delete(s.loginData, key)
		}
	}
	return expired
}

// EnterResult is what PlayerEnter hands back to the caller so it can
// finish wiring the connection (switch the socket's active cipher key,
// emit the enter/PCLoadData packets).
type EnterResult struct {
	PCID      entitymap.EntityID
	SessionKey codec.Key
	FEKey      codec.Key
	Channel    int32
}

// PlayerEnter implements spec.md §4.9's REQ_PC_ENTER handling: look up
// login_data by serialKey (fail if absent), derive the session E key from
// (server-time, pc-id+1, fusion-matter+1), hand back the FE key the login
// server forwarded, and consume the login_data row. allocateID and track
// are supplied by the caller so this package doesn't need to know how to
// construct a concrete Player entity.
func (s *State) PlayerEnter(serialKey string, fusionMatter int32, allocateID func() entitymap.EntityID, track func(entitymap.EntityID, LoginData)) (EnterResult, *protoerr.Error) {
	data, ok := s.loginData[serialKey]
	if !ok {
		return EnterResult{}, protoerr.New("shardstate.PlayerEnter", protoerr.Warning, errNoLoginData)
	}
	delete(s.loginData, serialKey)

	pcID := allocateID()
	sessionKey := codec.GenKey(data.ServerTime, int32(pcID), fusionMatter)

	if track != nil {
		track(pcID, data)
	}

	return EnterResult{
		PCID:       pcID,
		SessionKey: sessionKey,
		FEKey:      data.FEKey,
		Channel:    data.Channel,
	}, nil
}

// Buyback returns id's buyback list, oldest first (the most recently sold
// item is last).
func (s *State) Buyback(id entitymap.EntityID) []Item {
	return s.buybackLists[id]
}

// PushBuyback appends item to id's buyback FIFO, evicting the oldest entry
// once the list exceeds buybackLimit.
func (s *State) PushBuyback(id entitymap.EntityID, item Item) {
	list := append(s.buybackLists[id], item)
	if s.buybackLimit > 0 && len(list) > s.buybackLimit {
		list = list[len(list)-s.buybackLimit:]
	}
	s.buybackLists[id] = list
}

// PopBuyback removes and returns the most recently pushed item for
// id, for a re-purchase request.
func (s *State) PopBuyback(id entitymap.EntityID) (Item, bool) {
	list := s.buybackLists[id]
	if len(list) == 0 {
		return Item{}, false
	}
	last := list[len(list)-1]
	s.buybackLists[id] = list[:len(list)-1]
	return last, true
}

// OpenTrade starts a trade context between a and b, per spec.md §3.
func (s *State) OpenTrade(a, b entitymap.EntityID) *TradeContext {
	t := &TradeContext{ID: uuid.New(), PlayerA: a, PlayerB: b}
	s.trades[t.ID] = t
	return t
}

// Trade looks up an in-progress trade.
func (s *State) Trade(id uuid.UUID) (*TradeContext, bool) {
	t, ok := s.trades[id]
	return t, ok
}

// CloseTrade removes a trade, whether it completed or was cancelled.
func (s *State) CloseTrade(id uuid.UUID) {
	delete(s.trades, id)
}

// TradesInvolving returns every open trade with player as either side,
// used by Cleanup when a participant disconnects (spec.md §5's "trades
// time out implicitly when the counterpart disconnects").
func (s *State) TradesInvolving(player entitymap.EntityID) []*TradeContext {
	var out []*TradeContext
	for _, t := range s.trades {
		if t.PlayerA == player || t.PlayerB == player {
			out = append(out, t)
		}
	}
	return out
}

// NewGroup creates a group led by leader.
func (s *State) NewGroup(leader entitymap.EntityID) *Group {
	g := &Group{ID: uuid.New(), Leader: leader, Members: []entitymap.EntityID{leader}}
	s.groups[g.ID] = g
	return g
}

// Group looks up a party by ID.
func (s *State) Group(id uuid.UUID) (*Group, bool) {
	g, ok := s.groups[id]
	return g, ok
}

// DisbandGroup removes a group.
func (s *State) DisbandGroup(id uuid.UUID) {
	delete(s.groups, id)
}

// RemoveFromGroup removes member from id's roster, disbanding the group if
// that empties it or removes the leader (spec.md §4.11's "tick group
// housekeeping: remove disbanded").
func (s *State) RemoveFromGroup(id uuid.UUID, member entitymap.EntityID) {
	g, ok := s.groups[id]
	if !ok {
		return
	}
	kept := g.Members[:0]
	for _, m := range g.Members {
		if m != member {
			kept = append(kept, m)
		}
	}
	g.Members = kept
	if len(g.Members) == 0 || g.Leader == member {
		delete(s.groups, id)
	}
}

// SetLoginServerConn records the shard's active outbound connection to the
// login server (spec.md §4.9's login_server_conn_id).
func (s *State) SetLoginServerConn(id uuid.UUID) {
	s.loginServerConnID = id
	s.hasLoginServerConnID = true
}

// ClearLoginServerConn marks the login-server connection as down,
// triggering the reconnect timer from spec.md §4.11.
func (s *State) ClearLoginServerConn() {
	s.hasLoginServerConnID = false
}

// LoginServerConn reports the current login-server connection id, if
// connected.
func (s *State) LoginServerConn() (uuid.UUID, bool) {
	return s.loginServerConnID, s.hasLoginServerConnID
}

// CleanupPlayer unwinds every shard-owned table that references id when its
// connection drops: closes its open trades, removes it from any group it
// belongs to, and drops its tracked vehicle. This is the "state"-specific
// half of spec.md §5's "trades, group invites, and buddy offers time out
// implicitly when the counterpart disconnects (cleanup hook unwinds them)",
// run alongside the generic entitymap.Entity.Cleanup call.
func (s *State) CleanupPlayer(id entitymap.EntityID) {
	for _, t := range s.TradesInvolving(id) {
		s.CloseTrade(t.ID)
	}
	for gid, g := range s.groups {
		for _, m := range g.Members {
			if m == id {
				s.RemoveFromGroup(gid, id)
				break
			}
		}
	}
	s.ClearVehicle(id)
}
