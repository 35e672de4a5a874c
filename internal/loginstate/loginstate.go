// Package loginstate implements the login session registry from spec.md
// §4.8: account sessions, shard registrations, cross-shard player-search
// bookkeeping, and the 250ms shard-connection-request processor. It is
// owned entirely by the login server's event loop goroutine; nothing here
// takes a lock, matching the "no locks in the happy path" model from §5.
package loginstate

import (
	"time"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

// AccountID identifies a registered account row.
type AccountID int64

// ShardID identifies one shard server in the cluster.
type ShardID int32

// PlayerUID is a player's persistent 64-bit identifier.
type PlayerUID int64

// LoadedPlayer is the subset of a player's persisted record the login
// server needs to show character-select and hand off to a shard, per
// spec.md §3's "Login session" table entry.
type LoadedPlayer struct {
	UID    PlayerUID
	Name   string
	Level  int32
	ShardID ShardID
}

// PendingShardRequest is a player's in-flight REQ_SHARD_SELECT, per
// spec.md §4.8.
type PendingShardRequest struct {
	ShardID    ShardID
	HasShardID bool
	Channel    int32
	HasChannel bool
	Expiry     time.Time
}

// LoginSession is one logged-in account's runtime state, per spec.md §3's
// "Login session" data model entry.
type LoginSession struct {
	Account       AccountID
	Players       map[PlayerUID]LoadedPlayer
	SelectedUID   PlayerUID
	HasSelected   bool
	PendingShard  *PendingShardRequest
	ConnKey       int64
}

// ChannelStatus is the derived population-pressure label from spec.md
// §4.8.
type ChannelStatus int

const (
	StatusEmpty ChannelStatus = iota
	StatusNormal
	StatusBusy
	StatusClosed
)

func (s ChannelStatus) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusNormal:
		return "normal"
	case StatusBusy:
		return "busy"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ShardServerInfo is one registered shard's advertised capacity and
// current player directory, per spec.md §3's "Shard registration" entry.
type ShardServerInfo struct {
	ID             ShardID
	NumChannels    int32
	MaxChannelPop  int32
	ConnKey        int64
	Players        map[PlayerUID]PlayerMetadata
}

// PlayerMetadata is what the login server knows about a player currently
// on a shard, used for buddy presence and cross-shard search.
type PlayerMetadata struct {
	UID     PlayerUID
	Name    string
	Channel int32
}

// ChannelPopulation returns the fraction of MaxChannelPop*NumChannels
// currently occupied and its derived status, per spec.md §4.8's thresholds
// (Closed >= 1.0, Busy >= 0.75, Normal >= 0.25, else Empty).
func (s *ShardServerInfo) ChannelPopulation() (fraction float64, status ChannelStatus) {
	capacity := int64(s.MaxChannelPop) * int64(s.NumChannels)
	if capacity <= 0 {
		return 0, StatusEmpty
	}
	fraction = float64(len(s.Players)) / float64(capacity)
	switch {
	case fraction >= 1.0:
		status = StatusClosed
	case fraction >= 0.75:
		status = StatusBusy
	case fraction >= 0.25:
		status = StatusNormal
	default:
		status = StatusEmpty
	}
	return fraction, status
}

// searchKey identifies one in-flight cross-shard player-search request.
type searchKey struct {
	reqShardID ShardID
	reqPCID    int64
}

// PendingSearch tracks which target shards still owe a reply, per spec.md
// §4.10's cross-shard player search.
type PendingSearch struct {
	Pending map[ShardID]struct{}
}

// Registry holds every in-memory table from spec.md §4.8.
type Registry struct {
	sessions map[AccountID]*LoginSession
	shards   map[ShardID]*ShardServerInfo
	searches map[searchKey]*PendingSearch
	pendingChannel map[PlayerUID]int32

	shardRequestExpiry time.Duration
}

// NewRegistry builds an empty registry. shardRequestExpiry is the 20s
// timeout from spec.md §5 ("Shard-connection requests expire after 20s").
func NewRegistry(shardRequestExpiry time.Duration) *Registry {
	return &Registry{
		sessions:           make(map[AccountID]*LoginSession),
		shards:             make(map[ShardID]*ShardServerInfo),
		searches:           make(map[searchKey]*PendingSearch),
		pendingChannel:     make(map[PlayerUID]int32),
		shardRequestExpiry: shardRequestExpiry,
	}
}

// Login creates a session on successful credential validation. Per spec.md
// §4.8 "created on successful login, deleted on client disconnect".
func (r *Registry) Login(account AccountID, connKey int64, players map[PlayerUID]LoadedPlayer) *LoginSession {
	s := &LoginSession{Account: account, Players: players, ConnKey: connKey}
	r.sessions[account] = s
	return s
}

// Disconnect removes account's session.
func (r *Registry) Disconnect(account AccountID) {
	delete(r.sessions, account)
}

// Session looks up an active session.
func (r *Registry) Session(account AccountID) (*LoginSession, bool) {
	s, ok := r.sessions[account]
	return s, ok
}

// SelectCharacter implements REQ_CHAR_SELECT: marks uid as the session's
// selected character.
func (r *Registry) SelectCharacter(account AccountID, uid PlayerUID) *protoerr.Error {
	s, ok := r.sessions[account]
	if !ok {
		return protoerr.New("loginstate.SelectCharacter", protoerr.Warning, errNoSession)
	}
	if _, ok := s.Players[uid]; !ok {
		return protoerr.New("loginstate.SelectCharacter", protoerr.Warning, errUnknownCharacter)
	}
	s.SelectedUID = uid
	s.HasSelected = true
	return nil
}

// RequestShard implements REQ_SHARD_SELECT: queues a shard-connection
// request with a 20s expiry, per spec.md §4.8.
func (r *Registry) RequestShard(account AccountID, now time.Time, shardID ShardID, hasShardID bool, channel int32, hasChannel bool) *protoerr.Error {
	s, ok := r.sessions[account]
	if !ok {
		return protoerr.New("loginstate.RequestShard", protoerr.Warning, errNoSession)
	}
	s.PendingShard = &PendingShardRequest{
		ShardID:    shardID,
		HasShardID: hasShardID,
		Channel:    channel,
		HasChannel: hasChannel,
		Expiry:     now.Add(r.shardRequestExpiry),
	}
	return nil
}

// RegisterShard records a newly authenticated shard server, per §4.10's
// shard-auth handshake step 3.
func (r *Registry) RegisterShard(id ShardID, connKey int64, numChannels, maxChannelPop int32) {
	r.shards[id] = &ShardServerInfo{
		ID:            id,
		NumChannels:   numChannels,
		MaxChannelPop: maxChannelPop,
		ConnKey:       connKey,
		Players:       make(map[PlayerUID]PlayerMetadata),
	}
}

// UnregisterShard tears down a shard's registration on disconnect.
func (r *Registry) UnregisterShard(id ShardID) {
	delete(r.shards, id)
}

// Shard looks up a registered shard.
func (r *Registry) Shard(id ShardID) (*ShardServerInfo, bool) {
	s, ok := r.shards[id]
	return s, ok
}

// LowestPopulationShard picks the shard with the lowest occupied fraction,
// used when a REQ_SHARD_SELECT omits an explicit shard-id (spec.md §4.8).
func (r *Registry) LowestPopulationShard() (ShardID, bool) {
	var best ShardID
	bestFrac := -1.0
	found := false
	for id, s := range r.shards {
		frac, _ := s.ChannelPopulation()
		if !found || frac < bestFrac {
			best, bestFrac, found = id, frac, true
		}
	}
	return best, found
}

// UpdateDirectory replaces a shard's known player directory, in response
// to UPDATE_PC_STATUSES (spec.md §4.10 buddy presence).
func (r *Registry) UpdateDirectory(id ShardID, players map[PlayerUID]PlayerMetadata) {
	if s, ok := r.shards[id]; ok {
		s.Players = players
	}
}

// LocatePlayer reports which shard, if any, currently has uid online —
// the backing lookup for buddy presence queries (spec.md §4.10: "presence
// is coarse, not positional").
func (r *Registry) LocatePlayer(uid PlayerUID) (ShardID, bool) {
	for id, s := range r.shards {
		if _, ok := s.Players[uid]; ok {
			return id, true
		}
	}
	return 0, false
}

// StartSearch begins a cross-shard player search from reqShard for
// reqPCID, fanning out to every other registered shard. Returns the set of
// shard IDs the caller must send REQ_PC_LOCATION to, or a
// SearchInProgress-flavored error if one is already in flight for this key
// (spec.md §4.10).
func (r *Registry) StartSearch(reqShard ShardID, reqPCID int64) ([]ShardID, *protoerr.Error) {
	key := searchKey{reqShardID: reqShard, reqPCID: reqPCID}
	if _, exists := r.searches[key]; exists {
		return nil, protoerr.New("loginstate.StartSearch", protoerr.Info, errSearchInProgress)
	}

	pending := make(map[ShardID]struct{}, len(r.shards))
	var targets []ShardID
	for id := range r.shards {
		if id == reqShard {
			continue
		}
		pending[id] = struct{}{}
		targets = append(targets, id)
	}
	r.searches[key] = &PendingSearch{Pending: pending}
	return targets, nil
}

// ResolveSearch records one target shard's reply. It returns done=true
// once either a success has been seen or every target has replied, along
// with whether any reply succeeded.
func (r *Registry) ResolveSearch(reqShard ShardID, reqPCID int64, fromShard ShardID, success bool) (done bool, succeeded bool) {
	key := searchKey{reqShardID: reqShard, reqPCID: reqPCID}
	search, ok := r.searches[key]
	if !ok {
		return true, false
	}
	delete(search.Pending, fromShard)

	if success {
		delete(r.searches, key)
		return true, true
	}
	if len(search.Pending) == 0 {
		delete(r.searches, key)
		return true, false
	}
	return false, false
}

// SetPendingChannel records a channel-change request for uid, consumed by
// the shard on re-handoff (spec.md §4.8's pending_channel_requests table).
func (r *Registry) SetPendingChannel(uid PlayerUID, channel int32) {
	r.pendingChannel[uid] = channel
}

// TakePendingChannel consumes and returns uid's pending channel request,
// if any.
func (r *Registry) TakePendingChannel(uid PlayerUID) (int32, bool) {
	ch, ok := r.pendingChannel[uid]
	if ok {
		delete(r.pendingChannel, uid)
	}
	return ch, ok
}

// ShardUpdateRequest is what ProcessShardConnectionRequests asks the
// caller to send to a target shard (REQ_UPDATE_LOGIN_INFO, spec.md §4.10).
type ShardUpdateRequest struct {
	Account    AccountID
	SerialKey  string
	PCUID      PlayerUID
	FEKey      codec.Key
	ServerTime uint64
	Channel    int32
	TargetShard ShardID
}

// ShardRequestFailure is reported when a pending request expired or no
// shard was available.
type ShardRequestFailure struct {
	Account AccountID
	Code    int32
}

// ProcessShardConnectionRequests implements spec.md §4.8's 250ms timer:
// for each session with a pending shard-connection request, either expire
// it (error code 1) or emit a ShardUpdateRequest to the chosen target and
// clear the request. genSerialKey and serverTime are supplied by the
// caller (serial-key generation and wall-clock reads stay outside this
// package so it remains pure and unit-testable).
func (r *Registry) ProcessShardConnectionRequests(now time.Time, genSerialKey func() string, serverTime uint64) (updates []ShardUpdateRequest, failures []ShardRequestFailure) {
	for account, s := range r.sessions {
		req := s.PendingShard
		if req == nil {
			continue
		}
		if now.After(req.Expiry) {
			s.PendingShard = nil
			failures = append(failures, ShardRequestFailure{Account: account, Code: 1})
			continue
		}

		target := req.ShardID
		if !req.HasShardID {
			picked, ok := r.LowestPopulationShard()
			if !ok {
				continue // no shard yet available; request stays pending until expiry
			}
			target = picked
		}

		if !s.HasSelected {
			continue
		}

		key := genSerialKey()
		updates = append(updates, ShardUpdateRequest{
			Account:     account,
			SerialKey:   key,
			PCUID:       s.SelectedUID,
			ServerTime:  serverTime,
			Channel:     req.Channel,
			TargetShard: target,
		})
		s.PendingShard = nil
	}
	return updates, failures
}
