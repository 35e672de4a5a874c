// Package tabledata is the narrow seam described in spec.md §1/§6 for the
// XDT static tabledata loader: explicitly out of scope, but the rest of the
// simulation (NPC spawning, item definitions, mission tables) needs a
// well-typed interface to call against. fusioncore ships only the
// interface plus an in-memory Store sufficient to drive tests; a real XDT
// parser is not part of this module.
package tabledata

// NPCType is the subset of static NPC stats the entity model consumes
// (spec.md §3: "Max HP, speed, aggro parameters derived from type").
type NPCType struct {
	MaxHP       int32
	Speed       float64
	SightRange  float64
	RegenTime   float64 // seconds
	AggroFactor float64
}

// ItemType is the subset of static item stats dbadapter/entity need.
type ItemType struct {
	StackLimit int32
	Tradeable  bool
}

// Source is the read-only interface the rest of the simulation depends on.
// A real implementation would parse the original game's XDT tables; this
// module ships only Store, an in-memory stand-in.
type Source interface {
	NPCType(id int32) (NPCType, bool)
	ItemType(id int32) (ItemType, bool)
}

// Store is a trivial in-memory Source, suitable for tests and for embedding
// a handful of hand-authored rows at startup.
type Store struct {
	npcTypes  map[int32]NPCType
	itemTypes map[int32]ItemType
}

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{npcTypes: make(map[int32]NPCType), itemTypes: make(map[int32]ItemType)}
}

func (s *Store) PutNPCType(id int32, t NPCType)   { s.npcTypes[id] = t }
func (s *Store) PutItemType(id int32, t ItemType) { s.itemTypes[id] = t }

func (s *Store) NPCType(id int32) (NPCType, bool) {
	t, ok := s.npcTypes[id]
	return t, ok
}

func (s *Store) ItemType(id int32) (ItemType, bool) {
	t, ok := s.itemTypes[id]
	return t, ok
}

var _ Source = (*Store)(nil)
