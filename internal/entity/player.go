package entity

import (
	"encoding/binary"
	"time"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/geom"
	"github.com/duskforge/fusioncore/internal/pathing"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

// InventorySection indexes the four ordered inventory sections from
// spec.md §3.
type InventorySection int

const (
	SectionEquip InventorySection = iota
	SectionMain
	SectionQuest
	SectionBank
)

// ItemStack is one occupied inventory slot.
type ItemStack struct {
	Slot     int32
	ItemType int32
	Count    int32
	Expiry   time.Time // zero means "does not expire"
}

// Inventory holds the four ordered sections. Slot indices are unique within
// a section (spec.md §3 invariant).
type Inventory struct {
	Sections [4][]ItemStack
}

// Put inserts or replaces the stack at its slot within section, preserving
// the unique-slot-index invariant.
func (inv *Inventory) Put(section InventorySection, stack ItemStack) {
	items := inv.Sections[section]
	for i, it := range items {
		if it.Slot == stack.Slot {
			items[i] = stack
			return
		}
	}
	inv.Sections[section] = append(items, stack)
}

// Remove deletes the stack at slot within section, if present.
func (inv *Inventory) Remove(section InventorySection, slot int32) {
	items := inv.Sections[section]
	for i, it := range items {
		if it.Slot == slot {
			inv.Sections[section] = append(items[:i], items[i+1:]...)
			return
		}
	}
}

// NanoCom is the unlockable-companion inventory: up to three equipped
// slots and one active slot, per spec.md §3's "at most one active nano
// slot" invariant.
type NanoCom struct {
	Unlocked []int32
	Equipped [3]int32 // 0 means empty
	Active   int8     // index into Equipped, -1 for none
}

// MissionState tracks one journal entry's progress.
type MissionState struct {
	MissionID int32
	Step      int32
	Failed    bool
	Completed bool
}

// RunningTask is an in-progress mission objective being watched by
// Player.tick's per-tick supervision (spec.md §4.5).
type RunningTask struct {
	MissionID       int32
	Deadline        time.Time // zero means no time limit
	RequiredMap     int32     // 0 means no map restriction
	EscortNPC       entitymap.EntityID
	HasEscort       bool
	RequiredItems   map[int32]int32 // item type -> required count
	RewardItemType  int32
	lastRepairCheck time.Time
}

// SkywayRideState tracks an in-progress scripted skyway (broomstick) ride,
// per spec.md §4.5.
type SkywayRideState struct {
	TripCost   int64
	Path       *pathing.Path
	MonkeyPos  geom.Vec3
	ResumeTime time.Time
}

// Flags is the tutorial/tip/unlock bitfield set from spec.md §3.
type Flags struct {
	TutorialDone    bool
	TipsSeen        map[int32]bool
	ScamperUnlocks  map[int32]bool
	SkywayUnlocks   map[int32]bool
	MissionComplete map[int32]bool
}

// Player is the playable-character entity variant (spec.md §3, §4.5).
type Player struct {
	spatial
	combatStats

	UID      int64
	Name     string
	NameOK   bool
	AppStyle int32

	Taros        int64
	FusionMatter int64
	WeaponCharge int32
	NanoCharge   int32

	Inventory Inventory
	Nanocom   NanoCom
	Missions  map[int32]*MissionState
	Buddies   []int64
	Flags     Flags

	RewardRateMultiplier float64

	TradeID        string
	HasTrade       bool
	GroupID        string
	HasGroup       bool
	VehicleSpeed   float64
	LastAttackedBy entitymap.EntityID
	HasLastAttacker bool
	PreWarpPos     geom.Vec3
	PreWarpInst    entitymap.InstanceKey

	Ride         *SkywayRideState
	RunningTasks []*RunningTask

	lastRegen time.Time
	inCombat  bool
}

var (
	_ entitymap.Entity    = (*Player)(nil)
	_ entitymap.Combatant = (*Player)(nil)
)

func (p *Player) Kind() entitymap.EntityKind { return entitymap.KindPlayer }

func (p *Player) SendEnter(sink entitymap.ClientSink) error {
	return sink.Send(codec.PktPCNew, encodePosition(&p.spatial))
}

func (p *Player) SendExit(sink entitymap.ClientSink) error {
	return sink.Send(codec.PktPCExit, encodePosition(&p.spatial))
}

// Tick implements spec.md §4.5's Player.tick: advance any skyway ride,
// supervise running tasks, then apply passive regen.
func (p *Player) Tick(now time.Time, world *entitymap.EntityMap, clients entitymap.ClientResolver, state any) *protoerr.Error {
	if p.Ride != nil {
		p.tickRide(now, world, clients)
	}

	p.tickRunningTasks(now, world, clients)

	if !p.inCombat && p.HP < p.MaxHP {
		if p.lastRegen.IsZero() {
			p.lastRegen = now
		}
		if now.Sub(p.lastRegen) >= 4*time.Second {
			p.HP += p.MaxHP / 5
			if p.HP > p.MaxHP {
				p.HP = p.MaxHP
			}
			p.lastRegen = now
		}
	}
	return nil
}

func (p *Player) tickRide(now time.Time, world *entitymap.EntityMap, clients entitymap.ClientResolver) {
	ride := p.Ride
	if now.Before(ride.ResumeTime) {
		return
	}

	arrived := ride.Path.Tick(&ride.MonkeyPos, 20)

	coord := world.ChunkOf(ride.MonkeyPos)
	_ = world.Update(p.ID, &coord, clients)

	if clients != nil {
		world.ForEachAroundEntity(p.ID, clients, func(_ entitymap.EntityID, sink entitymap.ClientSink) {
			_ = sink.Send(codec.PktBroomstickMove, encodeRideStep(p.ID, ride.MonkeyPos))
		})
	}
	ride.ResumeTime = now.Add(time.Second)

	if arrived && ride.Path.State() == pathing.Done {
		p.Taros -= ride.TripCost
		if p.Taros < 0 {
			p.Taros = 0
		}
		p.Pos = ride.MonkeyPos
		p.Ride = nil
		if clients != nil {
			world.ForEachAroundEntity(p.ID, clients, func(_ entitymap.EntityID, sink entitymap.ClientSink) {
				_ = sink.Send(codec.PktMonkeyRideEnded, encodeRideStep(p.ID, p.Pos))
			})
		}
	}
}

func encodeRideStep(id entitymap.EntityID, pos geom.Vec3) []byte {
	s := &spatial{ID: id, Pos: pos}
	return encodePosition(s)
}

func encodeMissionID(id int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(id))
	return buf
}

func (p *Player) tickRunningTasks(now time.Time, world *entitymap.EntityMap, clients entitymap.ClientResolver) {
	live := p.RunningTasks[:0]
	for _, task := range p.RunningTasks {
		if p.taskShouldFail(task, now, world) {
			if clients != nil {
				if sink, ok := clients.Resolve(p.ID); ok {
					_ = sink.Send(codec.PktRunningMissionFail, encodeMissionID(task.MissionID))
				}
			}
			continue
		}
		p.repairTaskIfDesynced(task, now)
		live = append(live, task)
	}
	p.RunningTasks = live
}

func (p *Player) taskShouldFail(task *RunningTask, now time.Time, world *entitymap.EntityMap) bool {
	if !task.Deadline.IsZero() && now.After(task.Deadline) {
		return true
	}
	if task.RequiredMap != 0 && task.RequiredMap != p.Instance.MapNumber {
		return true
	}
	if task.HasEscort {
		e, ok := world.Get(task.EscortNPC)
		if !ok {
			return true
		}
		if cb, ok := e.(entitymap.Combatant); ok && cb.IsDead() {
			return true
		}
	}
	return false
}

// repairTaskIfDesynced implements the "all required quest-item counts
// already satisfied but the client seems desynchronized" heuristic from
// spec.md §4.5: resend one quest-item reward so the client re-issues its
// completion request. Throttled to once every 10 seconds per task.
func (p *Player) repairTaskIfDesynced(task *RunningTask, now time.Time) {
	if len(task.RequiredItems) == 0 {
		return
	}
	if !task.lastRepairCheck.IsZero() && now.Sub(task.lastRepairCheck) < 10*time.Second {
		return
	}
	task.lastRepairCheck = now

	satisfied := true
	for itemType, need := range task.RequiredItems {
		have := int32(0)
		for _, stack := range p.Inventory.Sections[SectionQuest] {
			if stack.ItemType == itemType {
				have += stack.Count
			}
		}
		if have < need {
			satisfied = false
			break
		}
	}
	if satisfied {
		p.Inventory.Put(SectionQuest, ItemStack{ItemType: task.RewardItemType, Count: 1})
	}
}

// Cleanup detaches the player's trade/group pointers; the actual
// trade/group table mutation happens in shardstate, which owns those
// tables and type-asserts state back to its own type.
func (p *Player) Cleanup(world *entitymap.EntityMap, clients entitymap.ClientResolver, state any) *protoerr.Error {
	p.HasTrade = false
	p.HasGroup = false
	return nil
}
