package shardstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/entitymap"
)

func newTestState() *State {
	return NewState(entitymap.NewEntityMap(100, 1), 5, 30*time.Second)
}

func TestPlayerEnterDerivesSessionKeyAndConsumesLoginData(t *testing.T) {
	s := newTestState()
	feKey := codec.Key{1, 2, 3, 4, 5, 6, 7, 8}
	s.PutLoginData("serial-1", LoginData{
		AccountID: 1, PCUID: 99, FEKey: feKey, ServerTime: 1000, Channel: 2, ReceivedAt: time.Now(),
	})

	var tracked entitymap.EntityID
	result, perr := s.PlayerEnter("serial-1", 50, func() entitymap.EntityID { return 7 }, func(id entitymap.EntityID, d LoginData) {
		tracked = id
	})
	require.Nil(t, perr)
	assert.Equal(t, entitymap.EntityID(7), result.PCID)
	assert.Equal(t, feKey, result.FEKey)
	assert.Equal(t, int32(2), result.Channel)
	assert.Equal(t, entitymap.EntityID(7), tracked)
	assert.Equal(t, codec.GenKey(1000, 7, 50), result.SessionKey)

	_, ok := s.loginData["serial-1"]
	assert.False(t, ok)
}

func TestPlayerEnterFailsWithoutLoginData(t *testing.T) {
	s := newTestState()
	_, perr := s.PlayerEnter("missing", 0, func() entitymap.EntityID { return 1 }, nil)
	require.NotNil(t, perr)
}

func TestExpireLoginDataEvictsStaleRows(t *testing.T) {
	s := newTestState()
	now := time.Now()
	s.PutLoginData("old", LoginData{ReceivedAt: now.Add(-time.Minute)})
	s.PutLoginData("fresh", LoginData{ReceivedAt: now})

	expired := s.ExpireLoginData(now)
	assert.Equal(t, []string{"old"}, expired)
	_, stillThere := s.loginData["fresh"]
	assert.True(t, stillThere)
}

func TestBuybackFIFORespectsLimit(t *testing.T) {
	s := newTestState()
	for i := 0; i < 7; i++ {
		s.PushBuyback(1, Item{ItemType: int32(i)})
	}
	list := s.Buyback(1)
	require.Len(t, list, 5)
	assert.Equal(t, int32(2), list[0].ItemType)
	assert.Equal(t, int32(6), list[4].ItemType)

	popped, ok := s.PopBuyback(1)
	require.True(t, ok)
	assert.Equal(t, int32(6), popped.ItemType)
	assert.Len(t, s.Buyback(1), 4)
}

func TestGroupDisbandsWhenLeaderLeaves(t *testing.T) {
	s := newTestState()
	g := s.NewGroup(1)
	s.RemoveFromGroup(g.ID, 5) // not a member, no-op
	_, ok := s.Group(g.ID)
	require.True(t, ok)

	s.RemoveFromGroup(g.ID, 1)
	_, ok = s.Group(g.ID)
	assert.False(t, ok)
}

func TestCleanupPlayerUnwindsTradesGroupsAndVehicle(t *testing.T) {
	s := newTestState()
	trade := s.OpenTrade(1, 2)
	g := s.NewGroup(1)
	s.SetVehicle(1, VehicleMount{ItemType: 5, Expiry: time.Now().Add(time.Hour)})

	s.CleanupPlayer(1)

	_, ok := s.Trade(trade.ID)
	assert.False(t, ok)
	_, ok = s.Group(g.ID)
	assert.False(t, ok)
	assert.Empty(t, s.ExpiredVehicles(time.Now().Add(2*time.Hour)))
}

func TestExpiredVehiclesOnlyReturnsPastDueMounts(t *testing.T) {
	s := newTestState()
	now := time.Now()
	s.SetVehicle(1, VehicleMount{ItemType: 10, Expiry: now.Add(-time.Minute), Mounted: true})
	s.SetVehicle(2, VehicleMount{ItemType: 11, Expiry: now.Add(time.Hour)})

	expired := s.ExpiredVehicles(now)
	require.Len(t, expired, 1)
	assert.Equal(t, int32(10), expired[1].ItemType)

	s.ClearVehicle(1)
	assert.Empty(t, s.ExpiredVehicles(now))
}

func TestTradesInvolvingFindsBothSides(t *testing.T) {
	s := newTestState()
	t1 := s.OpenTrade(1, 2)
	t2 := s.OpenTrade(3, 1)
	s.OpenTrade(4, 5)

	found := s.TradesInvolving(1)
	require.Len(t, found, 2)
	ids := map[string]bool{found[0].ID.String(): true, found[1].ID.String(): true}
	assert.True(t, ids[t1.ID.String()])
	assert.True(t, ids[t2.ID.String()])
}
