package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/adapters/events"
	"github.com/loomworks/loom/internal/domain"
)

func v(major, minor, patch int) domain.Version {
	return domain.Version{Major: major, Minor: minor, Patch: patch}
}

func orderSpec() map[string]interface{} {
	return map[string]interface{}{
		"endpoint": "/orders",
		"fields": map[string]interface{}{
			"id":    "string",
			"total": "number",
		},
	}
}

func TestCreate(t *testing.T) {
	r := New(nil, nil)

	contract, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", []string{"billing"})
	require.NoError(t, err)

	assert.Equal(t, domain.ContractStatusDraft, contract.Status)
	assert.Equal(t, "team-orders", contract.Owner)
	assert.Equal(t, []string{"billing"}, contract.Consumers)
}

func TestCreate_DuplicateVersion(t *testing.T) {
	r := New(nil, nil)

	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", nil)
	require.NoError(t, err)

	_, err = r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", nil)
	assert.True(t, domain.IsDuplicateVersion(err))
}

func TestCreate_ReturnsCopy(t *testing.T) {
	r := New(nil, nil)

	contract, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", nil)
	require.NoError(t, err)

	contract.Spec["endpoint"] = "mutated"
	contract.Status = domain.ContractStatusLocked

	stored, err := r.Get("orders-api", v(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "/orders", stored.Spec["endpoint"])
	assert.Equal(t, domain.ContractStatusDraft, stored.Status)
}

func TestEvolve_AdditiveChange(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", []string{"billing"})
	require.NoError(t, err)

	newSpec := orderSpec()
	newSpec["fields"].(map[string]interface{})["currency"] = "string"

	evolved, err := r.Evolve("orders-api", v(1, 1, 0), newSpec, false)
	require.NoError(t, err)

	assert.Equal(t, domain.ContractStatusDraft, evolved.Status)
	assert.Equal(t, "team-orders", evolved.Owner)
	assert.Equal(t, []string{"billing"}, evolved.Consumers)
	assert.False(t, evolved.Breaking)
}

func TestEvolve_RemovalWithoutBreakingFlag(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", nil)
	require.NoError(t, err)

	newSpec := map[string]interface{}{"endpoint": "/orders"}

	_, err = r.Evolve("orders-api", v(1, 1, 0), newSpec, false)
	assert.True(t, domain.IsBreakingChangeMismatch(err))
}

func TestEvolve_BreakingRequiresMajorBump(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", nil)
	require.NoError(t, err)

	newSpec := map[string]interface{}{"endpoint": "/orders"}

	_, err = r.Evolve("orders-api", v(1, 1, 0), newSpec, true)
	assert.True(t, domain.IsBreakingChangeMismatch(err))

	evolved, err := r.Evolve("orders-api", v(2, 0, 0), newSpec, true)
	require.NoError(t, err)
	assert.True(t, evolved.Breaking)
}

func TestEvolve_VersionMustIncrease(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(2, 0, 0), orderSpec(), "team-orders", nil)
	require.NoError(t, err)

	_, err = r.Evolve("orders-api", v(1, 9, 0), orderSpec(), false)
	assert.True(t, domain.IsBreakingChangeMismatch(err))
}

func TestEvolve_UnknownContract(t *testing.T) {
	r := New(nil, nil)

	_, err := r.Evolve("ghost", v(1, 0, 0), orderSpec(), false)
	assert.True(t, domain.IsUnknownContract(err))
}

func TestEvolve_LockedVersionIsImmutable(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", nil)
	require.NoError(t, err)
	require.NoError(t, r.Activate("orders-api", v(1, 0, 0)))
	require.NoError(t, r.Lock("orders-api", v(1, 0, 0)))

	_, err = r.Evolve("orders-api", v(1, 0, 0), orderSpec(), false)
	assert.True(t, domain.IsInvalidTransition(err))

	// the locked spec is untouched
	stored, err := r.Get("orders-api", v(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusLocked, stored.Status)
	assert.Equal(t, "/orders", stored.Spec["endpoint"])
}

func TestActivate_OnlyDraft(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", nil)
	require.NoError(t, err)
	require.NoError(t, r.Activate("orders-api", v(1, 0, 0)))

	err = r.Activate("orders-api", v(1, 0, 0))
	assert.True(t, domain.IsInvalidTransition(err))
}

func TestActivate_BlockedByActiveConsumers(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", []string{"billing"})
	require.NoError(t, err)
	require.NoError(t, r.Activate("orders-api", v(1, 0, 0)))

	_, err = r.Evolve("orders-api", v(1, 1, 0), orderSpec(), false)
	require.NoError(t, err)

	err = r.Activate("orders-api", v(1, 1, 0))
	assert.True(t, domain.IsInvalidTransition(err))

	// migrating the last consumer unblocks activation and supersedes v1
	require.NoError(t, r.MigrateConsumer("orders-api", v(1, 0, 0), v(1, 1, 0), "billing"))
	require.NoError(t, r.Activate("orders-api", v(1, 1, 0)))

	old, err := r.Get("orders-api", v(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusSuperseded, old.Status)

	active := r.Active()
	require.Len(t, active, 1)
	assert.Equal(t, v(1, 1, 0), active[0].Version)
	assert.Equal(t, []string{"billing"}, active[0].Consumers)
}

func TestLock_OnlyActive(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", nil)
	require.NoError(t, err)

	err = r.Lock("orders-api", v(1, 0, 0))
	assert.True(t, domain.IsInvalidTransition(err))

	require.NoError(t, r.Activate("orders-api", v(1, 0, 0)))
	require.NoError(t, r.Lock("orders-api", v(1, 0, 0)))
}

func TestDeprecate(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", nil)
	require.NoError(t, err)

	require.NoError(t, r.Deprecate("orders-api", v(1, 0, 0)))
	assert.True(t, domain.IsInvalidTransition(r.Deprecate("orders-api", v(1, 0, 0))))
}

func TestMigrateConsumer_UnknownConsumer(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", []string{"billing"})
	require.NoError(t, err)
	_, err = r.Evolve("orders-api", v(1, 1, 0), orderSpec(), false)
	require.NoError(t, err)

	err = r.MigrateConsumer("orders-api", v(1, 0, 0), v(1, 1, 0), "ghost")
	assert.True(t, domain.IsUnknownContract(err))
}

func TestLatest(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", nil)
	require.NoError(t, err)
	_, err = r.Evolve("orders-api", v(1, 2, 0), orderSpec(), false)
	require.NoError(t, err)
	_, err = r.Evolve("orders-api", v(1, 10, 0), orderSpec(), false)
	require.NoError(t, err)

	latest, err := r.Latest("orders-api")
	require.NoError(t, err)
	assert.Equal(t, v(1, 10, 0), latest.Version)
}

func TestSnapshotRestore(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", []string{"billing"})
	require.NoError(t, err)
	require.NoError(t, r.Activate("orders-api", v(1, 0, 0)))
	_, err = r.Create("events-api", v(0, 1, 0), map[string]interface{}{"topic": "orders"}, "team-events", nil)
	require.NoError(t, err)

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	restored := New(nil, nil)
	restored.RestoreSnapshot(snap)

	contract, err := restored.Get("orders-api", v(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusActive, contract.Status)
	assert.Equal(t, []string{"billing"}, contract.Consumers)

	_, err = restored.Get("events-api", v(0, 1, 0))
	require.NoError(t, err)
}

func TestEvolve_ConcurrentSameVersion(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", nil)
	require.NoError(t, err)

	const writers = 8
	errs := make([]error, writers)

	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Evolve("orders-api", v(1, 1, 0), orderSpec(), false)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, domain.IsDuplicateVersion(err))
		}
	}
	assert.Equal(t, 1, winners)
}

func TestEvents_PublishedOnMutation(t *testing.T) {
	manager := events.NewManager(nil)
	var mu sync.Mutex
	var ops []string
	manager.OnContractChanged(func(e *domain.ContractChangedEvent) {
		mu.Lock()
		ops = append(ops, e.Operation)
		mu.Unlock()
	})

	r := New(manager, nil)
	_, err := r.Create("orders-api", v(1, 0, 0), orderSpec(), "team-orders", nil)
	require.NoError(t, err)
	require.NoError(t, r.Activate("orders-api", v(1, 0, 0)))
	require.NoError(t, r.Lock("orders-api", v(1, 0, 0)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"create", "activate", "lock"}, ops)
}
