// Package registry stores named, versioned contracts and enforces their
// lifecycle: draft -> active -> locked, with superseded and deprecated as
// side exits. Breaking-change detection compares structural diffs against
// the declared breaking flag and the major version bump.
package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/ports"
)

type Registry struct {
	logger *slog.Logger
	events ports.EventManager

	mu        sync.Mutex
	contracts map[string][]*domain.Contract // name -> versions in creation order
}

func New(events ports.EventManager, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger:    logger.With("component", "contract-registry"),
		events:    events,
		contracts: make(map[string][]*domain.Contract),
	}
}

// Create registers the first (or an additional disjoint) version of a named
// contract in Draft status.
func (r *Registry) Create(name string, version domain.Version, spec map[string]interface{}, owner string, consumers []string) (*domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(name, version) != nil {
		return nil, &domain.DuplicateVersionError{Name: name, Version: version}
	}

	now := time.Now()
	contract := &domain.Contract{
		Name:      name,
		Version:   version,
		Spec:      cloneSpec(spec),
		Status:    domain.ContractStatusDraft,
		Owner:     owner,
		Consumers: append([]string(nil), consumers...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.contracts[name] = append(r.contracts[name], contract)

	r.logger.Info("contract created",
		"contract", name,
		"version", version.String(),
		"owner", owner,
	)
	r.emit(contract, "create")

	return snapshot(contract), nil
}

// Evolve creates a new Draft version from the latest version of name. The
// structural diff against the latest spec must agree with the declared
// breaking flag: removals demand breakingChanges=true, and a declared
// breaking change demands a major version increase.
func (r *Registry) Evolve(name string, newVersion domain.Version, newSpec map[string]interface{}, breakingChanges bool) (*domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	latest := r.latest(name)
	if latest == nil {
		return nil, &domain.UnknownContractError{Name: name}
	}

	if existing := r.find(name, newVersion); existing != nil {
		if existing.Status == domain.ContractStatusLocked {
			return nil, &domain.InvalidTransitionError{
				Name:    name,
				Version: newVersion,
				From:    existing.Status,
				To:      domain.ContractStatusDraft,
				Reason:  "locked specification is immutable; evolve to a new version",
			}
		}
		return nil, &domain.DuplicateVersionError{Name: name, Version: newVersion}
	}

	if newVersion.Compare(latest.Version) <= 0 {
		return nil, &domain.BreakingChangeMismatchError{
			Name:    name,
			Version: newVersion,
			Reason:  "new version must be greater than latest " + latest.Version.String(),
		}
	}

	diff := DiffSpecs(latest.Spec, newSpec)
	if diff.HasRemovals() && !breakingChanges {
		return nil, &domain.BreakingChangeMismatchError{
			Name:    name,
			Version: newVersion,
			Reason:  "spec removes published structure but breaking_changes=false",
		}
	}
	if breakingChanges && newVersion.Major <= latest.Version.Major {
		return nil, &domain.BreakingChangeMismatchError{
			Name:    name,
			Version: newVersion,
			Reason:  "breaking change requires a major version increase over " + latest.Version.String(),
		}
	}

	now := time.Now()
	contract := &domain.Contract{
		Name:      name,
		Version:   newVersion,
		Spec:      cloneSpec(newSpec),
		Status:    domain.ContractStatusDraft,
		Owner:     latest.Owner,
		Consumers: append([]string(nil), latest.Consumers...),
		Breaking:  breakingChanges,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.contracts[name] = append(r.contracts[name], contract)

	r.logger.Info("contract evolved",
		"contract", name,
		"version", newVersion.String(),
		"breaking", breakingChanges,
		"removed_paths", len(diff.Removed),
		"added_paths", len(diff.Added),
	)
	r.emit(contract, "evolve")

	return snapshot(contract), nil
}

// Activate transitions Draft -> Active. At most one version of a name may
// be Active at a time: a previously Active version with remaining consumers
// blocks activation; one with no consumers is Superseded.
func (r *Registry) Activate(name string, version domain.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	contract := r.find(name, version)
	if contract == nil {
		return &domain.UnknownContractError{Name: name, Version: version.String()}
	}

	if contract.Status != domain.ContractStatusDraft {
		return &domain.InvalidTransitionError{
			Name:    name,
			Version: version,
			From:    contract.Status,
			To:      domain.ContractStatusActive,
			Reason:  "only a draft version can be activated",
		}
	}

	for _, other := range r.contracts[name] {
		if other == contract || other.Status != domain.ContractStatusActive {
			continue
		}
		if len(other.Consumers) > 0 {
			return &domain.InvalidTransitionError{
				Name:    name,
				Version: version,
				From:    contract.Status,
				To:      domain.ContractStatusActive,
				Reason:  "version " + other.Version.String() + " is active with unmigrated consumers",
			}
		}
		other.Status = domain.ContractStatusSuperseded
		other.UpdatedAt = time.Now()
		r.emit(other, "supersede")
	}

	contract.Status = domain.ContractStatusActive
	contract.UpdatedAt = time.Now()

	r.logger.Info("contract activated", "contract", name, "version", version.String())
	r.emit(contract, "activate")
	return nil
}

// Lock transitions Active -> Locked; afterward the (name, version) spec is
// immutable and downstream producers may treat it as stable.
func (r *Registry) Lock(name string, version domain.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	contract := r.find(name, version)
	if contract == nil {
		return &domain.UnknownContractError{Name: name, Version: version.String()}
	}

	if contract.Status != domain.ContractStatusActive {
		return &domain.InvalidTransitionError{
			Name:    name,
			Version: version,
			From:    contract.Status,
			To:      domain.ContractStatusLocked,
			Reason:  "only an active version can be locked",
		}
	}

	contract.Status = domain.ContractStatusLocked
	contract.UpdatedAt = time.Now()

	r.logger.Info("contract locked", "contract", name, "version", version.String())
	r.emit(contract, "lock")
	return nil
}

// Deprecate marks a version Deprecated; consumers should migrate off it.
func (r *Registry) Deprecate(name string, version domain.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	contract := r.find(name, version)
	if contract == nil {
		return &domain.UnknownContractError{Name: name, Version: version.String()}
	}

	if contract.Status == domain.ContractStatusDeprecated {
		return &domain.InvalidTransitionError{
			Name:    name,
			Version: version,
			From:    contract.Status,
			To:      domain.ContractStatusDeprecated,
			Reason:  "already deprecated",
		}
	}

	contract.Status = domain.ContractStatusDeprecated
	contract.UpdatedAt = time.Now()

	r.logger.Info("contract deprecated", "contract", name, "version", version.String())
	r.emit(contract, "deprecate")
	return nil
}

// MigrateConsumer moves a consumer from one version of name to another, the
// drain step that unblocks activating a successor.
func (r *Registry) MigrateConsumer(name string, from, to domain.Version, consumer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	source := r.find(name, from)
	if source == nil {
		return &domain.UnknownContractError{Name: name, Version: from.String()}
	}
	target := r.find(name, to)
	if target == nil {
		return &domain.UnknownContractError{Name: name, Version: to.String()}
	}

	kept := source.Consumers[:0]
	found := false
	for _, c := range source.Consumers {
		if c == consumer {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return &domain.UnknownContractError{Name: name, Version: from.String() + " consumer " + consumer}
	}
	source.Consumers = kept
	source.UpdatedAt = time.Now()

	for _, c := range target.Consumers {
		if c == consumer {
			r.emit(source, "migrate_consumer")
			return nil
		}
	}
	target.Consumers = append(target.Consumers, consumer)
	target.UpdatedAt = time.Now()

	r.logger.Debug("consumer migrated",
		"contract", name,
		"consumer", consumer,
		"from", from.String(),
		"to", to.String(),
	)
	r.emit(target, "migrate_consumer")
	return nil
}

// Get returns a copy of one contract version.
func (r *Registry) Get(name string, version domain.Version) (*domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contract := r.find(name, version)
	if contract == nil {
		return nil, &domain.UnknownContractError{Name: name, Version: version.String()}
	}
	return snapshot(contract), nil
}

// Latest returns a copy of the highest version of name.
func (r *Registry) Latest(name string) (*domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	latest := r.latest(name)
	if latest == nil {
		return nil, &domain.UnknownContractError{Name: name}
	}
	return snapshot(latest), nil
}

// Active returns copies of every contract currently in Active status,
// sorted by name for determinism.
func (r *Registry) Active() []domain.Contract {
	r.mu.Lock()
	defer r.mu.Unlock()

	var active []domain.Contract
	for _, versions := range r.contracts {
		for _, c := range versions {
			if c.Status == domain.ContractStatusActive {
				active = append(active, *snapshot(c))
			}
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Name != active[j].Name {
			return active[i].Name < active[j].Name
		}
		return active[i].Version.Compare(active[j].Version) < 0
	})
	return active
}

// Snapshot returns the full contract table for checkpointing.
func (r *Registry) Snapshot() []domain.Contract {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []domain.Contract
	for _, versions := range r.contracts {
		for _, c := range versions {
			all = append(all, *snapshot(c))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].Version.Compare(all[j].Version) < 0
	})
	return all
}

// RestoreSnapshot replaces the table with a checkpointed one.
func (r *Registry) RestoreSnapshot(contracts []domain.Contract) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.contracts = make(map[string][]*domain.Contract, len(contracts))
	for i := range contracts {
		c := contracts[i]
		r.contracts[c.Name] = append(r.contracts[c.Name], snapshot(&c))
	}
}

// find assumes r.mu is held.
func (r *Registry) find(name string, version domain.Version) *domain.Contract {
	for _, c := range r.contracts[name] {
		if c.Version.Compare(version) == 0 {
			return c
		}
	}
	return nil
}

// latest assumes r.mu is held.
func (r *Registry) latest(name string) *domain.Contract {
	var latest *domain.Contract
	for _, c := range r.contracts[name] {
		if latest == nil || c.Version.Compare(latest.Version) > 0 {
			latest = c
		}
	}
	return latest
}

func (r *Registry) emit(contract *domain.Contract, operation string) {
	if r.events == nil {
		return
	}
	r.events.Publish(domain.Event{
		Type: domain.EventContractChanged,
		Payload: &domain.ContractChangedEvent{
			Name:      contract.Name,
			Version:   contract.Version,
			Operation: operation,
			Status:    contract.Status,
			Breaking:  contract.Breaking,
			ChangedAt: time.Now(),
		},
	})
}

func snapshot(c *domain.Contract) *domain.Contract {
	out := *c
	out.Spec = cloneSpec(c.Spec)
	out.Consumers = append([]string(nil), c.Consumers...)
	return &out
}

func cloneSpec(spec map[string]interface{}) map[string]interface{} {
	if spec == nil {
		return nil
	}
	out := make(map[string]interface{}, len(spec))
	for k, v := range spec {
		if m, ok := v.(map[string]interface{}); ok {
			out[k] = cloneSpec(m)
		} else {
			out[k] = v
		}
	}
	return out
}
