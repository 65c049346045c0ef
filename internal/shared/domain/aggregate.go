package domain

// AggregateRoot is the consistency boundary of an aggregate. It records
// domain events until they are drained into the outbox.
type AggregateRoot interface {
	Entity
	DomainEvents() []DomainEvent
	ClearDomainEvents()
	Version() int
}

// BaseAggregateRoot provides event recording and an optimistic version.
type BaseAggregateRoot struct {
	BaseEntity
	events  []DomainEvent
	version int
}

// NewBaseAggregateRoot creates an aggregate root with a fresh identity.
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity()}
}

// RehydrateBaseAggregateRoot recreates an aggregate root from persisted state.
func RehydrateBaseAggregateRoot(entity BaseEntity, version int) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: entity, version: version}
}

// DomainEvents returns the uncommitted events recorded on this aggregate.
func (a *BaseAggregateRoot) DomainEvents() []DomainEvent { return a.events }

// ClearDomainEvents drops all uncommitted events.
func (a *BaseAggregateRoot) ClearDomainEvents() { a.events = nil }

// AddDomainEvent records an event to be published after persistence.
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.events = append(a.events, event)
}

// Version is the optimistic concurrency version of the aggregate.
func (a *BaseAggregateRoot) Version() int { return a.version }

// IncrementVersion advances the optimistic concurrency version.
func (a *BaseAggregateRoot) IncrementVersion() { a.version++ }
