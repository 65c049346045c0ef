package domain

import (
	"time"

	coursework "github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	sharedDomain "github.com/felixgeelhaar/studyflow/internal/shared/domain"
	"github.com/google/uuid"
)

// MoveType is the kind of calendar mutation a move performs.
type MoveType string

const (
	MoveTypeInsert MoveType = "insert"
	MoveTypeMove   MoveType = "move"
	MoveTypeResize MoveType = "resize"
	MoveTypeDelete MoveType = "delete"
)

// ReasonCode explains why a move was proposed. A move may carry several.
type ReasonCode string

const (
	ReasonDeadlineProximity ReasonCode = "deadline-proximity"
	ReasonOverlap           ReasonCode = "overlap"
	ReasonOverloadDay       ReasonCode = "overload-day"
	ReasonCramming          ReasonCode = "cramming"
	ReasonPoorTiming        ReasonCode = "poor-timing"
	ReasonEnergyMismatch    ReasonCode = "energy-mismatch"
	ReasonNewWork           ReasonCode = "new-work"
	ReasonGradeRescue       ReasonCode = "grade-rescue"
)

// Move is one atomic calendar mutation within a proposal. Every non-insert
// move carries the target block's version as captured at proposal time;
// apply compares it against the live block before mutating.
type Move struct {
	sharedDomain.BaseEntity
	proposalID       uuid.UUID
	moveType         MoveType
	sourceBlockID    uuid.UUID // uuid.Nil for inserts
	workItemID       uuid.UUID // uuid.Nil when not linked to work
	targetStart      *time.Time
	targetEnd        *time.Time
	deltaMinutes     int
	churnCost        int
	category         coursework.Category
	reasonCodes      []ReasonCode
	basePriority     float64
	energyMultiplier float64
	finalPriority    float64
	unverified       bool // slot finder exhausted its horizon
	baselineVersion  *int
	title            string
	metadataPhase    string
}

// MoveSpec is the builder input for a move.
type MoveSpec struct {
	Type             MoveType
	SourceBlockID    uuid.UUID
	WorkItemID       uuid.UUID
	TargetStart      *time.Time
	TargetEnd        *time.Time
	DeltaMinutes     int
	ChurnCost        int
	Category         coursework.Category
	ReasonCodes      []ReasonCode
	BasePriority     float64
	EnergyMultiplier float64
	Unverified       bool
	BaselineVersion  *int
	Title            string
	MetadataPhase    string
}

// NewMove creates a move for a proposal.
func NewMove(proposalID uuid.UUID, spec MoveSpec) (*Move, error) {
	if spec.Type != MoveTypeInsert && spec.SourceBlockID == uuid.Nil {
		return nil, &ValidationError{Field: "source_block_id", Reason: "required for non-insert moves"}
	}
	if spec.Type != MoveTypeInsert && spec.BaselineVersion == nil {
		return nil, &ValidationError{Field: "baseline_version", Reason: "required for non-insert moves"}
	}
	if spec.Type != MoveTypeDelete && (spec.TargetStart == nil || spec.TargetEnd == nil) {
		return nil, &ValidationError{Field: "target_times", Reason: "required for non-delete moves"}
	}

	return &Move{
		BaseEntity:       sharedDomain.NewBaseEntity(),
		proposalID:       proposalID,
		moveType:         spec.Type,
		sourceBlockID:    spec.SourceBlockID,
		workItemID:       spec.WorkItemID,
		targetStart:      spec.TargetStart,
		targetEnd:        spec.TargetEnd,
		deltaMinutes:     spec.DeltaMinutes,
		churnCost:        spec.ChurnCost,
		category:         spec.Category,
		reasonCodes:      spec.ReasonCodes,
		basePriority:     spec.BasePriority,
		energyMultiplier: spec.EnergyMultiplier,
		finalPriority:    spec.BasePriority * spec.EnergyMultiplier,
		unverified:       spec.Unverified,
		baselineVersion:  spec.BaselineVersion,
		title:            spec.Title,
		metadataPhase:    spec.MetadataPhase,
	}, nil
}

func (m *Move) ProposalID() uuid.UUID         { return m.proposalID }
func (m *Move) Type() MoveType                { return m.moveType }
func (m *Move) SourceBlockID() uuid.UUID      { return m.sourceBlockID }
func (m *Move) WorkItemID() uuid.UUID         { return m.workItemID }
func (m *Move) TargetStart() *time.Time       { return m.targetStart }
func (m *Move) TargetEnd() *time.Time         { return m.targetEnd }
func (m *Move) DeltaMinutes() int             { return m.deltaMinutes }
func (m *Move) ChurnCost() int                { return m.churnCost }
func (m *Move) Category() coursework.Category { return m.category }
func (m *Move) ReasonCodes() []ReasonCode     { return m.reasonCodes }
func (m *Move) BasePriority() float64         { return m.basePriority }
func (m *Move) EnergyMultiplier() float64     { return m.energyMultiplier }
func (m *Move) FinalPriority() float64        { return m.finalPriority }
func (m *Move) IsUnverified() bool            { return m.unverified }
func (m *Move) BaselineVersion() *int         { return m.baselineVersion }
func (m *Move) Title() string                 { return m.title }
func (m *Move) MetadataPhase() string         { return m.metadataPhase }

// HasReason reports whether the move carries the given reason code.
func (m *Move) HasReason(code ReasonCode) bool {
	for _, rc := range m.reasonCodes {
		if rc == code {
			return true
		}
	}
	return false
}

// RehydrateMove recreates a move from persisted state.
func RehydrateMove(
	id uuid.UUID,
	proposalID uuid.UUID,
	spec MoveSpec,
	finalPriority float64,
	createdAt, updatedAt time.Time,
) *Move {
	return &Move{
		BaseEntity:       sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		proposalID:       proposalID,
		moveType:         spec.Type,
		sourceBlockID:    spec.SourceBlockID,
		workItemID:       spec.WorkItemID,
		targetStart:      spec.TargetStart,
		targetEnd:        spec.TargetEnd,
		deltaMinutes:     spec.DeltaMinutes,
		churnCost:        spec.ChurnCost,
		category:         spec.Category,
		reasonCodes:      spec.ReasonCodes,
		basePriority:     spec.BasePriority,
		energyMultiplier: spec.EnergyMultiplier,
		finalPriority:    finalPriority,
		unverified:       spec.Unverified,
		baselineVersion:  spec.BaselineVersion,
		title:            spec.Title,
		metadataPhase:    spec.MetadataPhase,
	}
}
