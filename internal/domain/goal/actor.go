package goal

import (
	"github.com/goalledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Capability is a coarse permission tag carried by an Actor.
type Capability string

const (
	// CapabilityBackend allows acting on behalf of a deposit owner.
	CapabilityBackend Capability = "backend"
	// CapabilityNotifier allows auto-enrolling deposits for arbitrary users.
	CapabilityNotifier Capability = "notifier"
	// CapabilityKeeper allows finalizing goals that reached their target.
	CapabilityKeeper Capability = "keeper"
	// CapabilityAdmin allows administrative controls and cancelling any goal.
	CapabilityAdmin Capability = "admin"
)

// Actor is the capability-tagged identity passed into every engine entry
// point. A plain user carries no capabilities; ownership checks compare
// against Actor.ID.
type Actor struct {
	ID           uuid.UUID
	capabilities map[Capability]struct{}
}

// NewActor creates an actor with the given capabilities.
func NewActor(id uuid.UUID, caps ...Capability) Actor {
	m := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		m[c] = struct{}{}
	}
	return Actor{ID: id, capabilities: m}
}

// Has reports whether the actor carries the capability.
func (a Actor) Has(c Capability) bool {
	_, ok := a.capabilities[c]
	return ok
}

// Capabilities returns the actor's capabilities in unspecified order.
func (a Actor) Capabilities() []Capability {
	out := make([]Capability, 0, len(a.capabilities))
	for c := range a.capabilities {
		out = append(out, c)
	}
	return out
}

// Operation names an engine entry point for authorization purposes.
type Operation string

const (
	OpCreateGoal    Operation = "create_goal"
	OpCreateDefault Operation = "create_default_goal"
	OpAttach        Operation = "attach"
	OpDetach        Operation = "detach"
	OpTransfer      Operation = "transfer"
	OpReportPledged Operation = "report_pledged"
	OpCancel        Operation = "cancel"
	OpFinalize      Operation = "finalize"
	OpAutoEnroll    Operation = "auto_enroll"
	OpAdminControls Operation = "admin_controls"
)

// operationRules maps each operation to the capabilities that may perform
// it in addition to (or, where ownerMayAct is false, instead of) the
// affected owner.
var operationRules = map[Operation]struct {
	ownerMayAct bool
	capextra    []Capability
}{
	OpCreateGoal:    {ownerMayAct: true, capextra: []Capability{CapabilityBackend, CapabilityAdmin}},
	OpCreateDefault: {ownerMayAct: true, capextra: []Capability{CapabilityBackend, CapabilityNotifier, CapabilityAdmin}},
	OpAttach:        {ownerMayAct: true, capextra: []Capability{CapabilityBackend, CapabilityAdmin}},
	OpDetach:        {ownerMayAct: true},
	OpTransfer:      {ownerMayAct: true, capextra: []Capability{CapabilityBackend, CapabilityAdmin}},
	OpReportPledged: {ownerMayAct: true, capextra: []Capability{CapabilityBackend, CapabilityAdmin}},
	OpCancel:        {ownerMayAct: true, capextra: []Capability{CapabilityBackend, CapabilityAdmin}},
	OpFinalize:      {capextra: []Capability{CapabilityKeeper, CapabilityAdmin}},
	OpAutoEnroll:    {capextra: []Capability{CapabilityNotifier}},
	OpAdminControls: {capextra: []Capability{CapabilityAdmin}},
}

// Authorize checks the actor against the per-operation capability table.
// subject is the owner (or creator) the operation acts for; ownership-based
// operations pass when actor.ID == subject.
func Authorize(actor Actor, op Operation, subject uuid.UUID) error {
	rule, ok := operationRules[op]
	if !ok {
		return shared.ErrNotAuthorized
	}
	if rule.ownerMayAct && actor.ID != uuid.Nil && actor.ID == subject {
		return nil
	}
	for _, c := range rule.capextra {
		if actor.Has(c) {
			return nil
		}
	}
	return shared.ErrNotAuthorized
}
