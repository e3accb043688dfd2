package domain

type CauseKind string

const (
	CauseAutomatic CauseKind = "automatic"
	CauseManual    CauseKind = "manual"
	CauseForced    CauseKind = "forced"
)

// Cause explains why a transition happened. The concrete types are
// Automatic, Manual and Forced.
type Cause interface {
	Kind() CauseKind
	isCause()
}

type Automatic struct {
	ConditionsChecked []string
}

type Manual struct {
	Actor         Actor
	Justification string
}

type Forced struct {
	Actor         Actor
	Justification string
}

func (Automatic) Kind() CauseKind { return CauseAutomatic }
func (Manual) Kind() CauseKind    { return CauseManual }
func (Forced) Kind() CauseKind    { return CauseForced }

func (Automatic) isCause() {}
func (Manual) isCause()    {}
func (Forced) isCause()    {}

// NewStateChange builds the history row for a transition with the given cause.
func NewStateChange(auditID string, from, to State, cause Cause) StateChange {
	sc := StateChange{AuditID: auditID, From: from, To: to, Kind: cause.Kind()}
	switch c := cause.(type) {
	case Automatic:
		sys := SystemActor()
		sc.ActorID, sc.ActorName = sys.ID, sys.Name
		sc.Conditions = c.ConditionsChecked
	case Manual:
		sc.ActorID, sc.ActorName = c.Actor.ID, c.Actor.DisplayName()
		sc.Justification = c.Justification
	case Forced:
		sc.ActorID, sc.ActorName = c.Actor.ID, c.Actor.DisplayName()
		sc.Justification = c.Justification
	}
	return sc
}
