package domain

import (
	"context"
	"strings"
)

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleAuditorGeneral Role = "auditor_general"
	RoleAuditor        Role = "auditor"
	RoleProvider       Role = "provider"
)

type Permission string

const (
	PermForceTransition   Permission = "audit.force_transition"
	PermCancelAudit       Permission = "audit.cancel"
	PermStartReview       Permission = "audit.start_review"
	PermRejectAudit       Permission = "audit.reject"
	PermCloseAudit        Permission = "audit.close"
	PermRunSweep          Permission = "audit.sweep"
	PermUploadDocument    Permission = "document.upload"
	PermEvaluate          Permission = "evaluation.record"
	PermEditThresholds    Permission = "thresholds.edit"
	PermEditLockedConfig  Permission = "thresholds.edit_locked"
	PermLockThresholds    Permission = "thresholds.lock"
	PermViewAudit         Permission = "audit.view"
	PermValidateInventory Permission = "inventory.validate"
	PermGenerateAudits    Permission = "audit.generate"
	PermAssignAuditor     Permission = "audit.assign_auditor"
)

// PermissionSet is computed once per role and carried on the Actor.
type PermissionSet map[Permission]struct{}

func (p PermissionSet) Has(perm Permission) bool {
	_, ok := p[perm]
	return ok
}

func newSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

var rolePermissions = map[Role]PermissionSet{
	RoleAdmin: newSet(
		PermForceTransition, PermCancelAudit, PermStartReview, PermRejectAudit,
		PermCloseAudit, PermRunSweep, PermUploadDocument, PermEvaluate,
		PermEditThresholds, PermEditLockedConfig, PermLockThresholds,
		PermViewAudit, PermValidateInventory, PermGenerateAudits, PermAssignAuditor,
	),
	RoleAuditorGeneral: newSet(
		PermForceTransition, PermStartReview, PermRejectAudit, PermCloseAudit,
		PermEvaluate, PermEditThresholds, PermViewAudit, PermValidateInventory,
		PermAssignAuditor,
	),
	RoleAuditor: newSet(
		PermStartReview, PermRejectAudit, PermEvaluate, PermViewAudit,
		PermValidateInventory,
	),
	RoleProvider: newSet(
		PermUploadDocument, PermViewAudit, PermValidateInventory,
	),
}

// PermissionsFor returns the role's permission set; unknown roles get none.
func PermissionsFor(r Role) PermissionSet {
	if s, ok := rolePermissions[r]; ok {
		return s
	}
	return PermissionSet{}
}

func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// SystemActorName is recorded for automatic transitions.
const SystemActorName = "Sistema"

type Actor struct {
	ID          string
	Name        string
	Role        Role
	Permissions PermissionSet
}

func NewActor(id, name string, role Role) Actor {
	return Actor{ID: id, Name: name, Role: role, Permissions: PermissionsFor(role)}
}

// SystemActor is the actor for scheduled and mutation-triggered checks.
func SystemActor() Actor {
	return Actor{ID: "system", Name: SystemActorName, Role: RoleAdmin, Permissions: PermissionsFor(RoleAdmin)}
}

func (a Actor) Can(p Permission) bool { return a.Permissions.Has(p) }

// Require returns a ForbiddenError unless the actor holds p.
func (a Actor) Require(p Permission) error {
	if a.Can(p) {
		return nil
	}
	return &ForbiddenError{ActorID: a.ID, Role: a.Role, Permission: p}
}

func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
