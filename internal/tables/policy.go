package tables

// Role is the coarse permission level carried in access tokens.
type Role string

const (
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

// ParseRole maps a stored or claimed role onto a known Role.
// Anything unrecognized is treated as staff.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleStaff
}

// Caller is the authenticated identity behind a sync request.
type Caller struct {
	UserID string
	Role   Role
}

// Elevated reports whether the caller holds the elevated role.
func (c Caller) Elevated() bool { return c.Role == RoleAdmin }

// CanMutate is the table-level gate: elevated-only tables accept pushes and
// deletions from elevated callers only. Pulls are never gated.
func CanMutate(t Table, c Caller) bool {
	return t.Spec().Scope != ScopeElevated || c.Elevated()
}

// NeedsOwnerCheck reports whether each mutation of t by c must be checked
// against the stored owner.
func NeedsOwnerCheck(t Table, c Caller) bool {
	return t.Spec().OwnerScoped() && !c.Elevated()
}

// CheckOwner is the row-level gate for owner-scoped tables. currentOwner is
// the owner stored on the server, empty when the row does not exist yet or
// carries no owner.
func CheckOwner(t Table, c Caller, currentOwner string) bool {
	if !NeedsOwnerCheck(t, c) {
		return true
	}
	return currentOwner == "" || currentOwner == c.UserID
}
