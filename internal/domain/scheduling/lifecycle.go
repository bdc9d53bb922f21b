package scheduling

import "fmt"

// edge is one permitted transition of the appointment lifecycle.
type edge struct {
	from, to Status
}

// transitions is the lifecycle table: which roles may drive each edge.
// Terminal states (cancelled, completed) have no outgoing edges, and
// self-transitions are deliberately absent: repeating a transition is an
// ErrInvalidTransition, never a silent no-op.
var transitions = map[edge][]string{
	{StatusPending, StatusConfirmed}:   {RoleDoctor, RoleAdmin},
	{StatusPending, StatusCancelled}:   {RolePatient, RoleDoctor, RoleAdmin},
	{StatusConfirmed, StatusCancelled}: {RolePatient, RoleDoctor, RoleAdmin},
	{StatusConfirmed, StatusCompleted}: {RoleDoctor, RoleAdmin},
}

// CanTransition reports whether from -> to is an edge of the lifecycle table,
// regardless of role.
func CanTransition(from, to Status) bool {
	_, ok := transitions[edge{from, to}]
	return ok
}

// CheckTransition validates the from -> to edge for the given role. It
// returns ErrInvalidTransition when the edge is not in the table and
// ErrForbidden when the edge exists but the role may not drive it.
func CheckTransition(from, to Status, role string) error {
	roles, ok := transitions[edge{from, to}]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	for _, r := range roles {
		if r == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s may not move %s -> %s", ErrForbidden, role, from, to)
}
