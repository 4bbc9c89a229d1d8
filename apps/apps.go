// Package apps models the application identities the host reports to the
// virtual device subsystem: packages, the users they are installed for, and
// the uids their processes run under.
package apps

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// A UID identifies a running application sandbox instance. Distinct uids may
// belong to the same package, such as the same application installed for two
// users or an isolated sub-process.
type UID int

// InvalidUID is the uid reported for a package that could not be resolved.
const InvalidUID UID = -1

// A UserID identifies a provisioned user on the host.
type UserID int

// ErrPackageNotFound is returned when a package is not installed for a user.
var ErrPackageNotFound = errors.New("package not found")

// NewPackageNotFoundError returns an error wrapping ErrPackageNotFound for
// the given package and user.
func NewPackageNotFoundError(packageName string, userID UserID) error {
	return errors.Wrapf(ErrPackageNotFound, "no application %q for user %d", packageName, userID)
}

// A Registry resolves a package name to the uid its processes run under for
// a particular user. It is the package manager collaborator.
type Registry interface {
	ApplicationUID(ctx context.Context, packageName string, userID UserID) (UID, error)
}

// A UserIndex reports the users currently provisioned on the host. It is the
// user manager collaborator.
type UserIndex interface {
	ActiveUserIDs(ctx context.Context) ([]UserID, error)
}

// A UIDSet is a set of uids. Policies over a UIDSet must not depend on
// iteration order; use UIDs when a deterministic view is needed.
type UIDSet map[UID]struct{}

// NewUIDSet returns a set containing the given uids.
func NewUIDSet(uids ...UID) UIDSet {
	s := make(UIDSet, len(uids))
	for _, uid := range uids {
		s[uid] = struct{}{}
	}
	return s
}

// Add adds a uid to the set.
func (s UIDSet) Add(uid UID) {
	s[uid] = struct{}{}
}

// Contains reports whether the set contains the given uid.
func (s UIDSet) Contains(uid UID) bool {
	_, ok := s[uid]
	return ok
}

// Len returns the number of uids in the set.
func (s UIDSet) Len() int {
	return len(s)
}

// Clone returns a copy of the set.
func (s UIDSet) Clone() UIDSet {
	out := make(UIDSet, len(s))
	for uid := range s {
		out[uid] = struct{}{}
	}
	return out
}

// UIDs returns the uids in the set in ascending order.
func (s UIDSet) UIDs() []UID {
	out := make([]UID, 0, len(s))
	for uid := range s {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
