package access

import (
	"tzscheduler/internal/apperr"
	"tzscheduler/internal/model"
)

// CanAccess: admins see everything, everyone else only events they are on.
func CanAccess(p model.Principal, e *model.Event) bool {
	if p.IsAdmin {
		return true
	}
	return p.UserID != "" && e.HasParticipant(p.UserID)
}

// Require is CanAccess as an error.
func Require(p model.Principal, e *model.Event, what string) error {
	if !CanAccess(p, e) {
		return apperr.Forbidden("Forbidden: access denied to %s", what)
	}
	return nil
}

// CanList allows a non-admin to filter only by their own id.
func CanList(p model.Principal, f model.ParticipantFilter) bool {
	if p.IsAdmin {
		return true
	}
	for _, id := range f.IDs() {
		if id != p.UserID {
			return false
		}
	}
	return true
}
