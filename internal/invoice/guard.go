package invoice

import (
	"dragonfly/pkg/models"
)

// Action is an intent a caller can express against a single invoice.
type Action string

const (
	ActionView     Action = "view"
	ActionEdit     Action = "edit_fields"
	ActionDelete   Action = "delete"
	ActionSubmit   Action = "submit"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionMarkPaid Action = "mark_paid"
	ActionReopen   Action = "reopen"
)

// Actions lists every action the guard knows about.
var Actions = []Action{
	ActionView,
	ActionEdit,
	ActionDelete,
	ActionSubmit,
	ActionApprove,
	ActionReject,
	ActionMarkPaid,
	ActionReopen,
}

// Decide reports whether user may perform action on inv. It is a pure
// function of its inputs; a nil result permits, otherwise the error wraps
// ErrForbidden with a reason. Authentication is checked before Decide runs.
//
// Self-approval is permitted: an approver may approve an invoice they
// submitted themselves.
func Decide(user models.User, inv models.Invoice, action Action) error {
	owner := inv.SubmittedBy.ID == user.ID

	switch action {
	case ActionView:
		if user.Role == models.RoleSubmitter && !owner {
			return newError(string(action), inv.ID, ErrForbidden, "You can only view your own invoices.")
		}
		return nil
	case ActionEdit, ActionDelete, ActionSubmit, ActionReopen:
		// Ownership is required regardless of role; admins are not implicit owners.
		if !owner {
			return newError(string(action), inv.ID, ErrForbidden, "You can only modify your own invoices.")
		}
		return nil
	case ActionApprove, ActionReject, ActionMarkPaid:
		if !user.Role.CanApprove() {
			return newError(string(action), inv.ID, ErrForbidden, "Approver or Admin role required.")
		}
		return nil
	}
	return newError(string(action), inv.ID, ErrForbidden, "Unknown action.")
}

// AvailableActions lists the mutations user could perform on inv right now,
// combining the guard with the transition table. View is omitted.
func AvailableActions(user models.User, inv models.Invoice) []Action {
	var out []Action
	for _, action := range Actions {
		if action == ActionView {
			continue
		}
		if Decide(user, inv, action) != nil {
			continue
		}
		if checkSource("", action, inv) != nil {
			continue
		}
		out = append(out, action)
	}
	return out
}
