package invoice

import (
	"fmt"
	"strings"

	"dragonfly/pkg/models"
)

// transition describes one row of the lifecycle table.
type transition struct {
	from  []models.Status
	to    models.Status // empty keeps the current status
	event models.EventAction
	name  string // "Cannot <name> invoice with status X."
	verb  string // "Only X invoices can be <verb>."
}

// transitions is the complete lifecycle. PAID is terminal: no action lists it
// as a source state. The table is checked for coverage in lifecycle_test.go.
var transitions = map[Action]transition{
	ActionSubmit: {
		name:  "submit",
		from:  []models.Status{models.StatusDraft},
		to:    models.StatusPendingApproval,
		event: models.EventSubmitted,
		verb:  "submitted",
	},
	ActionApprove: {
		name:  "approve",
		from:  []models.Status{models.StatusPendingApproval},
		to:    models.StatusApproved,
		event: models.EventApproved,
		verb:  "approved",
	},
	ActionReject: {
		name:  "reject",
		from:  []models.Status{models.StatusPendingApproval},
		to:    models.StatusRejected,
		event: models.EventRejected,
		verb:  "rejected",
	},
	ActionMarkPaid: {
		name:  "pay",
		from:  []models.Status{models.StatusApproved},
		to:    models.StatusPaid,
		event: models.EventPaid,
		verb:  "marked as paid",
	},
	ActionReopen: {
		name:  "reopen",
		from:  []models.Status{models.StatusRejected},
		to:    models.StatusDraft,
		event: models.EventReopened,
		verb:  "moved back to DRAFT",
	},
	ActionEdit: {
		name:  "edit",
		from:  []models.Status{models.StatusDraft, models.StatusRejected},
		event: models.EventUpdated,
		verb:  "updated",
	},
	ActionDelete: {
		name: "delete",
		from: []models.Status{models.StatusDraft, models.StatusRejected},
		verb: "deleted",
	},
}

// checkSource fails with ErrValidation when inv is not in a source state of action.
func checkSource(op string, action Action, inv models.Invoice) error {
	t, ok := transitions[action]
	if !ok {
		return validationf(op, inv.ID, "Action %s does not change invoice state.", action)
	}
	for _, s := range t.from {
		if inv.Status == s {
			return nil
		}
	}
	names := make([]string, len(t.from))
	for i, s := range t.from {
		names[i] = string(s)
	}
	return validationf(op, inv.ID, "Cannot %s invoice with status %s. Only %s invoices can be %s.",
		t.name, inv.Status, strings.Join(names, " or "), t.verb)
}

// targetStatus returns the status inv has after action succeeds.
func targetStatus(action Action, current models.Status) models.Status {
	if t := transitions[action]; t.to != "" {
		return t.to
	}
	return current
}

// Label is the display name of a status.
func Label(s models.Status) string {
	switch s {
	case models.StatusDraft:
		return "Draft"
	case models.StatusPendingApproval:
		return "Pending Approval"
	case models.StatusApproved:
		return "Approved"
	case models.StatusRejected:
		return "Rejected"
	case models.StatusPaid:
		return "Paid"
	}
	return fmt.Sprintf("Unknown (%s)", string(s))
}

// Terminal reports whether no action can move an invoice out of s.
func Terminal(s models.Status) bool {
	for _, t := range transitions {
		for _, from := range t.from {
			if from == s {
				return false
			}
		}
	}
	return true
}
