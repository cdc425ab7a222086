package invoice

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dragonfly/pkg/models"
)

var (
	owner     = models.User{ID: "u-owner", Role: models.RoleSubmitter, OfficeID: "o-1"}
	peer      = models.User{ID: "u-peer", Role: models.RoleSubmitter, OfficeID: "o-1"}
	approver  = models.User{ID: "u-approver", Role: models.RoleApprover, OfficeID: "o-1"}
	adminUser = models.User{ID: "u-admin", Role: models.RoleAdmin}
)

func ownedBy(u models.User, status models.Status) models.Invoice {
	return models.Invoice{
		ID:          "inv-001",
		SubmittedBy: u.Summary(),
		Office:      models.OfficeRef{ID: "o-1"},
		Status:      status,
		Version:     1,
	}
}

func TestDecide(t *testing.T) {
	inv := ownedBy(owner, models.StatusDraft)
	ownApproval := ownedBy(approver, models.StatusPendingApproval)

	tests := []struct {
		name   string
		user   models.User
		inv    models.Invoice
		action Action
		allow  bool
	}{
		{"owner views", owner, inv, ActionView, true},
		{"peer submitter views", peer, inv, ActionView, false},
		{"approver views", approver, inv, ActionView, true},
		{"admin views", adminUser, inv, ActionView, true},

		{"owner edits", owner, inv, ActionEdit, true},
		{"approver edits", approver, inv, ActionEdit, false},
		{"admin edits", adminUser, inv, ActionEdit, false},
		{"owner deletes", owner, inv, ActionDelete, true},
		{"peer deletes", peer, inv, ActionDelete, false},
		{"owner submits", owner, inv, ActionSubmit, true},
		{"admin submits", adminUser, inv, ActionSubmit, false},
		{"owner reopens", owner, inv, ActionReopen, true},
		{"approver reopens", approver, inv, ActionReopen, false},

		{"submitter approves", owner, inv, ActionApprove, false},
		{"approver approves", approver, inv, ActionApprove, true},
		{"admin approves", adminUser, inv, ActionApprove, true},
		{"approver self-approves", approver, ownApproval, ActionApprove, true},
		{"submitter rejects", owner, inv, ActionReject, false},
		{"approver rejects", approver, inv, ActionReject, true},
		{"submitter pays", owner, inv, ActionMarkPaid, false},
		{"admin pays", adminUser, inv, ActionMarkPaid, true},

		{"unknown action", adminUser, inv, Action("archive"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Decide(tc.user, tc.inv, tc.action)
			if tc.allow {
				if err != nil {
					t.Fatalf("Decide = %v, want allowed", err)
				}
				return
			}
			if !errors.Is(err, ErrForbidden) {
				t.Fatalf("Decide = %v, want ErrForbidden", err)
			}
		})
	}
}

func TestDecideIgnoresStatus(t *testing.T) {
	for _, s := range models.Statuses {
		if err := Decide(owner, ownedBy(owner, s), ActionEdit); err != nil {
			t.Errorf("status %s: Decide = %v; state checks belong to the lifecycle", s, err)
		}
	}
}

func TestAvailableActions(t *testing.T) {
	tests := []struct {
		name string
		user models.User
		inv  models.Invoice
		want []Action
	}{
		{"owner of draft", owner, ownedBy(owner, models.StatusDraft), []Action{ActionEdit, ActionDelete, ActionSubmit}},
		{"approver of draft", approver, ownedBy(owner, models.StatusDraft), nil},
		{"approver of pending", approver, ownedBy(owner, models.StatusPendingApproval), []Action{ActionApprove, ActionReject}},
		{"owner of rejected", owner, ownedBy(owner, models.StatusRejected), []Action{ActionEdit, ActionDelete, ActionReopen}},
		{"admin of approved", adminUser, ownedBy(owner, models.StatusApproved), []Action{ActionMarkPaid}},
		{"owner of paid", owner, ownedBy(owner, models.StatusPaid), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := AvailableActions(tc.user, tc.inv)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("AvailableActions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
