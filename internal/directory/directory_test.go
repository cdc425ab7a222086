package directory

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dragonfly/pkg/models"
)

func TestDefault(t *testing.T) {
	d, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	if got := len(d.Offices()); got != 3 {
		t.Errorf("active offices = %d, want 3", got)
	}
	for _, c := range d.Categories() {
		if !c.IsActive {
			t.Errorf("inactive category %s listed", c.ID)
		}
	}
	if _, ok := d.Category("cat-005"); !ok {
		t.Errorf("inactive category must still resolve by id")
	}

	u, err := d.User("user-002")
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	want := models.User{
		ID:         "user-002",
		Name:       "Avery Approver",
		Email:      "approver@dragonfly.local",
		Role:       models.RoleApprover,
		OfficeID:   "miami-001",
		OfficeName: "Miami",
	}
	if diff := cmp.Diff(want, u); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}

	if _, err := d.User("user-999"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("User(unknown) = %v, want ErrUnknownUser", err)
	}
}

func TestParseRejectsBadSeeds(t *testing.T) {
	tests := map[string]string{
		"office without id": `
offices:
  - name: Nowhere`,
		"duplicate office": `
offices:
  - id: a
  - id: a`,
		"duplicate category": `
categories:
  - id: c
  - id: c`,
		"unknown role": `
offices: [{id: a}]
users:
  - {id: u, role: AUDITOR, office_id: a}`,
		"submitter without office": `
users:
  - {id: u, role: SUBMITTER}`,
		"duplicate user": `
users:
  - {id: u, role: ADMIN}
  - {id: u, role: ADMIN}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalidSeed) {
				t.Fatalf("Parse = %v, want ErrInvalidSeed", err)
			}
		})
	}

	if _, err := Parse([]byte("offices: [")); err == nil {
		t.Errorf("Parse accepted malformed YAML")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	doc := `
offices:
  - {id: tampa-001, name: Tampa, code: TPA, is_active: true}
  - {id: closed-001, name: Closed, is_active: false}
users:
  - {id: u-1, name: Pat, role: ADMIN}
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]models.Office{{ID: "tampa-001", Name: "Tampa", Code: "TPA", IsActive: true}}, d.Offices()); diff != "" {
		t.Errorf("offices mismatch (-want +got):\n%s", diff)
	}
	if o, ok := d.Office("closed-001"); !ok || o.IsActive {
		t.Errorf("Office(closed-001) = %+v, %v", o, ok)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Load of a missing file succeeded")
	}

	d, err = Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if _, err := d.User("user-001"); err != nil {
		t.Errorf("empty path did not fall back to the built-in seed: %v", err)
	}
}
