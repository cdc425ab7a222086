// Package directory provides the office, user and category lookups the
// invoice engine consumes as external collaborators.
//
// The directory is loaded once from a YAML seed and is read-only afterwards,
// so it is safe for concurrent use without locking. When no seed file is
// configured the embedded default seed is used.
//
// Seed file layout:
//
//	offices:    [{id, name, code, is_active}]
//	categories: [{id, name, is_active}]
//	users:      [{id, name, email, role, office_id}]
package directory

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"dragonfly/pkg/models"
)

//go:embed seed.yaml
var defaultSeed []byte

var (
	// ErrInvalidSeed is returned when the seed document breaks a directory rule.
	ErrInvalidSeed = errors.New("invalid directory seed")

	// ErrUnknownUser is returned when a user id is not in the directory.
	ErrUnknownUser = errors.New("unknown user")
)

type seed struct {
	Offices    []models.Office   `yaml:"offices"`
	Categories []models.Category `yaml:"categories"`
	Users      []models.User     `yaml:"users"`
}

// Directory is an immutable in-memory view of offices, users and categories.
type Directory struct {
	offices    []models.Office
	officeByID map[string]models.Office
	categories []models.Category
	catByID    map[string]models.Category
	userByID   map[string]models.User
}

// Default returns the directory built from the embedded seed.
func Default() (*Directory, error) {
	return Parse(defaultSeed)
}

// Load reads a seed file from path, or the embedded seed if path is empty.
func Load(path string) (*Directory, error) {
	const op = "Load"

	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read seed file: %w", op, err)
	}
	return Parse(data)
}

// Parse builds a directory from a YAML seed document.
func Parse(data []byte) (*Directory, error) {
	const op = "Parse"

	var s seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: failed to decode seed: %w", op, err)
	}

	d := &Directory{
		officeByID: make(map[string]models.Office, len(s.Offices)),
		catByID:    make(map[string]models.Category, len(s.Categories)),
		userByID:   make(map[string]models.User, len(s.Users)),
	}

	for _, o := range s.Offices {
		if strings.TrimSpace(o.ID) == "" {
			return nil, fmt.Errorf("%s: %w: office without id", op, ErrInvalidSeed)
		}
		if _, dup := d.officeByID[o.ID]; dup {
			return nil, fmt.Errorf("%s: %w: duplicate office %q", op, ErrInvalidSeed, o.ID)
		}
		d.officeByID[o.ID] = o
		d.offices = append(d.offices, o)
	}

	for _, c := range s.Categories {
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("%s: %w: category without id", op, ErrInvalidSeed)
		}
		if _, dup := d.catByID[c.ID]; dup {
			return nil, fmt.Errorf("%s: %w: duplicate category %q", op, ErrInvalidSeed, c.ID)
		}
		d.catByID[c.ID] = c
		d.categories = append(d.categories, c)
	}

	for _, u := range s.Users {
		if strings.TrimSpace(u.ID) == "" {
			return nil, fmt.Errorf("%s: %w: user without id", op, ErrInvalidSeed)
		}
		if _, dup := d.userByID[u.ID]; dup {
			return nil, fmt.Errorf("%s: %w: duplicate user %q", op, ErrInvalidSeed, u.ID)
		}
		if !u.Role.Valid() {
			return nil, fmt.Errorf("%s: %w: user %q has unknown role %q", op, ErrInvalidSeed, u.ID, u.Role)
		}
		// Non-admins belong to exactly one office; admins pick one per request.
		if u.Role != models.RoleAdmin {
			office, ok := d.officeByID[u.OfficeID]
			if !ok {
				return nil, fmt.Errorf("%s: %w: user %q references unknown office %q", op, ErrInvalidSeed, u.ID, u.OfficeID)
			}
			u.OfficeName = office.Name
		} else if office, ok := d.officeByID[u.OfficeID]; ok {
			u.OfficeName = office.Name
		}
		d.userByID[u.ID] = u
	}

	return d, nil
}

// Office looks up an office by id regardless of its active flag.
func (d *Directory) Office(id string) (models.Office, bool) {
	o, ok := d.officeByID[id]
	return o, ok
}

// Offices returns the active offices in seed order.
func (d *Directory) Offices() []models.Office {
	var out []models.Office
	for _, o := range d.offices {
		if o.IsActive {
			out = append(out, o)
		}
	}
	return out
}

// Category looks up a category by id regardless of its active flag.
func (d *Directory) Category(id string) (models.Category, bool) {
	c, ok := d.catByID[id]
	return c, ok
}

// Categories returns the active categories in seed order.
func (d *Directory) Categories() []models.Category {
	var out []models.Category
	for _, c := range d.categories {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out
}

// User resolves a user id to a full identity.
func (d *Directory) User(id string) (models.User, error) {
	u, ok := d.userByID[id]
	if !ok {
		return models.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, id)
	}
	return u, nil
}
