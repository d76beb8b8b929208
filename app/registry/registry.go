// Package registry loads the static agent roster and validates it. The
// roster is read-only after load; it feeds startup logging, the worker count
// in telemetry, and the roster file handed to the delegated swarm process.
// Task assignment happens in the delegate, not here.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/go-pkgz/lgr"
	"gopkg.in/yaml.v3"

	"github.com/hiverun/hived/app/config"
)

// ErrRoster indicates an invalid or ambiguous role roster. Fatal: startup
// aborts on it.
var ErrRoster = errors.New("invalid agent roster")

// Registry is the immutable validated roster, one queen plus workers.
type Registry struct {
	queen   config.Role
	workers []config.Role
}

// Load validates the roster and builds the registry. Fails wrapping
// ErrRoster on an empty roster, duplicate or empty names, and on zero or
// multiple queen designations.
func Load(roles []config.Role) (*Registry, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("%w: empty roster", ErrRoster)
	}

	reg := &Registry{}
	seen := map[string]struct{}{}
	queens := 0
	for i, role := range roles {
		if role.Name == "" {
			return nil, fmt.Errorf("%w: role %d has no name", ErrRoster, i+1)
		}
		if _, dup := seen[role.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate role %q", ErrRoster, role.Name)
		}
		seen[role.Name] = struct{}{}

		if role.Queen {
			queens++
			reg.queen = role
			continue
		}
		reg.workers = append(reg.workers, role)
	}

	if queens != 1 {
		return nil, fmt.Errorf("%w: exactly one queen required, got %d", ErrRoster, queens)
	}

	log.Printf("[INFO] roster loaded, queen %q and %d workers", reg.queen.Name, len(reg.workers))
	return reg, nil
}

// Queen returns the single coordinator role.
func (r *Registry) Queen() config.Role { return r.queen }

// Workers returns a copy of the worker roles.
func (r *Registry) Workers() []config.Role {
	res := make([]config.Role, len(r.workers))
	copy(res, r.workers)
	return res
}

// WorkerCount returns the number of non-queen roles.
func (r *Registry) WorkerCount() int { return len(r.workers) }

// Names returns all role names, queen first.
func (r *Registry) Names() []string {
	res := []string{r.queen.Name}
	for _, w := range r.workers {
		res = append(res, w.Name)
	}
	return res
}

// Export writes the roster as a YAML file for the delegated swarm process.
func (r *Registry) Export(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create roster dir %s: %w", dir, err)
		}
	}

	roles := append([]config.Role{r.queen}, r.workers...)
	data, err := yaml.Marshal(roles)
	if err != nil {
		return fmt.Errorf("marshal roster: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write roster %s: %w", path, err)
	}
	return nil
}
