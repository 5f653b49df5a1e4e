package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/mapping"
)

// Status is the lifecycle state of a bridge.
type Status string

// Bridge statuses.
const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// External reports the status as shown outside the hub. A bridge that is
// still starting has no live publishing context yet and reads as stopped.
func (s Status) External() Status {
	if s == StatusStarting {
		return StatusStopped
	}
	return s
}

// Config is the persisted definition of a bridge.
type Config struct {
	ID        string                    `json:"id" yaml:"id"`
	Name      string                    `json:"name" yaml:"name"`
	Port      int                       `json:"port" yaml:"port"`
	Entities  []string                  `json:"entities" yaml:"entities"`
	Mappings  map[string]mapping.Config `json:"mappings,omitempty" yaml:"mappings,omitempty"`
	AutoStart bool                      `json:"autoStart" yaml:"auto_start"`
	CreatedAt time.Time                 `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time                 `json:"updatedAt" yaml:"-"`
}

// Validate checks a configuration. The id may be empty; Create assigns one.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, "name is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	seen := make(map[string]struct{}, len(c.Entities))
	for _, id := range c.Entities {
		if err := entity.ValidateID(id); err != nil {
			errs = append(errs, fmt.Sprintf("entity %q is not a valid entity id", id))
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Sprintf("entity %q listed twice", id))
		}
		seen[id] = struct{}{}
	}
	for id := range c.Mappings {
		if _, ok := seen[id]; !ok {
			errs = append(errs, fmt.Sprintf("mapping for %q has no matching entity", id))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// MappingConfig returns the per-entity mapping configuration.
func (c *Config) MappingConfig(entityID string) mapping.Config {
	return c.Mappings[entityID]
}

func (c *Config) clone() Config {
	cpy := *c
	cpy.Entities = append([]string(nil), c.Entities...)
	if c.Mappings != nil {
		cpy.Mappings = make(map[string]mapping.Config, len(c.Mappings))
		for k, v := range c.Mappings {
			cpy.Mappings[k] = v
		}
	}
	return cpy
}

// Fabric is one commissioning relationship between a bridge and a controller.
type Fabric struct {
	FabricIndex int    `json:"fabricIndex"`
	FabricID    string `json:"fabricId,omitempty"`
	VendorID    int    `json:"vendorId,omitempty"`
	Label       string `json:"label,omitempty"`
}

// Commissioning is the commissioning view of a bridge summary.
type Commissioning struct {
	Fabrics []Fabric `json:"fabrics"`
}

// Summary is the externally visible view of a bridge.
type Summary struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Port          int           `json:"port"`
	Status        Status        `json:"status"`
	DeviceCount   int           `json:"deviceCount"`
	Commissioning Commissioning `json:"commissioning"`
	Error         string        `json:"error,omitempty"`
}

// DeviceInfo describes one live mapping of a bridge.
type DeviceInfo struct {
	EntityID    string         `json:"entityId"`
	Tag         mapping.Tag    `json:"tag"`
	Handle      Handle         `json:"handle"`
	Fields      mapping.Fields `json:"fields"`
	Projections uint64         `json:"projections"`
	Deferred    uint64         `json:"deferred"`
	Failures    uint64         `json:"failures"`
	Commands    uint64         `json:"commands"`
}

// Totals aggregates bridge and mapping counts for metrics.
type Totals struct {
	Bridges  int `json:"bridges"`
	Running  int `json:"running"`
	Stopped  int `json:"stopped"`
	Starting int `json:"starting"`
	Error    int `json:"error"`
	Devices  int `json:"devices"`
}
