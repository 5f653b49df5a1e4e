package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// seedFile is the layout of a bridge seed file.
type seedFile struct {
	Bridges []Config `yaml:"bridges"`
}

// LoadSeedFile reads bridge definitions from a YAML file. A bridge without a
// port is assigned basePort plus its index in the file; a bridge without an
// id gets a new one. AutoStart defaults to true unless auto_start is given.
func LoadSeedFile(path string, basePort int) ([]Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return ParseSeed(data, basePort)
}

// ParseSeed decodes and validates seed YAML.
func ParseSeed(data []byte, basePort int) ([]Config, error) {
	// Decode twice: once into raw nodes so an omitted auto_start can default
	// to true.
	var raw struct {
		Bridges []map[string]any `yaml:"bridges"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	var seed seedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	var errs []string
	for i := range seed.Bridges {
		cfg := &seed.Bridges[i]
		if i < len(raw.Bridges) && raw.Bridges[i]["auto_start"] == nil {
			cfg.AutoStart = true
		}
		if cfg.Port == 0 {
			cfg.Port = basePort + i
		}
		if cfg.ID == "" {
			cfg.ID = uuid.NewString()
		}
		if err := cfg.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("bridge %d (%s): %v", i, cfg.Name, err))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid seed file: %s", strings.Join(errs, "; "))
	}
	return seed.Bridges, nil
}

// SeedBridges persists cfgs when the repository holds no bridges yet.
//
// Returns:
//   - int: Number of bridges created (0 when seeding was skipped)
//   - error: If counting or inserting fails
func SeedBridges(ctx context.Context, repo Repository, cfgs []Config, logger *slog.Logger) (int, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("checking bridge count: %w", err)
	}
	if count > 0 {
		logger.Info("bridges exist, skipping seed")
		return 0, nil
	}

	for i := range cfgs {
		if err := repo.Create(ctx, &cfgs[i]); err != nil {
			return i, fmt.Errorf("creating seed bridge %s: %w", cfgs[i].Name, err)
		}
	}
	logger.Info("seed bridges created", "count", len(cfgs))
	return len(cfgs), nil
}
