// Package furniture holds the catalog of placeable item types.
package furniture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/Ko-stant/room-layout-sync/internal/crdt"
	"github.com/Ko-stant/room-layout-sync/internal/geometry"
)

type Logger interface {
	Printf(format string, v ...any)
}

// Definition describes one furniture type. Half extents are in meters and are
// fixed for every item of the type.
type Definition struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description,omitempty" yaml:"description"`
	Category     string        `json:"category" yaml:"category"`
	HalfExtents  geometry.Vec3 `json:"halfExtents" yaml:"halfExtents"`
	DefaultColor string        `json:"defaultColor,omitempty" yaml:"defaultColor"`
}

func (d Definition) validate() error {
	if d.ID == "" {
		return fmt.Errorf("furniture definition missing required field: id")
	}
	if d.Name == "" {
		return fmt.Errorf("furniture definition %s missing required field: name", d.ID)
	}
	if d.HalfExtents.X <= 0 || d.HalfExtents.Y <= 0 || d.HalfExtents.Z <= 0 {
		return fmt.Errorf("furniture definition %s has non-positive half extents", d.ID)
	}
	return nil
}

// Catalog manages furniture definitions
type Catalog struct {
	definitions map[string]Definition
	logger      Logger
}

func NewCatalog(logger Logger) *Catalog {
	return &Catalog{
		definitions: make(map[string]Definition),
		logger:      logger,
	}
}

// Add registers a definition, replacing any with the same id.
func (c *Catalog) Add(def Definition) error {
	if err := def.validate(); err != nil {
		return err
	}
	c.definitions[def.ID] = def
	return nil
}

// LoadDir loads every .yaml, .yml, .json and .jsonc definition file in dir. A missing
// directory is not an error; a bad file is logged and skipped.
func (c *Catalog) LoadDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		c.logger.Printf("Furniture directory does not exist: %s", dir)
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read furniture directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		defs, err := loadFile(path)
		if err != nil {
			c.logger.Printf("Failed to load furniture definitions from %s: %v", path, err)
			continue
		}
		for _, def := range defs {
			if err := c.Add(def); err != nil {
				c.logger.Printf("Skipping definition in %s: %v", path, err)
				continue
			}
			loaded++
		}
	}

	c.logger.Printf("Loaded %d furniture definitions from %s", loaded, dir)
	return nil
}

// loadFile accepts either a single definition or a list of them.
func loadFile(path string) ([]Definition, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" && ext != ".json" && ext != ".jsonc" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	unmarshal := yaml.Unmarshal
	if ext == ".json" || ext == ".jsonc" {
		// Comments and trailing commas are allowed in JSON definitions.
		data = jsonc.ToJSON(data)
		unmarshal = json.Unmarshal
	}

	var list []Definition
	if err := unmarshal(data, &list); err == nil {
		return list, nil
	}
	var def Definition
	if err := unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ext, err)
	}
	return []Definition{def}, nil
}

func (c *Catalog) Get(typeID string) (Definition, bool) {
	def, ok := c.definitions[typeID]
	return def, ok
}

// Definitions returns every definition sorted by category then id.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, 0, len(c.definitions))
	for _, def := range c.definitions {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NewItem builds an item of typeID standing on the floor at pos.X, pos.Z,
// with a fresh globally unique id.
func (c *Catalog) NewItem(typeID string, pos geometry.Vec3) (crdt.FurnitureItem, error) {
	def, ok := c.definitions[typeID]
	if !ok {
		return crdt.FurnitureItem{}, fmt.Errorf("unknown furniture type %q", typeID)
	}
	if pos.Y < def.HalfExtents.Y {
		pos.Y = def.HalfExtents.Y
	}
	return crdt.FurnitureItem{
		ID:          fmt.Sprintf("%s-%s", def.ID, uuid.NewString()),
		Type:        def.ID,
		Category:    def.Category,
		Color:       def.DefaultColor,
		Position:    pos,
		Scale:       geometry.Vec3{X: 1, Y: 1, Z: 1},
		HalfExtents: def.HalfExtents,
	}, nil
}
