package geometry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoomDefinition is a room file: the envelope plus its openings.
type RoomDefinition struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Room     RoomEnvelope  `yaml:"room"`
	Openings []WallOpening `yaml:"openings"`
}

// LoadRoomFromFile loads a room definition from a YAML file
func LoadRoomFromFile(path string) (*RoomDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read room file: %w", err)
	}
	return ParseRoom(data)
}

// ParseRoom decodes a YAML room definition.
func ParseRoom(data []byte) (*RoomDefinition, error) {
	var def RoomDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse room YAML: %w", err)
	}
	if err := ValidateRoom(def.Room); err != nil {
		return nil, fmt.Errorf("room %q: %w", def.ID, err)
	}
	return &def, nil
}

// Shell builds the shell for the definition with default options.
func (d *RoomDefinition) Shell() ShellDescription {
	return Build(d.Room, d.Openings)
}
