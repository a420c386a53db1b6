package loam

import (
	"github.com/aretw0/cadence/pkg/definition"
)

// DefinitionMetadata is the header of a declarative experiment document.
// It uses "mapstructure" tags to match the frontmatter/YAML keys.
type DefinitionMetadata struct {
	Name        string         `json:"name" mapstructure:"name"`
	Description string         `json:"description" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters" mapstructure:"parameters"`

	// Tracks
	Digital   []definition.EdgeSpec  `json:"digital" mapstructure:"digital"`
	HighSpeed []definition.EdgeSpec  `json:"hsdigital" mapstructure:"hsdigital"`
	Analog    []definition.PointSpec `json:"analog" mapstructure:"analog"`
	Pulses    []definition.PulseSpec `json:"pulses" mapstructure:"pulses"`

	AnalogTrigger string `json:"analog_trigger" mapstructure:"analog_trigger"`
}

// document converts the metadata into a Document. An empty description falls
// back to the first line of the body.
func (m DefinitionMetadata) document(content string) *definition.Document {
	desc := m.Description
	if desc == "" {
		desc = firstLine(content)
	}
	return &definition.Document{
		Name:          m.Name,
		Description:   desc,
		Parameters:    m.Parameters,
		Digital:       m.Digital,
		HighSpeed:     m.HighSpeed,
		Analog:        m.Analog,
		Pulses:        m.Pulses,
		AnalogTrigger: m.AnalogTrigger,
	}
}
