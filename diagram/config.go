package diagram

import (
	"fmt"
	"os"

	"golang.org/x/exp/slices"

	"gopkg.in/yaml.v3"

	"github.com/diagramworks/diagram/protocol"
)

// DiagramConfig declares the diagram language a server instance speaks:
// its element types with their capability flags, the layers those types
// live on, and the tool palette. Type hints broadcast to clients derive
// from this, as do the offered tools and operations.

type ElementTypeConfig struct {
	ElementTypeId string `yaml:"elementTypeId"`
	// node | edge
	ElementKind string `yaml:"elementKind"`
	Label       string `yaml:"label,omitempty"`
	LayerId     string `yaml:"layerId,omitempty"`

	// capability flags. Missing means true.
	Repositionable *bool `yaml:"repositionable,omitempty"`
	Deletable      *bool `yaml:"deletable,omitempty"`
	Resizable      *bool `yaml:"resizable,omitempty"`
	Routable       *bool `yaml:"routable,omitempty"`

	// node containment and edge endpoint gating. Empty means any.
	Containable []string `yaml:"containable,omitempty"`
	Sources     []string `yaml:"sources,omitempty"`
	Targets     []string `yaml:"targets,omitempty"`

	// fixed server-side size. When absent the client must measure new
	// elements of this type, which forces the bounds handshake.
	Size *protocol.Dimension `yaml:"size,omitempty"`
}

const (
	ElementKindNode = "node"
	ElementKindEdge = "edge"
)

func (self *ElementTypeConfig) IsNode() bool {
	return self.ElementKind == ElementKindNode
}

func (self *ElementTypeConfig) IsEdge() bool {
	return self.ElementKind == ElementKindEdge
}

type LayerConfig struct {
	Id     string `yaml:"id"`
	Name   string `yaml:"name"`
	Active bool   `yaml:"active"`
}

type ToolConfig struct {
	Id      string `yaml:"id"`
	Name    string `yaml:"name"`
	LayerId string `yaml:"layerId,omitempty"`
}

type DiagramConfig struct {
	Name     string `yaml:"name"`
	RootType string `yaml:"rootType"`
	RootId   string `yaml:"rootId"`

	Layers       []LayerConfig       `yaml:"layers"`
	Tools        []ToolConfig        `yaml:"tools"`
	ElementTypes []ElementTypeConfig `yaml:"elementTypes"`
}

func LoadDiagramConfig(path string) (*DiagramConfig, error) {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := &DiagramConfig{}
	if err := yaml.Unmarshal(configBytes, config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (self *DiagramConfig) Validate() error {
	if self.RootType == "" {
		self.RootType = "graph"
	}
	if self.RootId == "" {
		self.RootId = "root"
	}
	layerIds := map[string]bool{}
	for _, layer := range self.Layers {
		if layerIds[layer.Id] {
			return fmt.Errorf("duplicate layer id: %s", layer.Id)
		}
		layerIds[layer.Id] = true
	}
	typeIds := map[string]bool{}
	for i := range self.ElementTypes {
		elementType := &self.ElementTypes[i]
		if typeIds[elementType.ElementTypeId] {
			return fmt.Errorf("duplicate element type id: %s", elementType.ElementTypeId)
		}
		typeIds[elementType.ElementTypeId] = true
		switch elementType.ElementKind {
		case ElementKindNode, ElementKindEdge:
		default:
			return fmt.Errorf("element type %s: element kind must be node or edge", elementType.ElementTypeId)
		}
		if elementType.LayerId != "" && !layerIds[elementType.LayerId] {
			return fmt.Errorf("element type %s: unknown layer %s", elementType.ElementTypeId, elementType.LayerId)
		}
	}
	for _, tool := range self.Tools {
		if tool.LayerId != "" && !layerIds[tool.LayerId] {
			return fmt.Errorf("tool %s: unknown layer %s", tool.Id, tool.LayerId)
		}
	}
	return nil
}

func (self *DiagramConfig) ElementType(elementTypeId string) *ElementTypeConfig {
	for i := range self.ElementTypes {
		if self.ElementTypes[i].ElementTypeId == elementTypeId {
			return &self.ElementTypes[i]
		}
	}
	return nil
}

// DefaultActiveLayers is the layer activation state for a new session.
func (self *DiagramConfig) DefaultActiveLayers() map[string]bool {
	activeLayers := map[string]bool{}
	for _, layer := range self.Layers {
		activeLayers[layer.Id] = layer.Active
	}
	return activeLayers
}

func (self *DiagramConfig) NodeHints() []protocol.NodeTypeHint {
	hints := []protocol.NodeTypeHint{}
	for i := range self.ElementTypes {
		elementType := &self.ElementTypes[i]
		if !elementType.IsNode() {
			continue
		}
		hints = append(hints, protocol.NodeTypeHint{
			ElementTypeId:             elementType.ElementTypeId,
			Repositionable:            boolOrDefault(elementType.Repositionable, true),
			Deletable:                 boolOrDefault(elementType.Deletable, true),
			Resizable:                 boolOrDefault(elementType.Resizable, true),
			ContainableElementTypeIds: slices.Clone(elementType.Containable),
		})
	}
	return hints
}

func (self *DiagramConfig) EdgeHints() []protocol.EdgeTypeHint {
	hints := []protocol.EdgeTypeHint{}
	for i := range self.ElementTypes {
		elementType := &self.ElementTypes[i]
		if !elementType.IsEdge() {
			continue
		}
		hints = append(hints, protocol.EdgeTypeHint{
			ElementTypeId:        elementType.ElementTypeId,
			Repositionable:       boolOrDefault(elementType.Repositionable, true),
			Deletable:            boolOrDefault(elementType.Deletable, true),
			Routable:             boolOrDefault(elementType.Routable, true),
			SourceElementTypeIds: slices.Clone(elementType.Sources),
			TargetElementTypeIds: slices.Clone(elementType.Targets),
		})
	}
	return hints
}

func boolOrDefault(value *bool, defaultValue bool) bool {
	if value == nil {
		return defaultValue
	}
	return *value
}

// DefaultDiagramConfig is a small workflow language used when no config file
// is given, and by the package tests.
func DefaultDiagramConfig() *DiagramConfig {
	boolFalse := false
	config := &DiagramConfig{
		Name:     "workflow",
		RootType: "graph",
		RootId:   "root",
		Layers: []LayerConfig{
			{Id: "flow", Name: "Flow", Active: true},
			{Id: "notes", Name: "Notes", Active: true},
		},
		Tools: []ToolConfig{
			{Id: "flow-palette", Name: "Flow palette", LayerId: "flow"},
			{Id: "note-palette", Name: "Note palette", LayerId: "notes"},
		},
		ElementTypes: []ElementTypeConfig{
			{
				ElementTypeId: "task",
				ElementKind:   ElementKindNode,
				Label:         "Task",
				LayerId:       "flow",
				Size:          &protocol.Dimension{Width: 120, Height: 60},
			},
			{
				ElementTypeId:  "start",
				ElementKind:    ElementKindNode,
				Label:          "Start",
				LayerId:        "flow",
				Deletable:      &boolFalse,
				Repositionable: &boolFalse,
				Size:           &protocol.Dimension{Width: 30, Height: 30},
			},
			{
				ElementTypeId: "container",
				ElementKind:   ElementKindNode,
				Label:         "Container",
				LayerId:       "flow",
				Containable:   []string{"task"},
				Size:          &protocol.Dimension{Width: 300, Height: 200},
			},
			{
				// no fixed size: creating a note needs client measurement
				ElementTypeId: "note",
				ElementKind:   ElementKindNode,
				Label:         "Note",
				LayerId:       "notes",
			},
			{
				ElementTypeId: "flow-edge",
				ElementKind:   ElementKindEdge,
				Label:         "Flow",
				LayerId:       "flow",
				Sources:       []string{"task", "start", "container"},
				Targets:       []string{"task", "container"},
			},
		},
	}
	return config
}
