// Package asyncapi checks CloudEvents against the data schemas of an AsyncAPI document.
package asyncapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// EventTypeKeyword names the schema extension binding a schema to an event type
const EventTypeKeyword = "x-event-type"

const schemaBaseURI = "https://schemas.wms.local/distribution/"

// EventValidator validates CloudEvents against AsyncAPI schemas.
type EventValidator struct {
	schemas    map[string]*jsonschema.Schema
	rawSchemas map[string]map[string]interface{}
	compiler   *jsonschema.Compiler
}

// CloudEvent is the part of the CloudEvents envelope the validator reads.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	ID              string          `json:"id"`
	Time            string          `json:"time,omitempty"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// Spec represents the relevant parts of an AsyncAPI specification.
type Spec struct {
	AsyncAPI   string             `yaml:"asyncapi"`
	Info       Info               `yaml:"info"`
	Channels   map[string]Channel `yaml:"channels"`
	Components Components         `yaml:"components"`
}

// Info contains the AsyncAPI info section.
type Info struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// Channel represents a channel in AsyncAPI.
type Channel struct {
	Address  string                 `yaml:"address"`
	Messages map[string]interface{} `yaml:"messages"`
}

// Components contains reusable components.
type Components struct {
	Schemas  map[string]map[string]interface{} `yaml:"schemas"`
	Messages map[string]interface{}            `yaml:"messages"`
}

// NewEventValidator parses specBytes and compiles every schema carrying an
// x-event-type. A schema that fails to compile is an error.
func NewEventValidator(specBytes []byte) (*EventValidator, error) {
	var spec Spec
	if err := yaml.Unmarshal(specBytes, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI spec: %w", err)
	}

	v := &EventValidator{
		schemas:    make(map[string]*jsonschema.Schema),
		rawSchemas: make(map[string]map[string]interface{}),
		compiler:   jsonschema.NewCompiler(),
	}

	for name, schema := range spec.Components.Schemas {
		eventType, _ := schema[EventTypeKeyword].(string)
		if eventType == "" {
			continue
		}

		schemaJSON, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema %s: %w", name, err)
		}
		if err := v.register(schemaBaseURI+name+".json", eventType, schemaJSON); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
	}

	if len(v.schemas) == 0 {
		return nil, fmt.Errorf("no schema in the AsyncAPI spec declares %s", EventTypeKeyword)
	}

	return v, nil
}

func (v *EventValidator) register(uri, eventType string, schemaJSON []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("failed to parse schema JSON: %w", err)
	}
	if err := v.compiler.AddResource(uri, doc); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}

	compiled, err := v.compiler.Compile(uri)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(schemaJSON, &raw); err != nil {
		return fmt.Errorf("failed to parse schema JSON: %w", err)
	}

	v.schemas[eventType] = compiled
	v.rawSchemas[eventType] = raw
	return nil
}

// ValidateEvent validates the envelope of event and its data against the schema of its type.
func (v *EventValidator) ValidateEvent(event CloudEvent) error {
	if event.SpecVersion != "1.0" {
		return fmt.Errorf("unsupported specversion %q", event.SpecVersion)
	}
	if event.ID == "" || event.Source == "" {
		return fmt.Errorf("event id and source are required")
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}

	schema, ok := v.schemas[event.Type]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", event.Type)
	}

	if len(event.Data) == 0 {
		return fmt.Errorf("event data is required")
	}

	data, err := jsonschema.UnmarshalJSON(bytes.NewReader(event.Data))
	if err != nil {
		return fmt.Errorf("failed to parse event data: %w", err)
	}

	if err := schema.Validate(data); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", event.Type, err)
	}

	return nil
}

// ValidateEventJSON validates a CloudEvent from JSON bytes.
func (v *EventValidator) ValidateEventJSON(eventJSON []byte) error {
	var event CloudEvent
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return fmt.Errorf("failed to parse CloudEvent: %w", err)
	}
	return v.ValidateEvent(event)
}

// SupportedEventTypes returns the sorted event types that have registered schemas.
func (v *EventValidator) SupportedEventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for eventType := range v.schemas {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

// HasSchema checks if a schema exists for the given event type.
func (v *EventValidator) HasSchema(eventType string) bool {
	_, ok := v.schemas[eventType]
	return ok
}

// Schema returns the raw schema for a given event type.
func (v *EventValidator) Schema(eventType string) (map[string]interface{}, bool) {
	schema, ok := v.rawSchemas[eventType]
	return schema, ok
}

// RegisterSchema adds a schema for an event type outside the AsyncAPI document.
func (v *EventValidator) RegisterSchema(eventType string, schemaJSON []byte) error {
	return v.register(schemaBaseURI+"custom/"+eventType+".json", eventType, schemaJSON)
}
