package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaFor_RequiredAndMinimum(t *testing.T) {
	s := schemaFor[processorRevisionArgs]()

	assert.Equal(t, "object", s.Type)
	assert.ElementsMatch(t, []string{"processor_id", "version"}, s.Required)
	require.Contains(t, s.Properties, "version")
	assert.Equal(t, "integer", s.Properties["version"].Type)
	require.NotNil(t, s.Properties["version"].Minimum)
	assert.Equal(t, float64(0), *s.Properties["version"].Minimum)
	assert.Equal(t, "Processor ID", s.Properties["processor_id"].Description)
}

func TestSchemaFor_Enum(t *testing.T) {
	s := schemaFor[createConnectionArgs]()

	assert.Equal(t, []any{"PROCESSOR", "INPUT_PORT", "OUTPUT_PORT", "FUNNEL", "REMOTE_INPUT_PORT", "REMOTE_OUTPUT_PORT"},
		s.Properties["source_type"].Enum)
	assert.Equal(t, "array", s.Properties["relationships"].Type)
	assert.Equal(t, "string", s.Properties["relationships"].Items.Type)
	assert.NotContains(t, s.Required, "name")
}

func TestSchemaFor_EmbeddedAndOptional(t *testing.T) {
	s := schemaFor[updateProcessorArgs]()

	// 嵌入字段提升到顶层
	require.Contains(t, s.Properties, "name")
	assert.Equal(t, []string{"string", "null"}, s.Properties["name"].Type)
	assert.Equal(t, []string{"integer", "null"}, s.Properties["concurrentlySchedulableTaskCount"].Type)

	props := s.Properties["properties"]
	assert.Equal(t, "object", props.Type)
	assert.Equal(t, []string{"string", "null"}, props.AdditionalProperties.Type)

	auto := s.Properties["autoTerminatedRelationships"]
	assert.Equal(t, []string{"array", "null"}, auto.Type)
	assert.NotContains(t, s.Properties, "ProcessorConfigUpdate")
}

func TestSchemaFor_MapMinProperties(t *testing.T) {
	s := schemaFor[updateServicePropertiesArgs]()
	require.NotNil(t, s.Properties["properties"].MinProperties)
	assert.Equal(t, 1, *s.Properties["properties"].MinProperties)
	assert.Contains(t, s.Required, "properties")
}

func TestSchemaFor_NoArgsIsEmptyObject(t *testing.T) {
	data, err := json.Marshal(schemaFor[noArgs]())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(data))
}

func TestSchemaFor_NestedItemsRequired(t *testing.T) {
	s := schemaFor[createContextArgs]()
	items := s.Properties["parameters"].Items
	require.NotNil(t, items)
	assert.Equal(t, []string{"name"}, items.Required)
	assert.Equal(t, "boolean", items.Properties["sensitive"].Type)
}

func TestSchema_MarshalObjectsAlwaysCarryProperties(t *testing.T) {
	for _, spec := range Catalog(nil, NewReadGate(false)) {
		data, err := json.Marshal(spec.Definition().InputSchema)
		require.NoError(t, err, spec.Name)
		var doc map[string]any
		require.NoError(t, json.Unmarshal(data, &doc), spec.Name)
		assert.Equal(t, "object", doc["type"], spec.Name)
		assert.Contains(t, doc, "properties", spec.Name)
	}

	data, err := json.Marshal(&Schema{Type: "object", AdditionalProperties: &Schema{Type: "string"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","additionalProperties":{"type":"string"}}`, string(data))

	data, err = json.Marshal(&Schema{Type: "string"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"string"}`, string(data))
}
