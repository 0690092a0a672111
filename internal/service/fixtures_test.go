package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"gnss-configurator/internal/schema"
)

const testSchemaDoc = `[
  {
    "commandCode": 100, "name": "POSITION", "type": 3,
    "item": [
      {"name": "MODE", "dataType": "byte", "position": 1, "width": 1, "description": "positioning mode",
       "policy": "mandatory", "constraint": "map",
       "map": [{"value": 0, "tag": "static"}, {"value": 1, "tag": "mobile"}]},
      {"name": "OFFSET", "dataType": "float", "position": 2, "width": 4, "description": "offset",
       "defaultValue": 0.0, "constraint": "range", "minValue": -10.0, "maxValue": 10.0}
    ]
  },
  {
    "commandCode": 100, "name": "ANTENNA", "type": 8,
    "item": [
      {"name": "HEIGHT", "dataType": "double", "position": 1, "width": 8, "description": "height",
       "policy": "mandatory", "constraint": "range", "minValue": 0.0, "maxValue": 100.0},
      {"name": "LABEL", "dataType": "char", "position": 2, "width": 8, "description": "label", "defaultValue": ""},
      {"name": "VERSION", "dataType": "byte", "position": 3, "width": 1, "description": "version",
       "defaultValue": 3, "constraint": "fixed"}
    ]
  }
]`

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Load(strings.NewReader(testSchemaDoc))
	require.NoError(t, err)
	return s
}
