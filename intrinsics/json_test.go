package intrinsics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONString_Literal(t *testing.T) {
	got, err := JSONString(struct {
		B string
		A int
	}{B: "x & y", A: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"B":"x & y","A":1}`, got)
}

func TestJSONString_WithIntrinsics(t *testing.T) {
	v := struct {
		TaskDefinition any
		Subnets        []any
		Count          int
	}{
		TaskDefinition: Ref{LogicalName: "Export"},
		Subnets:        []any{"subnet-a", GetAtt{LogicalName: "Subnet", Attribute: "Id"}},
		Count:          1,
	}

	got, err := JSONString(v)
	require.NoError(t, err)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Fn::Join": ["", [
		"{\"TaskDefinition\":\"", {"Ref": "Export"},
		"\",\"Subnets\":[\"subnet-a\",\"", {"Fn::GetAtt": ["Subnet", "Id"]},
		"\"],\"Count\":1}"
	]]}`, string(data))
}
