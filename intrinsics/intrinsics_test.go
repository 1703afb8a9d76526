package intrinsics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRef_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Ref{LogicalName: "IngestQueue"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Ref": "IngestQueue"}`, string(data))
}

func TestPseudoParameters(t *testing.T) {
	tests := []struct {
		name     string
		param    Ref
		expected string
	}{
		{"AWS_REGION", AWS_REGION, `{"Ref": "AWS::Region"}`},
		{"AWS_ACCOUNT_ID", AWS_ACCOUNT_ID, `{"Ref": "AWS::AccountId"}`},
		{"AWS_PARTITION", AWS_PARTITION, `{"Ref": "AWS::Partition"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.param)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestIsIntrinsic(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected bool
	}{
		{"ref", Ref{LogicalName: "Topic"}, true},
		{"getatt", GetAtt{LogicalName: "Queue", Attribute: "Arn"}, true},
		{"sub", Sub{String: "${AWS::Region}"}, true},
		{"normalized ref", map[string]any{"Ref": "Topic"}, true},
		{"normalized join", map[string]any{"Fn::Join": []any{"", []any{"a"}}}, true},
		{"plain map", map[string]any{"Name": "x"}, false},
		{"two keys", map[string]any{"Ref": "x", "Other": 1}, false},
		{"string", "arn:aws:sqs:eu-central-1:123456789012:q", false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsIntrinsic(tt.value))
		})
	}
}

func TestConcat_AllLiterals(t *testing.T) {
	assert.Equal(t, "arn:aws:s3:::data", Concat("arn:aws:s3:::", "data"))
	assert.Equal(t, "", Concat())
}

func TestConcat_WithIntrinsics(t *testing.T) {
	v := Concat("arn:", AWS_PARTITION, ":s3:::", "data", "/*")

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Fn::Join": ["", ["arn:", {"Ref": "AWS::Partition"}, ":s3:::data/*"]]}`, string(data))
}

func TestConcat_SingleIntrinsic(t *testing.T) {
	ref := Ref{LogicalName: "Bucket"}
	assert.Equal(t, ref, Concat(ref))
}

func TestString(t *testing.T) {
	assert.Equal(t, "x", String("x"))
	assert.Equal(t, "", String(Ref{LogicalName: "x"}))
}
