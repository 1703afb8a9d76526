package cdkutils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTemplate_JSONOmitsEmptySections(t *testing.T) {
	tmpl := Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Resources: map[string]ResourceDef{
			"ingest": {Type: "AWS::SQS::Queue"},
		},
	}

	data, err := json.Marshal(tmpl)
	require.NoError(t, err)
	assert.JSONEq(t, `{"AWSTemplateFormatVersion":"2010-09-09","Resources":{"ingest":{"Type":"AWS::SQS::Queue"}}}`, string(data))
}

func TestResourceDef_Attributes(t *testing.T) {
	def := ResourceDef{
		Type:                "AWS::Logs::LogGroup",
		Properties:          map[string]any{"RetentionInDays": 30},
		DependsOn:           []string{"workerServiceRole"},
		DeletionPolicy:      "Retain",
		UpdateReplacePolicy: "Retain",
	}

	data, err := json.Marshal(def)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"Type": "AWS::Logs::LogGroup",
		"Properties": {"RetentionInDays": 30},
		"DependsOn": ["workerServiceRole"],
		"DeletionPolicy": "Retain",
		"UpdateReplacePolicy": "Retain"
	}`, string(data))
}

func TestOutput_Export(t *testing.T) {
	out := Output{
		Description: "queue",
		Value:       map[string]any{"Fn::GetAtt": []any{"ingest", "Arn"}},
		Export:      &Export{Name: "etl-queue-arn"},
	}

	data, err := yaml.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Export:\n    Name: etl-queue-arn")

	data, err = json.Marshal(Output{Value: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Value":"x"}`, string(data))
}

func TestParameter_NoEcho(t *testing.T) {
	tests := []struct {
		name     string
		param    Parameter
		expected string
	}{
		{
			name:     "ssm backed",
			param:    Parameter{Type: "AWS::SSM::Parameter::Value<String>", Default: "/data/bucket"},
			expected: `{"Type":"AWS::SSM::Parameter::Value<String>","Default":"/data/bucket"}`,
		},
		{
			name:     "secret",
			param:    Parameter{Type: "String", NoEcho: true, AllowedPattern: "^[a-z]+$"},
			expected: `{"Type":"String","AllowedPattern":"^[a-z]+$","NoEcho":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.param)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestResults_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(LintResult{Success: false, Issues: []LintIssue{
		{Rule: "E3012", Severity: "error", Message: "bad type", Path: "Resources/ingest"},
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"issues":[{"rule":"E3012","severity":"error","message":"bad type","path":"Resources/ingest"}]}`, string(data))

	data, err = json.Marshal(ValidateResult{File: "flow.json", Success: true, States: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"file":"flow.json","success":true,"states":3}`, string(data))

	data, err = json.Marshal(DiffSummary{Added: 1, Total: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"added":1,"removed":0,"modified":0,"total":1}`, string(data))
}
