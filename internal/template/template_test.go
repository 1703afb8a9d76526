package template

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cdkutils "github.com/lex00/cdkutils-go"
)

func getAtt(name, attr string) map[string]any {
	return map[string]any{"Fn::GetAtt": []any{name, attr}}
}

func TestBuilder_Build_SimpleResource(t *testing.T) {
	b := NewBuilder("etl stack")
	require.NoError(t, b.AddResource(Node{
		LogicalID:  "IngestQueue",
		Type:       "AWS::SQS::Queue",
		Properties: map[string]any{"QueueName": "ingest"},
	}))

	template, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, "2010-09-09", template.AWSTemplateFormatVersion)
	assert.Equal(t, "etl stack", template.Description)
	require.Len(t, template.Resources, 1)

	queue := template.Resources["IngestQueue"]
	assert.Equal(t, "AWS::SQS::Queue", queue.Type)
	assert.Equal(t, "ingest", queue.Properties["QueueName"])
}

func TestBuilder_AddResource_Duplicate(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, b.AddResource(Node{LogicalID: "Queue", Type: "AWS::SQS::Queue"}))
	err := b.AddResource(Node{LogicalID: "Queue", Type: "AWS::SQS::Queue"})
	assert.ErrorContains(t, err, "duplicate logical ID")
}

func TestBuilder_AddResource_Invalid(t *testing.T) {
	b := NewBuilder("")
	assert.Error(t, b.AddResource(Node{Type: "AWS::SQS::Queue"}))
	assert.Error(t, b.AddResource(Node{LogicalID: "Queue"}))
}

func TestBuilder_Order_FollowsReferences(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, b.AddResource(Node{
		LogicalID: "Worker",
		Type:      "AWS::Lambda::Function",
		Properties: map[string]any{
			"Role": getAtt("WorkerRole", "Arn"),
		},
	}))
	require.NoError(t, b.AddResource(Node{
		LogicalID:  "WorkerRole",
		Type:       "AWS::IAM::Role",
		Properties: map[string]any{},
	}))
	require.NoError(t, b.AddResource(Node{
		LogicalID: "Trigger",
		Type:      "AWS::Lambda::EventSourceMapping",
		Properties: map[string]any{
			"FunctionName":   map[string]any{"Ref": "Worker"},
			"EventSourceArn": map[string]any{"Fn::Sub": "${Queue.Arn}"},
		},
		DependsOn: []string{"WorkerRole"},
	}))
	require.NoError(t, b.AddResource(Node{LogicalID: "Queue", Type: "AWS::SQS::Queue"}))

	_, err := b.Build()
	require.NoError(t, err)

	order, err := b.Order()
	require.NoError(t, err)

	index := make(map[string]int)
	for i, name := range order {
		index[name] = i
	}
	assert.Less(t, index["WorkerRole"], index["Worker"])
	assert.Less(t, index["Worker"], index["Trigger"])
	assert.Less(t, index["Queue"], index["Trigger"])
}

func TestBuilder_Build_UnknownReference(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, b.AddResource(Node{
		LogicalID:  "Worker",
		Type:       "AWS::Lambda::Function",
		Properties: map[string]any{"Role": getAtt("Missing", "Arn")},
	}))

	_, err := b.Build()
	assert.ErrorContains(t, err, `unknown resource "Missing"`)
}

func TestBuilder_Build_ParameterReference(t *testing.T) {
	b := NewBuilder("")
	b.AddParameter("BucketNameParam", cdkutils.Parameter{
		Type:    "AWS::SSM::Parameter::Value<String>",
		Default: "/data/bucket",
	})
	require.NoError(t, b.AddResource(Node{
		LogicalID:  "Grant",
		Type:       "AWS::LakeFormation::Permissions",
		Properties: map[string]any{"Bucket": map[string]any{"Ref": "BucketNameParam"}},
	}))

	template, err := b.Build()
	require.NoError(t, err)
	assert.Contains(t, template.Parameters, "BucketNameParam")
}

func TestBuilder_DetectCycle(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, b.AddResource(Node{
		LogicalID:  "A",
		Type:       "AWS::SQS::Queue",
		Properties: map[string]any{"X": map[string]any{"Ref": "B"}},
	}))
	require.NoError(t, b.AddResource(Node{
		LogicalID:  "B",
		Type:       "AWS::SQS::Queue",
		Properties: map[string]any{"X": map[string]any{"Ref": "A"}},
	}))

	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular dependency")
	assert.Contains(t, err.Error(), "A → B → A")
}

func TestReferences(t *testing.T) {
	v := map[string]any{
		"A": map[string]any{"Ref": "Topic"},
		"B": []any{getAtt("Queue", "Arn"), map[string]any{"Fn::GetAtt": "Role.Arn"}},
		"C": map[string]any{"Fn::Sub": "arn:${AWS::Partition}:states:::${Machine.Name}/${!Literal}"},
		"D": map[string]any{"Fn::Sub": []any{"${Var}-${Bucket}", map[string]any{"Var": map[string]any{"Ref": "Param"}}}},
	}

	assert.Equal(t, []string{"AWS::Partition", "Bucket", "Machine", "Param", "Queue", "Role", "Topic"}, References(v))
}

func TestToJSON(t *testing.T) {
	template := &cdkutils.Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Resources: map[string]cdkutils.ResourceDef{
			"Queue": {Type: "AWS::SQS::Queue", DeletionPolicy: "Delete"},
		},
	}

	data, err := ToJSON(template)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	resources := parsed["Resources"].(map[string]any)
	queue := resources["Queue"].(map[string]any)
	assert.Equal(t, "Delete", queue["DeletionPolicy"])
	assert.NotContains(t, queue, "Properties")
}

func TestToYAML(t *testing.T) {
	template := &cdkutils.Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Resources: map[string]cdkutils.ResourceDef{
			"Queue": {Type: "AWS::SQS::Queue", Properties: map[string]any{"QueueName": "ingest"}},
		},
	}

	data, err := ToYAML(template)
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.HasPrefix(out, "AWSTemplateFormatVersion"))
	assert.Contains(t, out, "QueueName: ingest")
}
