package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cdkutils "github.com/lex00/cdkutils-go"
)

func pipelineTemplate() *cdkutils.Template {
	return &cdkutils.Template{
		Parameters: map[string]cdkutils.Parameter{
			"BucketParam": {Type: "String"},
		},
		Resources: map[string]cdkutils.ResourceDef{
			"ingest": {Type: "AWS::SQS::Queue"},
			"ingestdlq": {Type: "AWS::SQS::Queue"},
			"workerServiceRole": {Type: "AWS::IAM::Role"},
			"worker": {
				Type: "AWS::Lambda::Function",
				Properties: map[string]any{
					"Role": map[string]any{"Fn::GetAtt": []any{"workerServiceRole", "Arn"}},
					"Environment": map[string]any{
						"Variables": map[string]any{
							"QUEUE":  map[string]any{"Ref": "ingest"},
							"BUCKET": map[string]any{"Ref": "BucketParam"},
						},
					},
				},
				DependsOn: []string{"ingestdlq"},
			},
		},
	}
}

func TestGenerator_Generate_Edges(t *testing.T) {
	out, err := (&Generator{}).GenerateString(pipelineTemplate())
	require.NoError(t, err)

	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, `worker\n[AWS::Lambda::Function]`)
	assert.Contains(t, out, "blue")
	assert.Contains(t, out, "dashed")
	assert.NotContains(t, out, "BucketParam")
	assert.Equal(t, 3, strings.Count(out, "->"))
}

func TestGenerator_Generate_WithParameters(t *testing.T) {
	out, err := (&Generator{IncludeParameters: true}).GenerateString(pipelineTemplate())
	require.NoError(t, err)

	assert.Contains(t, out, "BucketParam")
	assert.Contains(t, out, "ellipse")
	assert.Equal(t, 4, strings.Count(out, "->"))
}

func TestGenerator_Generate_ClusterByType(t *testing.T) {
	out, err := (&Generator{ClusterByType: true}).GenerateString(pipelineTemplate())
	require.NoError(t, err)

	assert.Contains(t, out, "cluster_SQS")
	assert.NotContains(t, out, "cluster_Lambda")
}

func TestGenerator_Generate_Mermaid(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, (&Generator{Format: FormatMermaid}).Generate(pipelineTemplate(), &sb))

	out := sb.String()
	assert.True(t, strings.Contains(out, "graph") || strings.Contains(out, "flowchart"), out)
	assert.NotContains(t, out, "digraph")
}

func TestServiceOf(t *testing.T) {
	assert.Equal(t, "Lambda", ServiceOf("AWS::Lambda::Function"))
	assert.Equal(t, "StepFunctions", ServiceOf("AWS::StepFunctions::StateMachine"))
	assert.Equal(t, "Other", ServiceOf("Custom::Thing"))
}
