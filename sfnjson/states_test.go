package sfnjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestParallel(t *testing.T) {
	s := Parallel("Done", Catch("Notify"),
		Branch{Name: "Load", Task: Succeed()},
		Branch{Name: "Index", Task: Wait(5, "")},
	)

	assert.JSONEq(t, `{
		"Type": "Parallel",
		"Branches": [
			{"StartAt": "Load", "States": {"Load": {"Type": "Succeed"}}},
			{"StartAt": "Index", "States": {"Index": {"Type": "Wait", "Seconds": 5, "End": true}}}
		],
		"ResultPath": "$.ParallelResult",
		"Next": "Done",
		"Catch": [{"ErrorEquals": ["States.ALL"], "ResultPath": "$.error", "Next": "Notify"}]
	}`, toJSON(t, s))
}

func TestParallel_End(t *testing.T) {
	s := Parallel("", nil)
	assert.Equal(t, true, s["End"])
	assert.NotContains(t, s, "Next")
	assert.NotContains(t, s, "Catch")
}

func TestMap_Defaults(t *testing.T) {
	s := Map(Definition("", "Run", map[string]State{"Run": Succeed()}), MapOptions{Next: "Done"})

	assert.Equal(t, "$.args", s["ItemsPath"])
	assert.Equal(t, 100, s["MaxConcurrency"])
	assert.Equal(t, "$.map", s["ResultPath"])
	assert.Equal(t, "Done", s["Next"])
}

func TestMap_ExplicitZeroValues(t *testing.T) {
	s := Map(Succeed(), MapOptions{MaxConcurrency: intPtr(0), ResultPath: strPtr("")})

	assert.NotContains(t, s, "MaxConcurrency")
	assert.Contains(t, s, "ResultPath")
	assert.Nil(t, s["ResultPath"])
	assert.Equal(t, true, s["End"])
	assert.Contains(t, toJSON(t, s), `"ResultPath":null`)
}

func TestLambda(t *testing.T) {
	s := Lambda("arn:aws:lambda:eu-central-1:123456789012:function:check", "Next", nil, nil)
	assert.JSONEq(t, `{
		"Type": "Task",
		"Resource": "arn:aws:states:::lambda:invoke",
		"ResultPath": "$.resp",
		"Parameters": {
			"FunctionName": "arn:aws:lambda:eu-central-1:123456789012:function:check",
			"Payload": {"clusterId.$": "$.cluster.ClusterId"}
		},
		"Next": "Next"
	}`, toJSON(t, s))

	custom := Lambda("fn", "", nil, map[string]any{"a": 1})
	assert.Equal(t, map[string]any{"a": 1}, custom["Parameters"].(State)["Payload"])
}

func TestStepFunction(t *testing.T) {
	tests := []struct {
		name     string
		opts     StepFunctionOptions
		expected string
	}{
		{
			name: "defaults",
			opts: StepFunctionOptions{},
			expected: `{
				"Type": "Task",
				"Resource": "arn:aws:states:::states:startExecution.sync",
				"Parameters": {"StateMachineArn": "arn", "Input.$": "$"},
				"End": true,
				"ResultPath": null,
				"OutputPath": "$"
			}`,
		},
		{
			name: "literal input",
			opts: StepFunctionOptions{
				Input:          map[string]any{"job": "load"},
				Next:           "Done",
				Name:           "child",
				ResultSelector: map[string]any{"Output.$": "$.Output"},
				ResultPath:     "$.child",
				OutputPath:     "$.child",
			},
			expected: `{
				"Type": "Task",
				"Resource": "arn:aws:states:::states:startExecution.sync",
				"Parameters": {"StateMachineArn": "arn", "Input": {"job": "load"}, "Name": "child"},
				"Next": "Done",
				"ResultSelector": {"Output.$": "$.Output"},
				"ResultPath": "$.child",
				"OutputPath": "$.child"
			}`,
		},
		{
			name: "empty input",
			opts: StepFunctionOptions{Input: map[string]any{}, InputPath: "$.payload"},
			expected: `{
				"Type": "Task",
				"Resource": "arn:aws:states:::states:startExecution.sync",
				"Parameters": {"StateMachineArn": "arn", "Input.$": "$.payload"},
				"End": true,
				"ResultPath": null,
				"OutputPath": "$"
			}`,
		},
		{
			name: "empty string input",
			opts: StepFunctionOptions{Input: ""},
			expected: `{
				"Type": "Task",
				"Resource": "arn:aws:states:::states:startExecution.sync",
				"Parameters": {"StateMachineArn": "arn", "Input.$": "$"},
				"End": true,
				"ResultPath": null,
				"OutputPath": "$"
			}`,
		},
		{
			name: "input and name paths",
			opts: StepFunctionOptions{InputPath: "$.payload", NamePath: "$.name"},
			expected: `{
				"Type": "Task",
				"Resource": "arn:aws:states:::states:startExecution.sync",
				"Parameters": {"StateMachineArn": "arn", "Input.$": "$.payload", "Name.$": "$.name"},
				"End": true,
				"ResultPath": null,
				"OutputPath": "$"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.expected, toJSON(t, StepFunction("arn", tt.opts)))
		})
	}
}

func TestChoice(t *testing.T) {
	assert.JSONEq(t, `{
		"Type": "Choice",
		"Choices": [{"Variable": "$.Status.success", "BooleanEquals": true, "Next": "Ok"}],
		"Default": "Fail"
	}`, toJSON(t, Choice("Ok", "Fail", "", true)))

	s := Choice("Ok", "Fail", "$.done", false)
	choice := s["Choices"].([]State)[0]
	assert.Equal(t, "$.done", choice["Variable"])
	assert.Equal(t, false, choice["BooleanEquals"])
}

func TestFlag(t *testing.T) {
	assert.JSONEq(t, `{
		"Type": "Pass",
		"Result": {"success": false},
		"ResultPath": "$.Status",
		"Next": "Check"
	}`, toJSON(t, Flag("Check", "", "", false)))

	s := Flag("Check", "$.flags", "loaded", true)
	assert.Equal(t, State{"loaded": true}, s["Result"])
	assert.Equal(t, "$.flags", s["ResultPath"])
}

func TestSNS(t *testing.T) {
	s := SNS("arn:aws:sns:eu-central-1:123456789012:alerts", "", "Fail")
	assert.JSONEq(t, `{
		"Type": "Task",
		"Resource": "arn:aws:states:::sns:publish",
		"Parameters": {
			"Message.$": "States.StringToJson($.error.Cause)",
			"TopicArn": "arn:aws:sns:eu-central-1:123456789012:alerts"
		},
		"ResultPath": "$.step_failure",
		"Next": "Fail"
	}`, toJSON(t, s))
}

func TestFailed(t *testing.T) {
	assert.Equal(t, State{"Type": "Fail", "Error": "Error Occurred", "Cause": "One of the Step Failed."}, Failed("", ""))
	assert.Equal(t, State{"Type": "Fail", "Error": "Timeout", "Cause": "too slow"}, Failed("Timeout", "too slow"))
}

func TestDefinition(t *testing.T) {
	doc := Definition("", "Done", map[string]State{"Done": Succeed()})
	assert.NotContains(t, doc, "Comment")
	assert.Equal(t, "Done", doc["StartAt"])

	doc = Definition("lifecycle", "Done", map[string]State{"Done": Succeed()})
	assert.Equal(t, "lifecycle", doc["Comment"])
}

func TestBuilders_Deterministic(t *testing.T) {
	build := func() State {
		return Parallel("Next", Catch("Fail"),
			Branch{Name: "A", Task: Lambda("fn", "", nil, nil)},
			Branch{Name: "B", Task: Map(Succeed(), MapOptions{})},
		)
	}
	assert.Equal(t, build(), build())
}
