// Package sfnjson assembles Amazon States Language documents as plain maps.
//
// Every builder is a pure function: omitted options take their documented
// defaults, explicit values are copied through unchanged, and identical
// arguments always produce identical documents.
//
//	flow := sfnjson.Definition("emr lifecycle", "StartCluster", map[string]sfnjson.State{
//	    "StartCluster": start,
//	    "RunJob":       job,
//	    "Terminate":    sfnjson.ClusterTerminate("Done", "", nil),
//	    "Done":         sfnjson.Succeed(),
//	})
package sfnjson

import "reflect"

// State is one state, or a whole document, in map form.
type State = map[string]any

// Branch is one branch of a Parallel state holding a single task.
type Branch struct {
	Name string
	Task State
}

// Service integration resources.
const (
	ResourceCreateCluster    = "arn:aws:states:::elasticmapreduce:createCluster.sync"
	ResourceTerminateCluster = "arn:aws:states:::elasticmapreduce:terminateCluster.sync"
	ResourceAddStep          = "arn:aws:states:::elasticmapreduce:addStep.sync"
	ResourceLambdaInvoke     = "arn:aws:states:::lambda:invoke"
	ResourceStartExecution   = "arn:aws:states:::states:startExecution.sync"
	ResourceSNSPublish       = "arn:aws:states:::sns:publish"
)

// setTransition sets Next, or End when there is no next state.
func setTransition(s State, next string) {
	if next != "" {
		s["Next"] = next
	} else {
		s["End"] = true
	}
}

func setCatch(s State, catch []State) {
	if len(catch) > 0 {
		s["Catch"] = catch
	}
}

// Catch returns a catcher sending every error to next with the error under
// $.error.
func Catch(next string) []State {
	return []State{{
		"ErrorEquals": []string{"States.ALL"},
		"ResultPath":  "$.error",
		"Next":        next,
	}}
}

// Parallel runs each branch concurrently and stores the results under
// $.ParallelResult.
func Parallel(next string, catch []State, branches ...Branch) State {
	list := make([]State, 0, len(branches))
	for _, b := range branches {
		list = append(list, State{
			"StartAt": b.Name,
			"States":  State{b.Name: b.Task},
		})
	}

	s := State{
		"Type":       "Parallel",
		"Branches":   list,
		"ResultPath": "$.ParallelResult",
	}
	setTransition(s, next)
	setCatch(s, catch)
	return s
}

// MapOptions configures Map. Nil pointers take the defaults.
type MapOptions struct {
	Next      string
	Catch     []State
	ItemsPath string // default "$.args"
	// MaxConcurrency defaults to 100; an explicit 0 leaves it unset.
	MaxConcurrency *int
	// ResultPath defaults to "$.map"; an explicit "" renders null.
	ResultPath *string
}

// Map runs iterator once per item of ItemsPath.
func Map(iterator State, opts MapOptions) State {
	itemsPath := opts.ItemsPath
	if itemsPath == "" {
		itemsPath = "$.args"
	}

	var resultPath any = "$.map"
	if opts.ResultPath != nil {
		if *opts.ResultPath == "" {
			resultPath = nil
		} else {
			resultPath = *opts.ResultPath
		}
	}

	s := State{
		"Type":       "Map",
		"ItemsPath":  itemsPath,
		"Iterator":   iterator,
		"ResultPath": resultPath,
	}

	maxConcurrency := 100
	if opts.MaxConcurrency != nil {
		maxConcurrency = *opts.MaxConcurrency
	}
	if maxConcurrency != 0 {
		s["MaxConcurrency"] = maxConcurrency
	}
	setTransition(s, opts.Next)
	setCatch(s, opts.Catch)
	return s
}

// Lambda invokes a function. A nil payload sends the cluster ID.
func Lambda(arn any, next string, catch []State, payload map[string]any) State {
	if payload == nil {
		payload = map[string]any{"clusterId.$": "$.cluster.ClusterId"}
	}
	s := State{
		"Type":       "Task",
		"Resource":   ResourceLambdaInvoke,
		"ResultPath": "$.resp",
		"Parameters": State{
			"FunctionName": arn,
			"Payload":      payload,
		},
	}
	setTransition(s, next)
	setCatch(s, catch)
	return s
}

// StepFunctionOptions configures StepFunction.
type StepFunctionOptions struct {
	// Input is sent literally unless it is nil, zero or empty; otherwise
	// InputPath (default "$") is used.
	Input          any
	InputPath      string
	Next           string
	Catch          []State
	ResultSelector map[string]any
	Name           string
	NamePath       string
	// ResultPath renders null when empty.
	ResultPath string
	OutputPath string // default "$"
}

// StepFunction starts a nested execution and waits for it.
func StepFunction(arn any, opts StepFunctionOptions) State {
	params := State{"StateMachineArn": arn}
	if !isEmpty(opts.Input) {
		params["Input"] = opts.Input
	} else {
		inputPath := opts.InputPath
		if inputPath == "" {
			inputPath = "$"
		}
		params["Input.$"] = inputPath
	}
	if opts.Name != "" {
		params["Name"] = opts.Name
	}
	if opts.NamePath != "" {
		params["Name.$"] = opts.NamePath
	}

	s := State{
		"Type":       "Task",
		"Resource":   ResourceStartExecution,
		"Parameters": params,
	}
	setTransition(s, opts.Next)
	setCatch(s, opts.Catch)
	if len(opts.ResultSelector) > 0 {
		s["ResultSelector"] = opts.ResultSelector
	}

	var resultPath any
	if opts.ResultPath != "" {
		resultPath = opts.ResultPath
	}
	s["ResultPath"] = resultPath

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = "$"
	}
	s["OutputPath"] = outputPath
	return s
}

// Choice branches to next when variable (default "$.Status.success") equals
// booleanVal, and to defaultState otherwise.
func Choice(next, defaultState, variable string, booleanVal bool) State {
	if variable == "" {
		variable = "$.Status.success"
	}
	return State{
		"Type": "Choice",
		"Choices": []State{{
			"Variable":      variable,
			"BooleanEquals": booleanVal,
			"Next":          next,
		}},
		"Default": defaultState,
	}
}

// Flag is a Pass state writing {resultKey: booleanVal} to resultPath.
// Defaults: "$.Status" and "success".
func Flag(next, resultPath, resultKey string, booleanVal bool) State {
	if resultPath == "" {
		resultPath = "$.Status"
	}
	if resultKey == "" {
		resultKey = "success"
	}
	return State{
		"Type":       "Pass",
		"Result":     State{resultKey: booleanVal},
		"ResultPath": resultPath,
		"Next":       next,
	}
}

// SNS publishes message (an intrinsic expression, default the parsed error
// cause) to a topic.
func SNS(topicArn any, message, next string) State {
	if message == "" {
		message = "States.StringToJson($.error.Cause)"
	}
	s := State{
		"Type":     "Task",
		"Resource": ResourceSNSPublish,
		"Parameters": State{
			"Message.$": message,
			"TopicArn":  topicArn,
		},
		"ResultPath": "$.step_failure",
	}
	setTransition(s, next)
	return s
}

// Wait pauses for seconds.
func Wait(seconds int, next string) State {
	s := State{"Type": "Wait", "Seconds": seconds}
	setTransition(s, next)
	return s
}

// Succeed ends the execution successfully.
func Succeed() State {
	return State{"Type": "Succeed"}
}

// Failed ends the execution with an error. Defaults: "Error Occurred" and
// "One of the Step Failed.".
func Failed(errorName, cause string) State {
	if errorName == "" {
		errorName = "Error Occurred"
	}
	if cause == "" {
		cause = "One of the Step Failed."
	}
	return State{
		"Type":  "Fail",
		"Error": errorName,
		"Cause": cause,
	}
}

// Definition assembles a state-machine document.
func Definition(comment, startAt string, states map[string]State) State {
	doc := State{
		"StartAt": startAt,
		"States":  states,
	}
	if comment != "" {
		doc["Comment"] = comment
	}
	return doc
}

// isEmpty reports whether v is nil, a zero scalar or an empty collection.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() == 0
	}
	return rv.IsZero()
}
