package stepfunctions

import (
	"fmt"
	"strings"
	"time"

	"github.com/lex00/cdkutils-go/resources/ecs"
	"github.com/lex00/cdkutils-go/resources/lambda"
	"github.com/lex00/cdkutils-go/resources/sns"
)

// The helpers below build states with the defaults used across the data
// pipelines: results land under a named key of the state input and the
// whole input flows through.

// LambdaStepProps configures InvokeLambdaStep.
type LambdaStepProps struct {
	Payload map[string]any
	// FromPath passes the value at JSONPath instead of Payload.
	FromPath bool
	JSONPath string
	// Zero values default to "$", "$", {"$": "$"} and "$.resp".
	InputPath      string
	OutputPath     string
	ResultSelector map[string]any
	ResultPath     string
}

// InvokeLambdaStep invokes fn with Payload or, with FromPath, with the value
// at JSONPath.
func InvokeLambdaStep(name string, fn lambda.IFunction, props LambdaStepProps) (*Task, error) {
	payload := InputFromObject(props.Payload)
	if props.FromPath {
		payload = InputFromJSONPath(orDefault(props.JSONPath, "$"))
	} else if props.Payload == nil {
		payload = InputFromObject(map[string]any{})
	}
	selector := props.ResultSelector
	if selector == nil {
		selector = map[string]any{"$": "$"}
	}
	return LambdaInvoke(name, fn, LambdaInvokeProps{
		TaskProps: TaskProps{Paths: Paths{
			InputPath:      orDefault(props.InputPath, "$"),
			OutputPath:     orDefault(props.OutputPath, "$"),
			ResultPath:     orDefault(props.ResultPath, "$.resp"),
			ResultSelector: selector,
		}},
		Payload: payload,
	})
}

// TriggerProps configures TriggerStateMachineStep.
type TriggerProps struct {
	// Zero values default to "$", "$.sfn_invoke" and "$".
	InputPath      string
	ResultPath     string
	OutputPath     string
	ExecutionName  string
	ResultSelector map[string]any
	Input          map[string]any
	// IntegrationPattern defaults to RUN_JOB.
	IntegrationPattern IntegrationPattern
}

// TriggerStateMachineStep starts sm and, by default, waits for it.
func TriggerStateMachineStep(name string, sm IStateMachine, props TriggerProps) (*Task, error) {
	pattern := props.IntegrationPattern
	if pattern == "" {
		pattern = RunJob
	}
	var input TaskInput
	if props.Input != nil {
		input = InputFromObject(props.Input)
	}
	return StepFunctionsStartExecution(name, sm, StartExecutionProps{
		TaskProps: TaskProps{
			Paths: Paths{
				InputPath:      orDefault(props.InputPath, "$"),
				ResultPath:     orDefault(props.ResultPath, "$.sfn_invoke"),
				OutputPath:     orDefault(props.OutputPath, "$"),
				ResultSelector: props.ResultSelector,
			},
			IntegrationPattern: pattern,
		},
		Input:         input,
		ExecutionName: props.ExecutionName,
	})
}

// RunEcsTaskStep runs task on cluster with result path "$.sfn_invoke" and
// input and output path "$" unless props set them.
func RunEcsTaskStep(name string, cluster *ecs.Cluster, task *ecs.TaskDefinition, props EcsRunTaskProps) (*Task, error) {
	props.InputPath = orDefault(props.InputPath, "$")
	props.OutputPath = orDefault(props.OutputPath, "$")
	props.ResultPath = orDefault(props.ResultPath, "$.sfn_invoke")
	return EcsRunTask(name, cluster, task, props)
}

// ServiceCallProps configures ServiceCallStep.
type ServiceCallProps struct {
	// Zero values default to appflow, appflow:StartFlow, ["*"],
	// {"FlowName.$": "$"} and "$".
	Service      string
	IamAction    string
	IamResources []any
	Parameters   map[string]any
	ResultPath   string
}

// ServiceCallStep calls action of an AWS service, by default starting the
// AppFlow flow named by the state input.
func ServiceCallStep(name, action string, props ServiceCallProps) (*Task, error) {
	params := props.Parameters
	if params == nil {
		params = map[string]any{"FlowName.$": "$"}
	}
	return CallAwsService(name, orDefault(props.Service, "appflow"), action, CallAwsServiceProps{
		TaskProps:    TaskProps{Paths: Paths{ResultPath: orDefault(props.ResultPath, "$")}},
		Parameters:   params,
		IamAction:    orDefault(props.IamAction, "appflow:StartFlow"),
		IamResources: props.IamResources,
	})
}

// MapStateProps configures MapStep.
type MapStateProps struct {
	// Zero values default to "$.args", "$", "$.map_resp" and 6.
	ItemsPath      string
	InputPath      string
	ResultPath     string
	MaxConcurrency int
	Parameters     map[string]any
	ResultSelector map[string]any
}

// MapStep creates a Map state; set its iterator with Iterator.
func MapStep(name string, props MapStateProps) *Map {
	concurrency := props.MaxConcurrency
	if concurrency == 0 {
		concurrency = 6
	}
	return NewMap(name, MapProps{
		Paths: Paths{
			InputPath:      orDefault(props.InputPath, "$"),
			ResultPath:     orDefault(props.ResultPath, "$.map_resp"),
			ResultSelector: props.ResultSelector,
		},
		ItemsPath:      orDefault(props.ItemsPath, "$.args"),
		MaxConcurrency: concurrency,
		Parameters:     props.Parameters,
	})
}

// ParallelStep creates a Parallel state named "Parallel State" unless
// name is set, with input path "$" unless props set it.
func ParallelStep(name string, props Paths) *Parallel {
	props.InputPath = orDefault(props.InputPath, "$")
	return NewParallel(orDefault(name, "Parallel State"), props)
}

// PassStateProps configures PassStep.
type PassStateProps struct {
	// Zero values default to "$.pass_state", "Pass state for
	// step-function" and "$".
	ResultPath string
	Comment    string
	OutputPath string
	// Result defaults to an empty object. With FromPath it is a JSON path
	// string selecting the result from the input.
	Result     any
	FromPath   bool
	Parameters map[string]any
}

// PassStep creates a Pass state.
func PassStep(name string, props PassStateProps) (*Pass, error) {
	result := props.Result
	if props.FromPath {
		path, ok := result.(string)
		if !ok {
			return nil, fmt.Errorf("%s: path result must be a string, got %T", name, result)
		}
		result = Path(path)
	} else if result == nil {
		result = map[string]any{}
	}
	return NewPass(name, PassProps{
		Paths: Paths{
			Comment:    orDefault(props.Comment, "Pass state for step-function"),
			ResultPath: orDefault(props.ResultPath, "$.pass_state"),
			OutputPath: orDefault(props.OutputPath, "$"),
		},
		Result:     result,
		Parameters: props.Parameters,
	}), nil
}

var conditionKinds = map[string]string{
	"bool":      "boolean_equals",
	"string":    "string_equals",
	"number":    "number_equals",
	"timestamp": "timestamp_equals",
}

// AddCondition continues choice with next when the value at path equals
// value. kind is bool (default), string, number or timestamp.
func AddCondition(choice *Choice, path string, next Chainable, kind string, value any) (*Choice, error) {
	typ, ok := conditionKinds[orDefault(kind, "bool")]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCondition, kind)
	}
	cond, err := ConditionFromType(typ, path, value)
	if err != nil {
		return nil, err
	}
	return choice.When(cond, next), nil
}

// WaitStateProps configures WaitStep.
type WaitStateProps struct {
	Seconds int
	// TimestampPath waits until the timestamp at the path instead.
	TimestampPath string
	// Comment defaults to "Waiting For <Seconds>".
	Comment string
}

// WaitStep creates a Wait state.
func WaitStep(name string, props WaitStateProps) *Wait {
	comment := props.Comment
	if comment == "" {
		comment = fmt.Sprintf("Waiting For %d", props.Seconds)
	}
	wt := WaitDuration(time.Duration(props.Seconds) * time.Second)
	if props.TimestampPath != "" {
		wt = WaitTimestampPath(props.TimestampPath)
	}
	return NewWait(name, WaitProps{Comment: comment, Time: wt})
}

// SucceedStep creates a Succeed state named "Succeeded" unless name is set.
func SucceedStep(name string) *Succeed {
	return NewSucceed(orDefault(name, "Succeeded"), Paths{})
}

// FailedStep creates a Fail state. Empty arguments default to "Failed",
// "One of the State Failed" and "Failed".
func FailedStep(name, cause, errorName string) *Fail {
	return NewFail(orDefault(name, "Failed"), FailProps{
		Cause: orDefault(cause, "One of the State Failed"),
		Error: orDefault(errorName, "Failed"),
	})
}

// SnsStateProps configures SnsPublishStep.
type SnsStateProps struct {
	// FromPath defaults to true: message is a JSON path string.
	FromPath *bool
	// Zero values default to "$.sns" and "SNS Message".
	ResultPath string
	Subject    string
}

// SnsPublishStep publishes message, a JSON path string or an object, to
// topic.
func SnsPublishStep(name string, topic sns.ITopic, message any, props SnsStateProps) (*Task, error) {
	var in TaskInput
	if props.FromPath == nil || *props.FromPath {
		path, ok := message.(string)
		if !ok {
			return nil, fmt.Errorf("%s: message path must be a string, got %T", name, message)
		}
		in = InputFromJSONPath(path)
	} else {
		obj, ok := message.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: message must be an object, got %T", name, message)
		}
		in = InputFromObject(obj)
	}
	return SnsPublish(name, topic, in, SnsPublishProps{
		TaskProps: TaskProps{Paths: Paths{ResultPath: orDefault(props.ResultPath, "$.sns")}},
		Subject:   orDefault(props.Subject, "SNS Message"),
	})
}

// EmrClusterStep launches clusterName and stores the cluster under
// "$.cluster".
func EmrClusterStep(name, clusterName string, cfg EmrClusterConfig) (*Task, error) {
	return EmrCreateCluster(name, clusterName, cfg, TaskProps{Paths: Paths{ResultPath: "$.cluster"}})
}

// AddEmrStep runs jar with args on the cluster created by EmrClusterStep.
// The state is named stepName or, when empty, the upper-cased last
// argument; the EMR step is named jarStepName or the state name.
func AddEmrStep(jar string, args []string, stepName, jarStepName string) (*Task, error) {
	name := stepName
	if name == "" {
		if len(args) == 0 {
			return nil, fmt.Errorf("EMR step for %s needs a name or arguments", jar)
		}
		name = strings.ToUpper(args[len(args)-1])
	}
	return EmrAddStep(name, jar, args, EmrAddStepProps{
		TaskProps: TaskProps{Paths: Paths{
			ResultPath:     "$.task",
			ResultSelector: map[string]any{"task_result.$": "$.SdkHttpMetadata.HttpStatusCode"},
		}},
		ClusterID:       DefaultClusterID,
		StepName:        orDefault(jarStepName, name),
		ActionOnFailure: "CONTINUE",
	})
}

// TerminateEmrStep terminates the cluster created by EmrClusterStep and
// stores the result under resultPath, default "$.terminate".
func TerminateEmrStep(name, resultPath string) (*Task, error) {
	return EmrTerminateCluster(name, DefaultClusterID, TaskProps{Paths: Paths{ResultPath: orDefault(resultPath, "$.terminate")}})
}

// GlueJobRunStep starts Glue job jobName with arguments.
func GlueJobRunStep(name, jobName string, pattern IntegrationPattern, arguments TaskInput) (*Task, error) {
	return GlueStartJobRun(name, jobName, GlueStartJobRunProps{
		TaskProps: TaskProps{IntegrationPattern: pattern},
		Arguments: arguments,
	})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
