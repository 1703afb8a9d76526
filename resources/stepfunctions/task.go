package stepfunctions

import (
	"fmt"
	"strings"
	"time"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/resources/ec2"
	"github.com/lex00/cdkutils-go/resources/ecs"
	"github.com/lex00/cdkutils-go/resources/iam"
	"github.com/lex00/cdkutils-go/resources/lambda"
	"github.com/lex00/cdkutils-go/resources/sns"
	"github.com/lex00/cdkutils-go/resources/sqs"
)

// TaskProps are the fields shared by every service integration.
type TaskProps struct {
	Paths
	// IntegrationPattern defaults to the task's usual pattern.
	IntegrationPattern IntegrationPattern
	Timeout            time.Duration
	Heartbeat          time.Duration
}

// Task calls an AWS service through a Step Functions integration.
type Task struct {
	stateBase
	resource   any
	parameters map[string]any
	timeout    time.Duration
	heartbeat  time.Duration
	policies   []*intrinsics.PolicyStatement
}

func newTask(name string, props TaskProps, resource any, params map[string]any) *Task {
	return &Task{
		stateBase:  stateBase{name: name, paths: props.Paths},
		resource:   resource,
		parameters: params,
		timeout:    props.Timeout,
		heartbeat:  props.Heartbeat,
	}
}

// AddRetry retries the task on failure.
func (t *Task) AddRetry(r Retry) *Task {
	t.retries = append(t.retries, r)
	return t
}

// AddCatch continues with handler when the task fails.
func (t *Task) AddCatch(handler Chainable, props CatchProps) *Task {
	t.addCatch(handler, props)
	return t
}

// PolicyStatements returns the permissions the state machine role needs to
// run the task.
func (t *Task) PolicyStatements() []*intrinsics.PolicyStatement {
	return append([]*intrinsics.PolicyStatement(nil), t.policies...)
}

func (t *Task) allow(actions []string, resources ...any) {
	t.policies = append(t.policies, iam.PolicyStatement(actions, resources...))
}

func (t *Task) StartState() State       { return t }
func (t *Task) EndStates() []State      { return []State{t} }
func (t *Task) Next(n Chainable) *Chain { return Start(t).Next(n) }

func (t *Task) toJSON(g *graph) (map[string]any, error) {
	m, err := t.common("Task", true)
	if err != nil {
		return nil, err
	}
	m["Resource"] = t.resource
	if len(t.parameters) > 0 {
		params, err := renderObject(t.parameters)
		if err != nil {
			return nil, fmt.Errorf("%s: Parameters: %w", t.name, err)
		}
		m["Parameters"] = params
	}
	if t.timeout > 0 {
		m["TimeoutSeconds"] = int(t.timeout / time.Second)
	}
	if t.heartbeat > 0 {
		m["HeartbeatSeconds"] = int(t.heartbeat / time.Second)
	}
	g.policies = append(g.policies, t.policies...)
	return m, nil
}

// integrationArn is "arn:<partition>:states:::<service>:<action><suffix>".
func integrationArn(service, action string, p IntegrationPattern) any {
	return intrinsics.Concat("arn:", intrinsics.AWS_PARTITION, ":states:::", service, ":", action, p.suffix())
}

// regionalArn is an ARN in the deploying account and region.
func regionalArn(service string, resource ...any) any {
	parts := []any{"arn:", intrinsics.AWS_PARTITION, ":", service, ":", intrinsics.AWS_REGION, ":", intrinsics.AWS_ACCOUNT_ID, ":"}
	return intrinsics.Concat(append(parts, resource...)...)
}

func checkPattern(task string, p IntegrationPattern, supported ...IntegrationPattern) error {
	for _, s := range supported {
		if p == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s does not support %s", ErrUnsupportedPattern, task, p)
}

func requireTaskToken(task string, p IntegrationPattern, in TaskInput) error {
	if p == WaitForTaskToken && !in.hasTaskToken() {
		return fmt.Errorf("%s: %s needs the task token in its input", task, WaitForTaskToken)
	}
	return nil
}

// eventsRule allows the state machine to manage the EventBridge rule Step
// Functions uses to track RUN_JOB integrations.
func (t *Task) eventsRule(rule string) {
	t.allow([]string{"events:PutTargets", "events:PutRule", "events:DescribeRule"}, regionalArn("events", "rule/"+rule))
}

var lambdaServiceErrors = []string{
	"Lambda.ClientExecutionTimeoutException",
	"Lambda.ServiceException",
	"Lambda.AWSLambdaException",
	"Lambda.SdkClientException",
}

var invocationTypes = map[string]string{
	"DRY_RUN":          "DryRun",
	"EVENT":            "Event",
	"REQUEST_RESPONSE": "RequestResponse",
}

// LambdaInvokeProps configures LambdaInvoke.
type LambdaInvokeProps struct {
	TaskProps
	// Payload defaults to the whole state input.
	Payload TaskInput
	// InvocationType is DRY_RUN, EVENT or REQUEST_RESPONSE.
	InvocationType string
	Qualifier      string
	// RetryOnServiceExceptions defaults to true.
	RetryOnServiceExceptions *bool
}

// LambdaInvoke invokes fn.
func LambdaInvoke(name string, fn lambda.IFunction, props LambdaInvokeProps) (*Task, error) {
	p := props.IntegrationPattern
	if p == "" {
		p = RequestResponse
	}
	if err := checkPattern("LambdaInvoke", p, RequestResponse, WaitForTaskToken); err != nil {
		return nil, err
	}
	if err := requireTaskToken(name, p, props.Payload); err != nil {
		return nil, err
	}

	params := map[string]any{"FunctionName": fn.Arn()}
	if props.Payload.IsZero() {
		params["Payload.$"] = string(EntirePayload)
	} else if err := props.Payload.set(params, "Payload"); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if props.InvocationType != "" {
		it, ok := invocationTypes[strings.ToUpper(props.InvocationType)]
		if !ok {
			return nil, fmt.Errorf("%s: unknown invocation type %q", name, props.InvocationType)
		}
		params["InvocationType"] = it
	}
	if props.Qualifier != "" {
		params["Qualifier"] = props.Qualifier
	}

	t := newTask(name, props.TaskProps, integrationArn("lambda", "invoke", p), params)
	t.allow([]string{"lambda:InvokeFunction"}, fn.Arn(), intrinsics.Concat(fn.Arn(), ":*"))
	if props.RetryOnServiceExceptions == nil || *props.RetryOnServiceExceptions {
		t.AddRetry(Retry{Errors: lambdaServiceErrors, Interval: 2 * time.Second, MaxAttempts: 6, BackoffRate: 2})
	}
	return t, nil
}

// SqsSendMessageProps configures SqsSendMessage.
type SqsSendMessageProps struct {
	TaskProps
	Delay                  time.Duration
	MessageGroupID         string
	MessageDeduplicationID string
}

// SqsSendMessage sends body to queue.
func SqsSendMessage(name string, queue sqs.IQueue, body TaskInput, props SqsSendMessageProps) (*Task, error) {
	p := props.IntegrationPattern
	if p == "" {
		p = RequestResponse
	}
	if err := checkPattern("SqsSendMessage", p, RequestResponse, WaitForTaskToken); err != nil {
		return nil, err
	}
	if body.IsZero() {
		return nil, fmt.Errorf("%s: message body is required", name)
	}
	if err := requireTaskToken(name, p, body); err != nil {
		return nil, err
	}

	params := map[string]any{"QueueUrl": queue.URL()}
	if err := body.set(params, "MessageBody"); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if props.Delay > 0 {
		params["DelaySeconds"] = int(props.Delay / time.Second)
	}
	if props.MessageGroupID != "" {
		params["MessageGroupId"] = props.MessageGroupID
	}
	if props.MessageDeduplicationID != "" {
		params["MessageDeduplicationId"] = props.MessageDeduplicationID
	}

	t := newTask(name, props.TaskProps, integrationArn("sqs", "sendMessage", p), params)
	t.allow([]string{"sqs:SendMessage"}, queue.Arn())
	return t, nil
}

// SqsSendMessageText sends a literal text message.
func SqsSendMessageText(name string, queue sqs.IQueue, text string, props SqsSendMessageProps) (*Task, error) {
	return SqsSendMessage(name, queue, InputFromText(text), props)
}

// SqsSendMessageObject sends obj as a JSON message. Under
// WAIT_FOR_TASK_TOKEN, top-level values equal to "$$.Task.Token" are
// replaced by the task token.
func SqsSendMessageObject(name string, queue sqs.IQueue, obj map[string]any, props SqsSendMessageProps) (*Task, error) {
	body := make(map[string]any, len(obj))
	for k, v := range obj {
		if props.IntegrationPattern == WaitForTaskToken && v == string(TaskToken) {
			v = TaskToken
		}
		body[k] = v
	}
	return SqsSendMessage(name, queue, InputFromObject(body), props)
}

// SnsPublishProps configures SnsPublish.
type SnsPublishProps struct {
	TaskProps
	Subject string
}

// SnsPublish publishes message to topic.
func SnsPublish(name string, topic sns.ITopic, message TaskInput, props SnsPublishProps) (*Task, error) {
	p := props.IntegrationPattern
	if p == "" {
		p = RequestResponse
	}
	if err := checkPattern("SnsPublish", p, RequestResponse, WaitForTaskToken); err != nil {
		return nil, err
	}
	if message.IsZero() {
		return nil, fmt.Errorf("%s: message is required", name)
	}
	if err := requireTaskToken(name, p, message); err != nil {
		return nil, err
	}

	params := map[string]any{"TopicArn": topic.Arn()}
	if err := message.set(params, "Message"); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if props.Subject != "" {
		params["Subject"] = props.Subject
	}

	t := newTask(name, props.TaskProps, integrationArn("sns", "publish", p), params)
	t.allow([]string{"sns:Publish"}, topic.Arn())
	return t, nil
}

// StartExecutionProps configures StepFunctionsStartExecution.
type StartExecutionProps struct {
	TaskProps
	// Input defaults to the whole state input.
	Input         TaskInput
	ExecutionName string
}

// StepFunctionsStartExecution starts an execution of sm. RUN_JOB waits for
// the execution and returns its output as JSON.
func StepFunctionsStartExecution(name string, sm IStateMachine, props StartExecutionProps) (*Task, error) {
	p := props.IntegrationPattern
	if p == "" {
		p = RequestResponse
	}
	if err := requireTaskToken(name, p, props.Input); err != nil {
		return nil, err
	}

	params := map[string]any{"StateMachineArn": sm.Arn()}
	if props.Input.IsZero() {
		params["Input.$"] = string(EntirePayload)
	} else if err := props.Input.set(params, "Input"); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if props.ExecutionName != "" {
		params["Name"] = props.ExecutionName
	}

	resource := integrationArn("states", "startExecution", p)
	if p == RunJob {
		resource = intrinsics.Concat(resource, ":2")
	}
	t := newTask(name, props.TaskProps, resource, params)
	t.allow([]string{"states:StartExecution"}, sm.Arn())
	if p == RunJob {
		t.allow([]string{"states:DescribeExecution", "states:StopExecution"},
			regionalArn("states", "execution:", sm.Name(), ":*"))
		t.eventsRule("StepFunctionsGetEventsForStepFunctionsExecutionRule")
	}
	return t, nil
}

// ContainerOverride changes a container of an ECS task for one run.
type ContainerOverride struct {
	ContainerName string
	Command       []string
	// Environment values may be Paths.
	Environment map[string]any
	Cpu         int
	MemoryMiB   int
}

// EcsRunTaskProps configures EcsRunTask.
type EcsRunTaskProps struct {
	TaskProps
	// Subnets default to the private subnets of the cluster VPC.
	Subnets        []any
	SecurityGroups []any
	AssignPublicIP bool
	// PlatformVersion defaults to LATEST.
	PlatformVersion    string
	ContainerOverrides []ContainerOverride
}

// EcsRunTask runs task on cluster with the Fargate launch type.
func EcsRunTask(name string, cluster *ecs.Cluster, task *ecs.TaskDefinition, props EcsRunTaskProps) (*Task, error) {
	p := props.IntegrationPattern
	if p == "" {
		p = RequestResponse
	}

	subnets := props.Subnets
	if len(subnets) == 0 && cluster.Vpc() != nil {
		private, err := ec2.GetSubnets(cluster.Vpc(), ec2.SubnetPrivate)
		if err != nil {
			return nil, err
		}
		for _, id := range ec2.SubnetIDs(private) {
			subnets = append(subnets, id)
		}
	}
	if len(subnets) == 0 {
		return nil, fmt.Errorf("%s: no subnets to run the task in", name)
	}
	publicIP := "DISABLED"
	if props.AssignPublicIP {
		publicIP = "ENABLED"
	}
	network := map[string]any{"Subnets": subnets, "AssignPublicIp": publicIP}
	if len(props.SecurityGroups) > 0 {
		network["SecurityGroups"] = props.SecurityGroups
	}
	platform := props.PlatformVersion
	if platform == "" {
		platform = "LATEST"
	}

	params := map[string]any{
		"Cluster":              cluster.Arn(),
		"TaskDefinition":       task.Arn(),
		"LaunchType":           "FARGATE",
		"PlatformVersion":      platform,
		"NetworkConfiguration": map[string]any{"AwsvpcConfiguration": network},
	}
	if len(props.ContainerOverrides) > 0 {
		overrides := make([]any, 0, len(props.ContainerOverrides))
		for _, o := range props.ContainerOverrides {
			if _, ok := task.Container(o.ContainerName); !ok {
				return nil, fmt.Errorf("%s: task definition has no container %q", name, o.ContainerName)
			}
			overrides = append(overrides, o.toJSON())
		}
		params["Overrides"] = map[string]any{"ContainerOverrides": overrides}
	}

	t := newTask(name, props.TaskProps, integrationArn("ecs", "runTask", p), params)
	t.allow([]string{"ecs:RunTask"}, task.Arn())
	t.allow([]string{"ecs:StopTask", "ecs:DescribeTasks"}, "*")
	roles := []any{task.TaskRole().Arn()}
	if exec := task.ExecutionRole(); exec != nil {
		roles = append(roles, exec.Arn())
	}
	t.allow([]string{"iam:PassRole"}, roles...)
	if p == RunJob {
		t.eventsRule("StepFunctionsGetEventsForECSTaskRule")
	}
	return t, nil
}

func (o ContainerOverride) toJSON() map[string]any {
	m := map[string]any{"Name": o.ContainerName}
	if len(o.Command) > 0 {
		m["Command"] = toAny(o.Command)
	}
	if len(o.Environment) > 0 {
		env := make([]any, 0, len(o.Environment))
		for _, k := range sortedKeys(o.Environment) {
			env = append(env, map[string]any{"Name": k, "Value": o.Environment[k]})
		}
		m["Environment"] = env
	}
	if o.Cpu > 0 {
		m["Cpu"] = o.Cpu
	}
	if o.MemoryMiB > 0 {
		m["Memory"] = o.MemoryMiB
	}
	return m
}

// GlueStartJobRunProps configures GlueStartJobRun.
type GlueStartJobRunProps struct {
	TaskProps
	Arguments TaskInput
}

// GlueStartJobRun starts a run of the Glue job jobName.
func GlueStartJobRun(name, jobName string, props GlueStartJobRunProps) (*Task, error) {
	p := props.IntegrationPattern
	if p == "" {
		p = RequestResponse
	}
	if err := checkPattern("GlueStartJobRun", p, RequestResponse, RunJob); err != nil {
		return nil, err
	}

	params := map[string]any{"JobName": jobName}
	if err := props.Arguments.set(params, "Arguments"); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	t := newTask(name, props.TaskProps, integrationArn("glue", "startJobRun", p), params)
	actions := []string{"glue:StartJobRun"}
	if p == RunJob {
		actions = append(actions, "glue:GetJobRun", "glue:GetJobRuns", "glue:BatchStopJobRun")
	}
	t.allow(actions, regionalArn("glue", "job/"+jobName))
	return t, nil
}

// CallAwsServiceProps configures CallAwsService.
type CallAwsServiceProps struct {
	TaskProps
	Parameters map[string]any
	// IamAction defaults to "<service>:<Action>".
	IamAction string
	// IamResources defaults to "*".
	IamResources []any
}

// CallAwsService calls any AWS SDK API. service is lowercase, e.g. "s3",
// and action camel case, e.g. "listBuckets".
func CallAwsService(name, service, action string, props CallAwsServiceProps) (*Task, error) {
	p := props.IntegrationPattern
	if p == "" {
		p = RequestResponse
	}
	if err := checkPattern("CallAwsService", p, RequestResponse, WaitForTaskToken); err != nil {
		return nil, err
	}
	if service == "" || service != strings.ToLower(service) {
		return nil, fmt.Errorf("%s: service %q must be lowercase", name, service)
	}
	if action == "" || strings.ToLower(action[:1]) != action[:1] {
		return nil, fmt.Errorf("%s: action %q must start lowercase", name, action)
	}

	iamAction := props.IamAction
	if iamAction == "" {
		iamAction = service + ":" + strings.ToUpper(action[:1]) + action[1:]
	}
	resources := props.IamResources
	if len(resources) == 0 {
		resources = []any{"*"}
	}

	t := newTask(name, props.TaskProps, integrationArn("aws-sdk", service+":"+action, p), props.Parameters)
	t.allow([]string{iamAction}, resources...)
	return t, nil
}
