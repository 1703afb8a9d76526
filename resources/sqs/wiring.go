package sqs

import (
	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/resources/cloudwatch"
	"github.com/lex00/cdkutils-go/resources/lambda"
	"github.com/lex00/cdkutils-go/resources/sns"
	"github.com/lex00/cdkutils-go/stack"
)

// consumeActions are the permissions an event source mapping needs.
var consumeActions = []string{
	"sqs:ReceiveMessage",
	"sqs:ChangeMessageVisibility",
	"sqs:GetQueueUrl",
	"sqs:DeleteMessage",
	"sqs:GetQueueAttributes",
}

// AddLambdaTrigger invokes fn with batches of up to batchSize (default 10)
// messages and grants it permission to consume the queue.
func AddLambdaTrigger(queue IQueue, fn lambda.IFunction, batchSize int) (*lambda.EventSourceMapping, error) {
	if batchSize == 0 {
		batchSize = 10
	}
	if err := fn.AddToRolePolicy(intrinsics.AllowStatement(consumeActions, queue.Arn())); err != nil {
		return nil, err
	}
	return lambda.AddEventSource(fn, "SqsEventSource"+stack.LogicalIDFor(queue.ID()), queue.Arn(), batchSize)
}

// AddSNSSubscription subscribes queue to topic. Raw delivery is on unless
// rawDelivery is false. Declared queues get a policy letting the topic send.
func AddSNSSubscription(queue IQueue, topic sns.ITopic, rawDelivery *bool) (*sns.Subscription, error) {
	raw := true
	if rawDelivery != nil {
		raw = *rawDelivery
	}
	sub := &sns.Subscription{
		TopicArn:           topic.Arn(),
		Protocol:           "sqs",
		Endpoint:           queue.Arn(),
		RawMessageDelivery: &raw,
	}

	st := queue.Stack()
	declared, ok := queue.(*Queue)
	if !ok {
		if err := st.Add(queue.ID()+"-"+topic.ID(), sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	if err := st.AddChild(declared, topic.ID(), sub); err != nil {
		return nil, err
	}
	policy, err := declared.AddToResourcePolicy(&intrinsics.PolicyStatement{
		Effect:    intrinsics.Allow,
		Principal: intrinsics.ServicePrincipal{"sns.amazonaws.com"},
		Action:    []string{"sqs:SendMessage"},
		Resource:  []any{declared.Arn()},
		Condition: intrinsics.Json{"ArnEquals": intrinsics.Json{"aws:SourceArn": topic.Arn()}},
	})
	if err != nil {
		return nil, err
	}
	sub.AddDependency(policy)
	return sub, nil
}

// AlarmProps configures AddCloudWatchAlarm.
type AlarmProps struct {
	Threshold         *float64 // default 100
	EvaluationPeriods int      // default 1
	AlarmName         string
	AlarmDescription  string
	AlarmActions      []any
}

// AddCloudWatchAlarm alarms on the queue's ApproximateNumberOfMessagesVisible
// metric under construct ID name.
func AddCloudWatchAlarm(st *stack.Stack, name string, queue IQueue, props AlarmProps) (*cloudwatch.Alarm, error) {
	threshold := 100.0
	if props.Threshold != nil {
		threshold = *props.Threshold
	}
	periods := props.EvaluationPeriods
	if periods == 0 {
		periods = 1
	}
	metric := cloudwatch.Metric{
		Namespace:  "AWS/SQS",
		MetricName: "ApproximateNumberOfMessagesVisible",
		Dimensions: []cloudwatch.Dimension{{Name: "QueueName", Value: queue.Name()}},
	}
	return cloudwatch.NewAlarm(st, name, metric, cloudwatch.AlarmProps{
		AlarmName:         props.AlarmName,
		AlarmDescription:  props.AlarmDescription,
		Threshold:         threshold,
		EvaluationPeriods: periods,
		AlarmActions:      props.AlarmActions,
	})
}
