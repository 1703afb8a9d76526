// Package sqs declares queues and wires them to functions, topics and
// alarms.
package sqs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/stack"
)

// Errors for invalid queue settings.
var (
	ErrUnknownDeduplicationScope = errors.New("unknown deduplication scope")
	ErrUnknownEncryption         = errors.New("unknown queue encryption")
	ErrUnknownThroughputLimit    = errors.New("unknown fifo throughput limit")
)

// MaxQueueNameLength is the longest name SQS accepts.
const MaxQueueNameLength = 80

// IQueue is a declared or imported queue.
type IQueue interface {
	Arn() any
	URL() any
	Name() any
	ID() string
	Stack() *stack.Stack
}

// RedrivePolicy sends failed messages to a dead-letter queue.
type RedrivePolicy struct {
	DeadLetterTargetArn any `json:"deadLetterTargetArn"`
	MaxReceiveCount     int `json:"maxReceiveCount"`
}

// Queue is an AWS::SQS::Queue.
type Queue struct {
	stack.Construct               `json:"-"`
	QueueName                     string
	FifoQueue                     *bool
	ContentBasedDeduplication     *bool
	DeduplicationScope            string
	FifoThroughputLimit           string
	DelaySeconds                  int
	MaximumMessageSize            int
	MessageRetentionPeriod        int
	ReceiveMessageWaitTimeSeconds int
	VisibilityTimeout             *int
	KmsMasterKeyId                any
	KmsDataKeyReusePeriodSeconds  int
	SqsManagedSseEnabled          *bool
	RedrivePolicy                 *RedrivePolicy

	policy *QueuePolicy
}

func (*Queue) ResourceType() string { return "AWS::SQS::Queue" }

func (q *Queue) Arn() any  { return q.GetAtt("Arn") }
func (q *Queue) URL() any  { return q.Ref() }
func (q *Queue) Name() any { return q.GetAtt("QueueName") }

// Policy returns the queue's resource policy, or nil.
func (q *Queue) Policy() *QueuePolicy { return q.policy }

// AddToResourcePolicy merges statement into the queue policy, declaring the
// policy on first use.
func (q *Queue) AddToResourcePolicy(statement *intrinsics.PolicyStatement) (*QueuePolicy, error) {
	if q.policy == nil {
		p := &QueuePolicy{Queues: []any{q.URL()}, PolicyDocument: intrinsics.NewPolicyDocument()}
		if err := q.Stack().AddChild(q, "Policy", p); err != nil {
			return nil, err
		}
		q.policy = p
	}
	q.policy.PolicyDocument.AddStatements(statement)
	return q.policy, nil
}

// QueuePolicy is an AWS::SQS::QueuePolicy.
type QueuePolicy struct {
	stack.Construct `json:"-"`
	Queues          []any
	PolicyDocument  *intrinsics.PolicyDocument
}

func (*QueuePolicy) ResourceType() string { return "AWS::SQS::QueuePolicy" }

// QueueProps configures CreateQueue. Durations are in seconds; enum fields
// take the upper-case names used across the factories.
type QueueProps struct {
	QueueName                 string // default the construct name, cut to 80 characters
	Fifo                      bool
	ContentBasedDeduplication bool
	// DeduplicationScope is MESSAGE_GROUP or QUEUE.
	DeduplicationScope string
	// FifoThroughputLimit is PER_MESSAGE_GROUP_ID or PER_QUEUE.
	FifoThroughputLimit string
	// Encryption is KMS_MANAGED, SQS_MANAGED, UNENCRYPTED or KMS.
	Encryption          string
	EncryptionMasterKey any
	DataKeyReuse        int
	DeliveryDelay       int
	ReceiveMessageWait  int
	VisibilityTimeout   *int
	RetentionPeriod     int
	MaxMessageSizeBytes int
	// RemovalPolicy is DESTROY or RETAIN; queues are deleted by default.
	RemovalPolicy string
}

// CreateQueue declares a queue under construct ID name.
func CreateQueue(st *stack.Stack, name string, props QueueProps) (*Queue, error) {
	q := &Queue{
		DelaySeconds:                  props.DeliveryDelay,
		MaximumMessageSize:            props.MaxMessageSizeBytes,
		MessageRetentionPeriod:        props.RetentionPeriod,
		ReceiveMessageWaitTimeSeconds: props.ReceiveMessageWait,
		VisibilityTimeout:             props.VisibilityTimeout,
		KmsDataKeyReusePeriodSeconds:  props.DataKeyReuse,
	}

	queueName := props.QueueName
	if queueName == "" {
		queueName = name
	}
	if r := []rune(queueName); len(r) > MaxQueueNameLength {
		queueName = string(r[:MaxQueueNameLength])
	}
	q.QueueName = queueName

	if props.Fifo || strings.HasSuffix(queueName, ".fifo") {
		fifo := true
		q.FifoQueue = &fifo
	}
	if props.ContentBasedDeduplication {
		v := true
		q.ContentBasedDeduplication = &v
	}

	switch props.DeduplicationScope {
	case "":
	case "MESSAGE_GROUP":
		q.DeduplicationScope = "messageGroup"
	case "QUEUE":
		q.DeduplicationScope = "queue"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeduplicationScope, props.DeduplicationScope)
	}

	switch props.FifoThroughputLimit {
	case "":
	case "PER_MESSAGE_GROUP_ID":
		q.FifoThroughputLimit = "perMessageGroupId"
	case "PER_QUEUE":
		q.FifoThroughputLimit = "perQueue"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownThroughputLimit, props.FifoThroughputLimit)
	}

	var needsKey bool
	switch props.Encryption {
	case "":
	case "SQS_MANAGED":
		v := true
		q.SqsManagedSseEnabled = &v
	case "UNENCRYPTED":
		v := false
		q.SqsManagedSseEnabled = &v
	case "KMS_MANAGED":
		q.KmsMasterKeyId = "alias/aws/sqs"
	case "KMS":
		if props.EncryptionMasterKey != nil {
			q.KmsMasterKeyId = props.EncryptionMasterKey
		} else {
			needsKey = true
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncryption, props.Encryption)
	}

	removal, err := stack.ParseRemovalPolicy(props.RemovalPolicy)
	if err != nil {
		return nil, err
	}
	if removal == "" {
		removal = stack.RemovalDestroy
	}

	if err := st.Add(name, q); err != nil {
		return nil, err
	}
	q.ApplyRemovalPolicy(removal)

	if needsKey {
		key := &Key{
			Description: "Created by " + q.ID(),
			KeyPolicy: intrinsics.NewPolicyDocument(&intrinsics.PolicyStatement{
				Effect:    intrinsics.Allow,
				Principal: intrinsics.AWSPrincipal{intrinsics.Concat("arn:", intrinsics.AWS_PARTITION, ":iam::", st.Account(), ":root")},
				Action:    []string{"kms:*"},
				Resource:  []any{"*"},
			}),
		}
		if err := st.AddChild(q, "Key", key); err != nil {
			return nil, err
		}
		key.ApplyRemovalPolicy(stack.RemovalRetain)
		q.KmsMasterKeyId = key.GetAtt("Arn")
	}

	log.WithField("queue", queueName).WithField("id", q.ID()).Debug("queue declared")
	return q, nil
}

// Key is an AWS::KMS::Key created for KMS encrypted queues.
type Key struct {
	stack.Construct `json:"-"`
	Description     string
	KeyPolicy       *intrinsics.PolicyDocument
}

func (*Key) ResourceType() string { return "AWS::KMS::Key" }

// ImportedQueue is a queue referenced by ARN.
type ImportedQueue struct {
	st   *stack.Stack
	id   string
	arn  any
	url  any
	name string
}

func (q *ImportedQueue) Arn() any            { return q.arn }
func (q *ImportedQueue) URL() any            { return q.url }
func (q *ImportedQueue) Name() any           { return q.name }
func (q *ImportedQueue) ID() string          { return q.id }
func (q *ImportedQueue) Stack() *stack.Stack { return q.st }

// queueURL returns https://sqs.<region>.<suffix>/<account>/<name>. A literal
// ARN is split here; any other value is split at deploy time.
func queueURL(arn any) any {
	if parts := strings.Split(intrinsics.String(arn), ":"); len(parts) >= 6 {
		return intrinsics.Concat("https://sqs.", parts[3], ".", intrinsics.AWS_URL_SUFFIX, "/", parts[4], "/", parts[5])
	}
	field := func(i int) any {
		return intrinsics.Select{Index: i, List: intrinsics.Split{Delimiter: ":", Source: arn}}
	}
	return intrinsics.Concat("https://sqs.", field(3), ".", intrinsics.AWS_URL_SUFFIX, "/", field(4), "/", field(5))
}

// QueueFromArn references the queue arn under "ImportedQueue<name>".
func QueueFromArn(st *stack.Stack, arn string) (*ImportedQueue, error) {
	segments := strings.Split(arn, "/")
	last := segments[len(segments)-1]
	parts := strings.Split(last, ":")
	name := parts[len(parts)-1]

	id := "ImportedQueue" + name
	if err := st.Import(id); err != nil {
		return nil, err
	}
	return &ImportedQueue{st: st, id: id, arn: arn, url: queueURL(arn), name: name}, nil
}

// QueueFromName references queue name in the stack's account and region.
func QueueFromName(st *stack.Stack, name string) (*ImportedQueue, error) {
	parts := strings.Split(name, ":")
	name = parts[len(parts)-1]

	id := "ImportedQueue" + name
	if err := st.Import(id); err != nil {
		return nil, err
	}
	arn := st.FormatArn(stack.ArnFormat{Service: "sqs", Resource: name})
	url := intrinsics.Concat("https://sqs.", st.Region(), ".", intrinsics.AWS_URL_SUFFIX, "/", st.Account(), "/", name)
	return &ImportedQueue{st: st, id: id, arn: arn, url: url, name: name}, nil
}

// AttachDeadLetterQueue redrives messages received more than
// maxReceiveCount times (default 5) to dlq.
func AttachDeadLetterQueue(queue *Queue, dlq IQueue, maxReceiveCount int) {
	if maxReceiveCount == 0 {
		maxReceiveCount = 5
	}
	queue.RedrivePolicy = &RedrivePolicy{DeadLetterTargetArn: dlq.Arn(), MaxReceiveCount: maxReceiveCount}
}

// SetQueueAttributes overrides raw queue properties.
func SetQueueAttributes(queue *Queue, attributes map[string]any) {
	for key, value := range attributes {
		queue.AddOverride("Properties."+key, value)
	}
}
