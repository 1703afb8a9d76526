// Package sns declares topics and subscriptions.
package sns

import (
	"strings"

	"github.com/lex00/cdkutils-go/stack"
)

// ITopic is a declared or imported topic.
type ITopic interface {
	Arn() any
	Name() any
	ID() string
}

// Topic is an AWS::SNS::Topic.
type Topic struct {
	stack.Construct `json:"-"`
	TopicName       string
	DisplayName     string
	FifoTopic       *bool
}

func (*Topic) ResourceType() string { return "AWS::SNS::Topic" }

// Arn returns the topic ARN, which is also its Ref.
func (t *Topic) Arn() any { return t.Ref() }

// Name returns the topic name.
func (t *Topic) Name() any { return t.GetAtt("TopicName") }

// TopicProps configures GetTopic.
type TopicProps struct {
	DisplayName string // default "Subscription Topic"
	Fifo        bool
	ID          string // default "Topic<name>"
}

// GetTopic declares topic name. FIFO topic names get the ".fifo" suffix.
func GetTopic(st *stack.Stack, name string, props TopicProps) (*Topic, error) {
	t := &Topic{TopicName: name, DisplayName: props.DisplayName}
	if t.DisplayName == "" {
		t.DisplayName = "Subscription Topic"
	}
	if props.Fifo {
		fifo := true
		t.FifoTopic = &fifo
		if !strings.HasSuffix(t.TopicName, ".fifo") {
			t.TopicName += ".fifo"
		}
	}
	id := props.ID
	if id == "" {
		id = "Topic" + name
	}
	if err := st.Add(id, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ImportedTopic is a topic referenced by ARN.
type ImportedTopic struct {
	id   string
	arn  any
	name string
}

func (t *ImportedTopic) Arn() any   { return t.arn }
func (t *ImportedTopic) Name() any  { return t.name }
func (t *ImportedTopic) ID() string { return t.id }

// TopicFromName references arn:aws:sns:<region>:<account>:<name>. id
// defaults to "Topic<name>".
func TopicFromName(st *stack.Stack, name, id string) (*ImportedTopic, error) {
	if id == "" {
		id = "Topic" + name
	}
	if err := st.Import(id); err != nil {
		return nil, err
	}
	return &ImportedTopic{
		id:   id,
		arn:  st.FormatArn(stack.ArnFormat{Service: "sns", Resource: name}),
		name: name,
	}, nil
}

// Subscription is an AWS::SNS::Subscription.
type Subscription struct {
	stack.Construct    `json:"-"`
	TopicArn           any
	Protocol           string
	Endpoint           any
	RawMessageDelivery *bool
	FilterPolicy       map[string]any
}

func (*Subscription) ResourceType() string { return "AWS::SNS::Subscription" }
