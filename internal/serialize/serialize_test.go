package serialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/cdkutils-go/intrinsics"
)

type embedded struct {
	LogicalID string
}

type testQueue struct {
	embedded       `json:"-"`
	Meta           string `json:"-"`
	QueueName      string
	DelaySeconds   int
	FifoQueue      bool
	SqsManagedSse  *bool `json:"SqsManagedSseEnabled,omitempty"`
	RedrivePolicy  *testRedrive
	Tags           []intrinsics.Tag
	Attributes     map[string]any
	KmsMasterKeyID any `json:"KmsMasterKeyId"`
	internal       string
}

type testRedrive struct {
	DeadLetterTargetArn any `json:"deadLetterTargetArn"`
	MaxReceiveCount     int `json:"maxReceiveCount"`
}

func TestProperties_SimpleStruct(t *testing.T) {
	props, err := Properties(testQueue{QueueName: "ingest"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"QueueName": "ingest"}, props)
}

func TestProperties_SkipsHiddenFields(t *testing.T) {
	q := testQueue{Meta: "x", QueueName: "ingest", internal: "y"}
	q.LogicalID = "Ingest"

	props, err := Properties(&q)
	require.NoError(t, err)

	assert.NotContains(t, props, "Meta")
	assert.NotContains(t, props, "embedded")
	assert.NotContains(t, props, "internal")
}

func TestProperties_ExplicitFalsePointer(t *testing.T) {
	off := false
	props, err := Properties(testQueue{SqsManagedSse: &off})
	require.NoError(t, err)

	assert.Equal(t, false, props["SqsManagedSseEnabled"])
}

func TestProperties_NestedWithIntrinsics(t *testing.T) {
	props, err := Properties(testQueue{
		RedrivePolicy: &testRedrive{
			DeadLetterTargetArn: intrinsics.GetAtt{LogicalName: "Dlq", Attribute: "Arn"},
			MaxReceiveCount:     5,
		},
	})
	require.NoError(t, err)

	redrive := props["RedrivePolicy"].(map[string]any)
	assert.Equal(t, map[string]any{"Fn::GetAtt": []any{"Dlq", "Arn"}}, redrive["deadLetterTargetArn"])
	assert.Equal(t, int64(5), redrive["maxReceiveCount"])
}

func TestProperties_SliceAndMap(t *testing.T) {
	props, err := Properties(testQueue{
		Tags:       []intrinsics.Tag{{Key: "owner", Value: "data"}},
		Attributes: map[string]any{"Ref": intrinsics.Ref{LogicalName: "Topic"}},
	})
	require.NoError(t, err)

	tags := props["Tags"].([]any)
	require.Len(t, tags, 1)
	assert.Equal(t, map[string]any{"Key": "owner", "Value": "data"}, tags[0])

	attrs := props["Attributes"].(map[string]any)
	assert.Equal(t, map[string]any{"Ref": "Topic"}, attrs["Ref"])
}

func TestProperties_OmitsZeroValues(t *testing.T) {
	props, err := Properties(testQueue{})
	require.NoError(t, err)
	assert.Empty(t, props)
}

func TestProperties_NotStruct(t *testing.T) {
	_, err := Properties("queue")
	assert.Error(t, err)
}

func TestValue_PolicyDocument(t *testing.T) {
	v, err := Value(intrinsics.NewPolicyDocument(intrinsics.AllowStatement([]string{"sqs:SendMessage"}, "*")))
	require.NoError(t, err)

	doc := v.(map[string]any)
	assert.Equal(t, "2012-10-17", doc["Version"])
	assert.Len(t, doc["Statement"], 1)
}
