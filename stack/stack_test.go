package stack

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cdkutils "github.com/lex00/cdkutils-go"
	"github.com/lex00/cdkutils-go/intrinsics"
)

type testQueue struct {
	Construct         `json:"-"`
	QueueName         string
	VisibilityTimeout int
	RedrivePolicy     map[string]any
}

func (*testQueue) ResourceType() string { return "AWS::SQS::Queue" }

type testSubscription struct {
	Construct `json:"-"`
	Endpoint  any
	TopicArn  any

	prepared int
}

func (*testSubscription) ResourceType() string { return "AWS::SNS::Subscription" }

func (s *testSubscription) Prepare() error {
	s.prepared++
	s.TopicArn = "arn:aws:sns:eu-central-1:123456789012:alerts"
	return nil
}

func TestLogicalIDFor(t *testing.T) {
	tests := []struct {
		name     string
		path     []string
		expected string
	}{
		{"top level", []string{"profile-for-api-orders"}, "profileforapiorders"},
		{"keeps case", []string{"TopicAlerts"}, "TopicAlerts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LogicalIDFor(tt.path...))
		})
	}
}

func TestLogicalIDFor_Nested(t *testing.T) {
	id := LogicalIDFor("profile-for-api-orders", "Deployment")
	assert.Regexp(t, `^profileforapiordersDeployment[0-9A-F]{8}$`, id)
	assert.Equal(t, id, LogicalIDFor("profile-for-api-orders", "Deployment"))
	assert.NotEqual(t, id, LogicalIDFor("profile-for-api-order", "sDeployment"))

	hidden := LogicalIDFor("Worker", "Resource")
	assert.Regexp(t, `^Worker[0-9A-F]{8}$`, hidden)
}

func TestStack_Add_DuplicateID(t *testing.T) {
	st := New("etl", Environment{})
	require.NoError(t, st.Add("ingest", &testQueue{}))

	err := st.Add("ingest", &testQueue{})
	assert.ErrorIs(t, err, ErrDuplicateID)

	err = st.Import("ingest")
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestStack_Add_LogicalIDCollision(t *testing.T) {
	st := New("etl", Environment{})
	require.NoError(t, st.Add("in-gest", &testQueue{}))
	assert.ErrorIs(t, st.Add("ingest", &testQueue{}), ErrDuplicateID)
}

func TestStack_Add_AlreadyAdded(t *testing.T) {
	q := &testQueue{}
	require.NoError(t, New("a", Environment{}).Add("q", q))
	assert.Error(t, New("b", Environment{}).Add("q", q))
}

func TestStack_Synth_ReferencesAndOverrides(t *testing.T) {
	st := New("etl", Environment{})
	dlq := &testQueue{QueueName: "ingest-dlq"}
	require.NoError(t, st.Add("ingest-dlq", dlq))

	queue := &testQueue{
		QueueName:     "ingest",
		RedrivePolicy: map[string]any{"deadLetterTargetArn": dlq.GetAtt("Arn")},
	}
	require.NoError(t, st.Add("ingest", queue))
	queue.AddOverride("Properties.VisibilityTimeout", 45)
	queue.AddOverride("Properties.RedrivePolicy.maxReceiveCount", 5)
	queue.ApplyRemovalPolicy(RemovalDestroy)

	tmpl, err := st.Synth()
	require.NoError(t, err)

	def := tmpl.Resources["ingest"]
	assert.Equal(t, "AWS::SQS::Queue", def.Type)
	assert.Equal(t, "Delete", def.DeletionPolicy)
	assert.Equal(t, "Delete", def.UpdateReplacePolicy)
	assert.Equal(t, int64(45), def.Properties["VisibilityTimeout"])

	redrive := def.Properties["RedrivePolicy"].(map[string]any)
	assert.Equal(t, int64(5), redrive["maxReceiveCount"])
	assert.Equal(t, map[string]any{"Fn::GetAtt": []any{"ingestdlq", "Arn"}}, redrive["deadLetterTargetArn"])
}

func TestStack_Synth_UnsupportedOverride(t *testing.T) {
	st := New("etl", Environment{})
	q := &testQueue{}
	require.NoError(t, st.Add("q", q))
	q.AddOverride("Metadata.X", 1)

	_, err := st.Synth()
	assert.ErrorContains(t, err, "unsupported override path")
}

func TestStack_Synth_DependsOnAndPreparer(t *testing.T) {
	st := New("etl", Environment{})
	q := &testQueue{}
	require.NoError(t, st.Add("q", q))
	sub := &testSubscription{Endpoint: q.GetAtt("Arn")}
	require.NoError(t, st.Add("sub", sub))
	sub.AddDependency(q, q)

	tmpl, err := st.Synth()
	require.NoError(t, err)
	_, err = st.Synth()
	require.NoError(t, err)

	assert.Equal(t, 2, sub.prepared)
	def := tmpl.Resources["sub"]
	assert.Equal(t, []string{"q"}, def.DependsOn)
	assert.Equal(t, "arn:aws:sns:eu-central-1:123456789012:alerts", def.Properties["TopicArn"])
}

func TestStack_AddChild(t *testing.T) {
	st := New("etl", Environment{})
	parent := &testQueue{}
	require.NoError(t, st.Add("api", parent))
	child := &testQueue{}
	require.NoError(t, st.AddChild(parent, "Deployment", child))

	assert.Equal(t, "api/Deployment", child.ID())
	found, ok := st.FindByID("api/Deployment")
	require.True(t, ok)
	assert.Same(t, child, found)
}

func TestStack_AddParameter(t *testing.T) {
	st := New("etl", Environment{})
	p := cdkutils.Parameter{Type: "AWS::SSM::Parameter::Value<String>", Default: "/data/bucket"}

	ref, err := st.AddParameter("BucketParam", p)
	require.NoError(t, err)
	assert.Equal(t, intrinsics.Ref{LogicalName: "BucketParam"}, ref)

	_, err = st.AddParameter("BucketParam", p)
	require.NoError(t, err)

	_, err = st.AddParameter("BucketParam", cdkutils.Parameter{Type: "String"})
	assert.ErrorIs(t, err, ErrDuplicateID)

	tmpl, err := st.Synth()
	require.NoError(t, err)
	assert.Equal(t, p, tmpl.Parameters["BucketParam"])
}

func TestStack_AddOutput(t *testing.T) {
	st := New("etl", Environment{})
	q := &testQueue{}
	require.NoError(t, st.Add("q", q))
	require.NoError(t, st.AddOutput("QueueArn", q.GetAtt("Arn"), "queue", "etl-queue-arn"))
	assert.Error(t, st.AddOutput("QueueArn", "x", "", ""))

	tmpl, err := st.Synth()
	require.NoError(t, err)
	out := tmpl.Outputs["QueueArn"]
	assert.Equal(t, map[string]any{"Fn::GetAtt": []any{"q", "Arn"}}, out.Value)
	assert.Equal(t, "etl-queue-arn", out.Export.Name)
}

func TestStack_FormatArn(t *testing.T) {
	pinned := New("etl", Environment{Account: "123456789012", Region: "eu-central-1"})
	assert.Equal(t, "arn:aws:sns:eu-central-1:123456789012:alerts",
		pinned.FormatArn(ArnFormat{Service: "sns", Resource: "alerts"}))
	assert.Equal(t, "arn:aws:iam::123456789012:role/etl",
		pinned.FormatArn(ArnFormat{Service: "iam", Resource: "role/etl", NoRegion: true}))

	agnostic := New("etl", Environment{})
	data, err := json.Marshal(agnostic.FormatArn(ArnFormat{Service: "sqs", Resource: "ingest"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Fn::Join": ["", ["arn:aws:sqs:", {"Ref": "AWS::Region"}, ":", {"Ref": "AWS::AccountId"}, ":ingest"]]}`, string(data))
}

func TestStack_SynthJSON(t *testing.T) {
	st := New("etl", Environment{})
	st.Description = "etl"
	require.NoError(t, st.Add("q", &testQueue{QueueName: "ingest"}))

	data, err := st.SynthJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"QueueName": "ingest"`)

	data, err = st.SynthYAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "QueueName: ingest")
}

func TestParseRemovalPolicy(t *testing.T) {
	p, err := ParseRemovalPolicy("destroy")
	require.NoError(t, err)
	assert.Equal(t, RemovalDestroy, p)

	p, err = ParseRemovalPolicy("")
	require.NoError(t, err)
	assert.Equal(t, RemovalPolicy(""), p)

	_, err = ParseRemovalPolicy("KEEP")
	assert.ErrorIs(t, err, ErrUnknownRemovalPolicy)
}

func TestStack_AddFileAsset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lambda_handler.py"), []byte("def lambda_handler(e, c): pass\n"), 0o644))

	st := New("etl", Environment{Account: "123456789012", Region: "eu-central-1"})
	a, err := st.AddFileAsset(dir)
	require.NoError(t, err)
	assert.Len(t, a.Hash, 64)
	assert.Equal(t, a.Hash+".zip", a.ObjectKey())
	assert.Equal(t, "cdk-hnb659fds-assets-123456789012-eu-central-1", st.AssetBucket())

	again, err := st.AddFileAsset(dir)
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.Len(t, st.Assets(), 1)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "lambda_handler.py"), []byte("changed"), 0o644))
	changed, err := HashPath(dir)
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, changed)
}

func TestStack_AddFileAsset_Missing(t *testing.T) {
	st := New("etl", Environment{})
	_, err := st.AddFileAsset(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
