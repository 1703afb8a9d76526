package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/quicksight"
	qstypes "github.com/aws/aws-sdk-go-v2/service/quicksight/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/cdkutils-go/awsclient"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "cdkutils "))
}

func TestSynthCmd(t *testing.T) {
	out, err := execute(t, "synth", "--account", "123456789012", "--region", "eu-central-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"AWS::StepFunctions::StateMachine"`)
	assert.Contains(t, out, `"AWS::Events::Rule"`)
	assert.Contains(t, out, "createCluster")

	out, err = execute(t, "synth", "--query", "Outputs.StateMachineArn.Value.Ref")
	require.NoError(t, err)
	assert.Equal(t, "\"profileforstatemachineemrlifecycle\"\n", out)

	out, err = execute(t, "synth", "-f", "yaml", "--spot", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "TERMINATE_CLUSTER")

	out, err = execute(t, "synth", "-f", "result")
	require.NoError(t, err)
	assert.Contains(t, out, `"success": true`)
}

func TestSynthCmd_Errors(t *testing.T) {
	_, err := execute(t, "synth", "-f", "xml")
	assert.ErrorContains(t, err, "unknown format")

	_, err = execute(t, "synth", "-f", "yaml", "--query", "Resources")
	assert.ErrorContains(t, err, "requires json")

	_, err = execute(t, "synth", "--query", "Nope")
	assert.ErrorContains(t, err, "matched nothing")

	_, err = execute(t, "synth", "--subnet", "")
	assert.ErrorContains(t, err, "Ec2SubnetID")
}

func TestSynthCmd_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.json")
	out, err := execute(t, "synth", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "AWSTemplateFormatVersion")
}

const queueTemplate = `{"AWSTemplateFormatVersion":"2010-09-09","Resources":{"ingest":{"Type":"AWS::SQS::Queue","Properties":{"QueueName":"ingest"}}}}`

func TestLintCmd(t *testing.T) {
	path := writeFile(t, t.TempDir(), "template.json", queueTemplate)

	_, err := execute(t, "lint", path)
	require.NoError(t, err)

	out, err := execute(t, "lint", path, "-f", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"success": true`)

	_, err = execute(t, "lint", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDiffCmd(t *testing.T) {
	dir := t.TempDir()
	before := writeFile(t, dir, "before.json", queueTemplate)
	after := writeFile(t, dir, "after.yaml", `Resources:
  ingest:
    Type: AWS::SQS::Queue
    Properties:
      QueueName: ingest-v2
  replay:
    Type: AWS::SQS::Queue
`)

	out, err := execute(t, "diff", before, after)
	require.NoError(t, err)
	assert.Contains(t, out, "+ replay (AWS::SQS::Queue)")
	assert.Contains(t, out, "~ ingest (AWS::SQS::Queue)")
	assert.Contains(t, out, "QueueName modified")
	assert.Contains(t, out, "1 added, 0 removed, 1 modified")

	out, err = execute(t, "diff", before, after, "-f", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 2`)

	out, err = execute(t, "diff", before, before, "-f", "delta")
	require.NoError(t, err)
	assert.Equal(t, "The templates are identical.\n", out)

	out, err = execute(t, "diff", before, after, "-f", "delta")
	require.NoError(t, err)
	assert.Contains(t, out, "replay")
}

func TestGraphCmd(t *testing.T) {
	path := writeFile(t, t.TempDir(), "template.json", queueTemplate)

	out, err := execute(t, "graph", path)
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")

	_, err = execute(t, "graph", path, "-f", "png")
	assert.ErrorContains(t, err, "unknown format")

	empty := writeFile(t, t.TempDir(), "empty.json", `{"Resources":{}}`)
	_, err = execute(t, "graph", empty)
	assert.ErrorContains(t, err, "no resources")
}

const passFlow = `{"StartAt":"Seed","States":{"Seed":{"Type":"Pass","Next":"Done"},"Done":{"Type":"Succeed"}}}`

func TestASLValidateCmd(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", passFlow)
	bad := writeFile(t, dir, "bad.json", `{"StartAt":"Seed","States":{"Seed":{"Type":"Pass","Next":"Missing"}}}`)

	out, err := execute(t, "asl", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (2 states)")

	out, err = execute(t, "asl", "validate", good, bad, "-f", "json")
	assert.ErrorContains(t, err, "validation failed")
	assert.Contains(t, out, `"success":false`)
	assert.Contains(t, out, "Missing")
}

func TestASLGraphCmd(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.json", passFlow)

	out, err := execute(t, "asl", "graph", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Seed")

	out, err = execute(t, "asl", "graph", path, "-f", "mermaid")
	require.NoError(t, err)
	assert.NotContains(t, out, "digraph")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunWatch(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.json", passFlow)

	ctx, cancel := context.WithCancel(context.Background())
	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, &out, []string{path}, "text", 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "ok (2 states)") },
		5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`{"StartAt":"Gone","States":{"Seed":{"Type":"Succeed"}}}`), 0o644))
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Change detected") },
		5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

type fakeSSM struct{}

func (fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String("value-of-" + aws.ToString(in.Name))}}, nil
}

type fakeSTS struct {
	in *sts.AssumeRoleInput
}

func (f *fakeSTS) AssumeRole(_ context.Context, in *sts.AssumeRoleInput, _ ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.in = in
	return &sts.AssumeRoleOutput{Credentials: &ststypes.Credentials{
		AccessKeyId:     aws.String("AKIA"),
		SecretAccessKey: aws.String("secret"),
		SessionToken:    aws.String("token"),
		Expiration:      aws.Time(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}}, nil
}

type fakeGlue struct {
	name string
}

func (f *fakeGlue) StartCrawler(_ context.Context, in *glue.StartCrawlerInput, _ ...func(*glue.Options)) (*glue.StartCrawlerOutput, error) {
	f.name = aws.ToString(in.Name)
	return &glue.StartCrawlerOutput{}, nil
}

type fakeQuickSight struct{}

func (fakeQuickSight) CreateIngestion(_ context.Context, in *quicksight.CreateIngestionInput, _ ...func(*quicksight.Options)) (*quicksight.CreateIngestionOutput, error) {
	return &quicksight.CreateIngestionOutput{IngestionId: in.IngestionId, IngestionStatus: qstypes.IngestionStatusInitialized}, nil
}

type fakeS3 struct {
	keys []string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.keys = append(f.keys, aws.ToString(in.Key))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return nil, &smithy.GenericAPIError{Code: "NotFound"}
}

func (f *fakeS3) GetBucketPolicy(context.Context, *s3.GetBucketPolicyInput, ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error) {
	return nil, &smithy.GenericAPIError{Code: "NoSuchBucketPolicy"}
}

func (f *fakeS3) PutBucketPolicy(context.Context, *s3.PutBucketPolicyInput, ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	return &s3.PutBucketPolicyOutput{}, nil
}

type fakes struct {
	region string
	sts    *fakeSTS
	glue   *fakeGlue
	s3     *fakeS3
	creds  *aws.Credentials
}

func useFakes(t *testing.T) *fakes {
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")

	f := &fakes{sts: &fakeSTS{}, glue: &fakeGlue{}, s3: &fakeS3{}}
	saved := clients
	t.Cleanup(func() { clients = saved })

	clients = clientFactory{
		config: func(ctx context.Context, opts ...awsclient.Option) (aws.Config, error) {
			cfg, err := awsclient.LoadConfig(ctx, append(opts, awsclient.WithCredentials(aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}))...)
			f.region = cfg.Region
			return cfg, err
		},
		ssm: func(aws.Config) awsclient.SSMAPI { return fakeSSM{} },
		sts: func(aws.Config) awsclient.STSAPI { return f.sts },
		s3:  func(aws.Config) awsclient.S3API { return f.s3 },
		glue: func(_ aws.Config, creds *aws.Credentials) awsclient.GlueAPI {
			f.creds = creds
			return f.glue
		},
		quicksight: func(_ aws.Config, creds *aws.Credentials) awsclient.QuickSightAPI {
			f.creds = creds
			return fakeQuickSight{}
		},
	}
	return f
}

func TestSSMGetCmd(t *testing.T) {
	f := useFakes(t)
	out, err := execute(t, "ssm", "get", "/data/bucket", "--region", "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "value-of-/data/bucket\n", out)
	assert.Equal(t, "us-east-1", f.region)
}

func TestSTSAssumeCmd(t *testing.T) {
	f := useFakes(t)
	out, err := execute(t, "sts", "assume", "--account", "123456789012", "--role", "data-reader")
	require.NoError(t, err)
	assert.Contains(t, out, `"AccessKeyId": "AKIA"`)
	assert.Equal(t, "arn:aws:iam::123456789012:role/data-reader", aws.ToString(f.sts.in.RoleArn))

	_, err = execute(t, "sts", "assume", "--account", "123456789012")
	assert.Error(t, err)
}

func TestGlueStartCrawlerCmd(t *testing.T) {
	f := useFakes(t)
	out, err := execute(t, "glue", "start-crawler", "raw-events")
	require.NoError(t, err)
	assert.Equal(t, "crawler raw-events started\n", out)
	assert.Equal(t, "raw-events", f.glue.name)
	assert.Nil(t, f.creds)

	_, err = execute(t, "glue", "start-crawler", "raw-events", "--account", "123456789012", "--role", "glue-runner")
	require.NoError(t, err)
	require.NotNil(t, f.creds)
	assert.Equal(t, "AKIA", f.creds.AccessKeyID)

	_, err = execute(t, "glue", "start-crawler", "raw-events", "--role", "glue-runner")
	assert.ErrorContains(t, err, "--role requires --account")
}

func TestQuickSightIngestCmd(t *testing.T) {
	useFakes(t)
	out, err := execute(t, "quicksight", "ingest", "--dataset", "sales", "--account", "123456789012")
	require.NoError(t, err)
	assert.Contains(t, out, `"IngestionStatus": "INITIALIZED"`)
	assert.Regexp(t, `"IngestionId": "[0-9a-f-]{36}"`, out)
}

func TestPublishCmd(t *testing.T) {
	f := useFakes(t)
	dir := t.TempDir()
	writeFile(t, dir, "lambda_handler.py", "def lambda_handler(event, context):\n    return event\n")

	out, err := execute(t, "publish", "--bucket", "assets", dir)
	require.NoError(t, err)
	require.Len(t, f.s3.keys, 1)
	assert.Contains(t, out, "s3://assets/"+f.s3.keys[0])
}

func TestOptimizeCmd(t *testing.T) {
	path := writeFile(t, t.TempDir(), "template.json", queueTemplate)

	out, err := execute(t, "optimize", path)
	require.NoError(t, err)
	assert.Contains(t, out, "OPT-SQS-001 ingest")
	assert.Contains(t, out, "2 suggestion(s)")

	out, err = execute(t, "optimize", path, "-c", "cost", "-f", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 0`)

	_, err = execute(t, "optimize", path, "-c", "speed")
	assert.ErrorContains(t, err, "unknown category")
}
