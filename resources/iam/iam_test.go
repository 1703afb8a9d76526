package iam

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/stack"
)

func TestPolicyStatement_DefaultResources(t *testing.T) {
	s := PolicyStatement([]string{"sqs:SendMessage"})
	assert.Equal(t, []any{"*"}, s.Resource)
	assert.Equal(t, intrinsics.Allow, s.Effect)

	s = PolicyStatement([]string{"s3:GetObject"}, "arn:aws:s3:::data/*")
	assert.Equal(t, []any{"arn:aws:s3:::data/*"}, s.Resource)
}

func TestRoleWithPolicies(t *testing.T) {
	st := stack.New("etl", stack.Environment{})
	role, err := RoleWithPolicies(st, "glue-crawler", "glue.amazonaws.com", []string{"s3:GetObject", "s3:ListBucket"})
	require.NoError(t, err)

	assert.Equal(t, "profile-for-role-glue-crawler", role.ID())
	require.NotNil(t, role.DefaultPolicy())

	tmpl, err := st.Synth()
	require.NoError(t, err)

	def := tmpl.Resources["profileforrolegluecrawler"]
	assert.Equal(t, "AWS::IAM::Role", def.Type)
	assert.Equal(t, "glue-crawler", def.Properties["RoleName"])

	data, err := json.Marshal(def.Properties["AssumeRolePolicyDocument"])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"Version": "2012-10-17",
		"Statement": [{"Effect": "Allow", "Principal": {"Service": "glue.amazonaws.com"}, "Action": ["sts:AssumeRole"]}]
	}`, string(data))

	policyID := role.DefaultPolicy().LogicalID()
	policy := tmpl.Resources[policyID]
	assert.Equal(t, "AWS::IAM::Policy", policy.Type)
	assert.Equal(t, policyID, policy.Properties["PolicyName"])
	assert.Equal(t, []any{map[string]any{"Ref": "profileforrolegluecrawler"}}, policy.Properties["Roles"])
}

func TestRole_AddToPolicy_Dedupes(t *testing.T) {
	st := stack.New("etl", stack.Environment{})
	role, err := NewRole(st, "worker", RoleProps{AssumedBy: intrinsics.ServicePrincipal{"lambda.amazonaws.com"}})
	require.NoError(t, err)
	assert.Nil(t, role.DefaultPolicy())

	for i := 0; i < 3; i++ {
		ok, err := role.AddToPolicy(PolicyStatement([]string{"sqs:ReceiveMessage"}, "arn:aws:sqs:eu-central-1:123456789012:q"))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	require.NoError(t, Grant(role, []string{"sns:Publish"}))

	assert.Len(t, role.DefaultPolicy().PolicyDocument.Statement, 2)
}

func TestRole_AddManagedPolicy(t *testing.T) {
	st := stack.New("etl", stack.Environment{})
	role, err := NewRole(st, "worker", RoleProps{
		AssumedBy:       intrinsics.ServicePrincipal{"lambda.amazonaws.com"},
		ManagedPolicies: []any{"arn:aws:iam::aws:policy/ReadOnlyAccess"},
	})
	require.NoError(t, err)
	role.AddManagedPolicy("arn:aws:iam::aws:policy/ReadOnlyAccess")
	assert.Len(t, role.ManagedPolicyArns, 1)
}

func TestNewRole_NoPrincipal(t *testing.T) {
	_, err := NewRole(stack.New("etl", stack.Environment{}), "worker", RoleProps{})
	assert.Error(t, err)
}

func TestRoleFromName(t *testing.T) {
	st := stack.New("etl", stack.Environment{Account: "123456789012", Region: "eu-central-1"})
	role, err := RoleFromName(st, "data-loader")
	require.NoError(t, err)

	assert.Equal(t, "arn:aws:iam::123456789012:role/data-loader", role.Arn())
	assert.Equal(t, "data-loader", role.Name())

	ok, err := role.AddToPolicy(PolicyStatement([]string{"s3:GetObject"}))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = RoleFromName(st, "data-loader")
	assert.ErrorIs(t, err, stack.ErrDuplicateID)
}

func TestRoleFromArn(t *testing.T) {
	st := stack.New("etl", stack.Environment{})
	role, err := RoleFromArn(st, "loader", "arn:aws:iam::123456789012:role/service/loader")
	require.NoError(t, err)
	assert.Equal(t, "loader", role.Name())

	tmpl, err := st.Synth()
	require.NoError(t, err)
	assert.Empty(t, tmpl.Resources)
}

func TestManagedPolicyArn(t *testing.T) {
	data, err := json.Marshal(ManagedPolicyArn("service-role/AWSLambdaBasicExecutionRole"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Fn::Join": ["", ["arn:", {"Ref": "AWS::Partition"}, ":iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"]]}`, string(data))
}
