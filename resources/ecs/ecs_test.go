package ecs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/cdkutils-go/resources/autoscaling"
	"github.com/lex00/cdkutils-go/resources/ec2"
	"github.com/lex00/cdkutils-go/resources/iam"
	"github.com/lex00/cdkutils-go/resources/logs"
	"github.com/lex00/cdkutils-go/stack"
)

func TestCreateCluster_DefaultID(t *testing.T) {
	st := stack.New("jobs", stack.Environment{})
	a, err := CreateCluster(st, ClusterProps{ClusterName: "jobs"})
	require.NoError(t, err)
	b, err := CreateCluster(st, ClusterProps{})
	require.NoError(t, err)

	assert.Regexp(t, `^ecs-cluster-profile-`, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestCreateFargateTaskDefinition(t *testing.T) {
	st := stack.New("jobs", stack.Environment{})
	td, err := CreateFargateTaskDefinition(st, TaskProps{ID: "Export", Family: "export"})
	require.NoError(t, err)

	assert.Equal(t, "512", td.Memory)
	assert.Equal(t, "256", td.Cpu)
	assert.Equal(t, []string{"FARGATE"}, td.RequiresCompatibilities)
	assert.IsType(t, &iam.Role{}, td.TaskRole())
	assert.Nil(t, td.ExecutionRole())

	_, err = td.AddContainer("app", ContainerProps{
		Image:       ContainerImageFromRegistry("public.ecr.aws/docker/library/python:3.11"),
		Environment: map[string]string{"STAGE": "prod", "APP": "export"},
		Ports:       []int{8080},
	})
	require.NoError(t, err)
	assert.Nil(t, td.ExecutionRole())

	c, ok := td.Container("app")
	require.True(t, ok)
	assert.Equal(t, "APP", c.Environment[0].Name)
	assert.True(t, *c.Essential)

	_, err = td.AddContainer("app", ContainerProps{Image: ContainerImageFromRegistry("x")})
	assert.ErrorIs(t, err, stack.ErrDuplicateID)
	_, err = td.AddContainer("empty", ContainerProps{})
	assert.Error(t, err)
}

func TestAddContainer_AssetAndLogs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM python:3.11\n"), 0o644))

	st := stack.New("jobs", stack.Environment{Account: "123456789012", Region: "eu-central-1"})
	td, err := CreateFargateTaskDefinition(st, TaskProps{ID: "Export"})
	require.NoError(t, err)

	image, err := ContainerImageFromAsset(st, dir)
	require.NoError(t, err)
	driver, err := AwsLogDriver(st, AwsLogProps{LogGroupName: "export", StreamPrefix: "export"})
	require.NoError(t, err)
	assert.Equal(t, "export", driver.Options["awslogs-stream-prefix"])

	_, err = td.AddContainer("app", ContainerProps{Image: image, Logging: driver})
	require.NoError(t, err)
	require.NotNil(t, td.ExecutionRole())
	assert.Len(t, td.ExecutionRole().DefaultPolicy().PolicyDocument.Statement, 3)

	tmpl, err := st.Synth()
	require.NoError(t, err)
	assert.Contains(t, tmpl.Resources, "exportEcs")
	assert.Len(t, st.Assets(), 1)
}

func TestAwsLogDriver_ExistingGroup(t *testing.T) {
	st := stack.New("jobs", stack.Environment{})
	g, err := logs.LogGroupFromName(st, "/ecs/export", "")
	require.NoError(t, err)

	driver, err := AwsLogDriver(st, AwsLogProps{LogGroup: g})
	require.NoError(t, err)
	assert.Equal(t, "/ecs/export", driver.Options["awslogs-group"])
	assert.NotContains(t, driver.Options, "awslogs-stream-prefix")

	_, err = AwsLogDriver(st, AwsLogProps{})
	assert.Error(t, err)
}

func TestAddAsgCapacityProvider(t *testing.T) {
	st := stack.New("jobs", stack.Environment{})
	vpc := &ec2.Vpc{ID: "vpc-1", PrivateSubnets: []ec2.Subnet{{ID: "subnet-a"}}}
	cluster, err := CreateCluster(st, ClusterProps{ID: "Jobs", Vpc: vpc})
	require.NoError(t, err)

	image, err := OptimizedImage(st)
	require.NoError(t, err)
	group, err := autoscaling.CreateAutoScalingGroup(st, cluster.Vpc(), autoscaling.GroupProps{
		ID:           "Workers",
		InstanceType: "m5.large",
		MachineImage: image,
	})
	require.NoError(t, err)

	cp, err := AddAsgCapacityProvider(cluster, group, CapacityProviderProps{ID: "Capacity", Name: "workers"})
	require.NoError(t, err)
	assert.Equal(t, "ENABLED", cp.AutoScalingGroupProvider.ManagedScaling.Status)
	assert.Len(t, group.Role().ManagedPolicyArns, 1)

	tmpl, err := st.Synth()
	require.NoError(t, err)
	assert.Contains(t, tmpl.Parameters, "SsmParameterValueEcsOptimizedAmiImageId")

	var associations int
	for _, def := range tmpl.Resources {
		if def.Type == "AWS::ECS::ClusterCapacityProviderAssociations" {
			associations++
		}
	}
	assert.Equal(t, 1, associations)
}
