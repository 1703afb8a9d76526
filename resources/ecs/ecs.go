// Package ecs declares ECS clusters, Fargate task definitions, Auto Scaling
// capacity providers and the container images and log drivers they use.
//
// Construct IDs left empty default to "<kind>-profile-<uuid>" so helpers
// can be called repeatedly without naming every construct.
package ecs

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/apex/log"
	"github.com/google/uuid"

	cdkutils "github.com/lex00/cdkutils-go"
	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/resources/autoscaling"
	"github.com/lex00/cdkutils-go/resources/ec2"
	"github.com/lex00/cdkutils-go/resources/iam"
	"github.com/lex00/cdkutils-go/resources/logs"
	"github.com/lex00/cdkutils-go/stack"
)

// OptimizedImageParameter is the public SSM parameter holding the current
// ECS optimized Amazon Linux 2 AMI.
const OptimizedImageParameter = "/aws/service/ecs/optimized-ami/amazon-linux-2/recommended/image_id"

func defaultID(id, kind string) string {
	if id != "" {
		return id
	}
	return kind + "-profile-" + uuid.NewString()
}

// Cluster is an AWS::ECS::Cluster.
type Cluster struct {
	stack.Construct `json:"-"`
	ClusterName     string

	vpc *ec2.Vpc
}

func (*Cluster) ResourceType() string { return "AWS::ECS::Cluster" }

func (c *Cluster) Arn() any  { return c.GetAtt("Arn") }
func (c *Cluster) Name() any { return c.Ref() }

// Vpc returns the VPC the cluster runs in, or nil.
func (c *Cluster) Vpc() *ec2.Vpc { return c.vpc }

// ClusterProps configures CreateCluster.
type ClusterProps struct {
	ID          string
	ClusterName string
	Vpc         *ec2.Vpc
}

// CreateCluster declares a cluster under "ecs-cluster-profile-<uuid>"
// unless props.ID is set.
func CreateCluster(st *stack.Stack, props ClusterProps) (*Cluster, error) {
	c := &Cluster{ClusterName: props.ClusterName, vpc: props.Vpc}
	if err := st.Add(defaultID(props.ID, "ecs-cluster"), c); err != nil {
		return nil, err
	}
	return c, nil
}

// OptimizedImage returns the ECS optimized Amazon Linux 2 AMI, resolved at
// deploy time through a template parameter.
func OptimizedImage(st *stack.Stack) (*autoscaling.MachineImage, error) {
	ref, err := st.AddParameter("SsmParameterValueEcsOptimizedAmiImageId", cdkutils.Parameter{
		Type:    "AWS::SSM::Parameter::Value<AWS::EC2::Image::Id>",
		Default: OptimizedImageParameter,
	})
	if err != nil {
		return nil, err
	}
	return &autoscaling.MachineImage{ImageID: ref}, nil
}

// CapacityProvider is an AWS::ECS::CapacityProvider.
type CapacityProvider struct {
	stack.Construct          `json:"-"`
	Name                     string
	AutoScalingGroupProvider AutoScalingGroupProvider
}

func (*CapacityProvider) ResourceType() string { return "AWS::ECS::CapacityProvider" }

type AutoScalingGroupProvider struct {
	AutoScalingGroupArn          any
	ManagedScaling               ManagedScaling
	ManagedTerminationProtection string
}

type ManagedScaling struct {
	Status         string
	TargetCapacity int
}

// CapacityProviderAssociations is an
// AWS::ECS::ClusterCapacityProviderAssociations.
type CapacityProviderAssociations struct {
	stack.Construct                 `json:"-"`
	Cluster                         any
	CapacityProviders               []any
	DefaultCapacityProviderStrategy []StrategyItem
}

func (*CapacityProviderAssociations) ResourceType() string {
	return "AWS::ECS::ClusterCapacityProviderAssociations"
}

type StrategyItem struct {
	CapacityProvider any
	Weight           int
}

// CapacityProviderProps configures AddAsgCapacityProvider.
type CapacityProviderProps struct {
	ID   string
	Name string
}

// AddAsgCapacityProvider registers group as capacity of cluster. The
// group's instances join the cluster at boot and their role gets the ECS
// container instance policy.
func AddAsgCapacityProvider(cluster *Cluster, group *autoscaling.Group, props CapacityProviderProps) (*CapacityProvider, error) {
	st := cluster.Stack()
	cp := &CapacityProvider{
		Name: props.Name,
		AutoScalingGroupProvider: AutoScalingGroupProvider{
			AutoScalingGroupArn:          group.Name(),
			ManagedScaling:               ManagedScaling{Status: "ENABLED", TargetCapacity: 100},
			ManagedTerminationProtection: "DISABLED",
		},
	}
	if err := st.Add(defaultID(props.ID, "ecs-capacity-provider"), cp); err != nil {
		return nil, err
	}

	assoc := &CapacityProviderAssociations{
		Cluster:           cluster.Ref(),
		CapacityProviders: []any{cp.Ref()},
		DefaultCapacityProviderStrategy: []StrategyItem{
			{CapacityProvider: cp.Ref(), Weight: 1},
		},
	}
	if err := st.AddChild(cp, "Association", assoc); err != nil {
		return nil, err
	}

	group.AddUserData(intrinsics.Concat("echo ECS_CLUSTER=", cluster.Ref(), " >> /etc/ecs/ecs.config"))
	group.Role().AddManagedPolicy(iam.ManagedPolicyArn("service-role/AmazonEC2ContainerServiceforEC2Role"))
	return cp, nil
}

// ContainerImage is the image a container runs.
type ContainerImage struct {
	uri   any
	asset bool
}

// URI returns the image reference.
func (i ContainerImage) URI() any { return i.uri }

// ContainerImageFromRegistry uses a public or private registry image.
func ContainerImageFromRegistry(name string) ContainerImage {
	return ContainerImage{uri: name}
}

// ContainerImageFromAsset builds dir with Docker and pushes it to the
// bootstrap repository when assets are published.
func ContainerImageFromAsset(st *stack.Stack, dir string) (ContainerImage, error) {
	a, err := st.AddContainerAsset(dir)
	if err != nil {
		return ContainerImage{}, err
	}
	return ContainerImage{uri: st.ImageURI(a), asset: true}, nil
}

// LogDriver is a container's LogConfiguration.
type LogDriver struct {
	LogDriver string
	Options   map[string]any

	group logs.ILogGroup
}

// AwsLogProps configures AwsLogDriver.
type AwsLogProps struct {
	// LogGroup is used when set; otherwise group LogGroupName is declared
	// under LogID, default "<LogGroupName>Ecs".
	LogGroup     logs.ILogGroup
	LogGroupName string
	LogID        string
	StreamPrefix string
}

// AwsLogDriver sends container output to CloudWatch Logs.
func AwsLogDriver(st *stack.Stack, props AwsLogProps) (*LogDriver, error) {
	group := props.LogGroup
	if group == nil {
		if props.LogGroupName == "" {
			return nil, fmt.Errorf("awslogs driver: log group or log group name is required")
		}
		id := props.LogID
		if id == "" {
			id = props.LogGroupName + "Ecs"
		}
		g, err := logs.CreateLogGroup(st, props.LogGroupName, logs.LogGroupProps{ID: id})
		if err != nil {
			return nil, err
		}
		group = g
	}
	d := &LogDriver{
		LogDriver: "awslogs",
		Options: map[string]any{
			"awslogs-group":  group.Name(),
			"awslogs-region": st.Region(),
		},
		group: group,
	}
	if props.StreamPrefix != "" {
		d.Options["awslogs-stream-prefix"] = props.StreamPrefix
	}
	return d, nil
}

type KeyValue struct {
	Name  string
	Value any
}

type PortMapping struct {
	ContainerPort int
	Protocol      string
}

// ContainerDefinition is one container of a task definition.
type ContainerDefinition struct {
	Name             string
	Image            any
	Essential        *bool
	Cpu              int
	Memory           int
	Command          []string
	EntryPoint       []string
	Environment      []KeyValue
	PortMappings     []PortMapping
	LogConfiguration *LogDriver
}

// TaskDefinition is an AWS::ECS::TaskDefinition for Fargate.
type TaskDefinition struct {
	stack.Construct         `json:"-"`
	Family                  string
	Cpu                     string
	Memory                  string
	NetworkMode             string
	RequiresCompatibilities []string
	TaskRoleArn             any
	ExecutionRoleArn        any
	ContainerDefinitions    []*ContainerDefinition

	taskRole      iam.IRole
	executionRole *iam.Role
}

func (*TaskDefinition) ResourceType() string { return "AWS::ECS::TaskDefinition" }

// Arn returns the task definition ARN.
func (t *TaskDefinition) Arn() any { return t.Ref() }

// TaskRole returns the role containers run as.
func (t *TaskDefinition) TaskRole() iam.IRole { return t.taskRole }

// ExecutionRole returns the role ECS uses to pull images and ship logs, or
// nil when no container needs one.
func (t *TaskDefinition) ExecutionRole() *iam.Role { return t.executionRole }

// Container returns the container named name.
func (t *TaskDefinition) Container(name string) (*ContainerDefinition, bool) {
	for _, c := range t.ContainerDefinitions {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// TaskProps configures CreateFargateTaskDefinition.
type TaskProps struct {
	ID     string
	Family string
	// MemoryMiB defaults to 512 and Cpu to 256.
	MemoryMiB int
	Cpu       int
	// TaskRole defaults to a new role assumable by ECS tasks.
	TaskRole iam.IRole
}

// CreateFargateTaskDefinition declares a Fargate task definition under
// "ecs-fargate-task-profile-<uuid>" unless props.ID is set.
func CreateFargateTaskDefinition(st *stack.Stack, props TaskProps) (*TaskDefinition, error) {
	memory, cpu := props.MemoryMiB, props.Cpu
	if memory == 0 {
		memory = 512
	}
	if cpu == 0 {
		cpu = 256
	}
	t := &TaskDefinition{
		Family:                  props.Family,
		Cpu:                     strconv.Itoa(cpu),
		Memory:                  strconv.Itoa(memory),
		NetworkMode:             "awsvpc",
		RequiresCompatibilities: []string{"FARGATE"},
	}
	if err := st.Add(defaultID(props.ID, "ecs-fargate-task"), t); err != nil {
		return nil, err
	}
	if t.Family == "" {
		t.Family = t.LogicalID()
	}

	t.taskRole = props.TaskRole
	if t.taskRole == nil {
		role, err := iam.NewRole(st, t.ID()+"-TaskRole", iam.RoleProps{
			AssumedBy: intrinsics.ServicePrincipal{"ecs-tasks.amazonaws.com"},
		})
		if err != nil {
			return nil, err
		}
		t.taskRole = role
	}
	t.TaskRoleArn = t.taskRole.Arn()
	return t, nil
}

// ContainerProps configures AddContainer.
type ContainerProps struct {
	Image       ContainerImage
	Logging     *LogDriver
	Environment map[string]string
	Command     []string
	EntryPoint  []string
	MemoryMiB   int
	Cpu         int
	Ports       []int
	// Essential defaults to true.
	Essential *bool
}

// AddContainer adds container name to t. Asset images and awslogs logging
// declare the task execution role with the permissions they need.
func (t *TaskDefinition) AddContainer(name string, props ContainerProps) (*ContainerDefinition, error) {
	if _, ok := t.Container(name); ok {
		return nil, fmt.Errorf("%w: container %q in %s", stack.ErrDuplicateID, name, t.ID())
	}
	if props.Image.uri == nil {
		return nil, fmt.Errorf("container %q has no image", name)
	}
	essential := true
	if props.Essential != nil {
		essential = *props.Essential
	}
	c := &ContainerDefinition{
		Name:             name,
		Image:            props.Image.uri,
		Essential:        &essential,
		Cpu:              props.Cpu,
		Memory:           props.MemoryMiB,
		Command:          props.Command,
		EntryPoint:       props.EntryPoint,
		LogConfiguration: props.Logging,
	}
	keys := make([]string, 0, len(props.Environment))
	for k := range props.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Environment = append(c.Environment, KeyValue{Name: k, Value: props.Environment[k]})
	}
	for _, p := range props.Ports {
		c.PortMappings = append(c.PortMappings, PortMapping{ContainerPort: p, Protocol: "tcp"})
	}

	if props.Image.asset {
		role, err := t.obtainExecutionRole()
		if err != nil {
			return nil, err
		}
		if err := iam.Grant(role, []string{"ecr:GetAuthorizationToken"}); err != nil {
			return nil, err
		}
		if err := iam.Grant(role, []string{"ecr:BatchCheckLayerAvailability", "ecr:GetDownloadUrlForLayer", "ecr:BatchGetImage"},
			t.Stack().FormatArn(stack.ArnFormat{Service: "ecr", Resource: "repository/cdk-" + stack.Qualifier + "-container-assets-*"})); err != nil {
			return nil, err
		}
	}
	if props.Logging != nil && props.Logging.group != nil {
		role, err := t.obtainExecutionRole()
		if err != nil {
			return nil, err
		}
		if err := iam.Grant(role, []string{"logs:CreateLogStream", "logs:PutLogEvents"}, props.Logging.group.Arn()); err != nil {
			return nil, err
		}
	}

	t.ContainerDefinitions = append(t.ContainerDefinitions, c)
	log.WithField("task", t.ID()).WithField("container", name).Debug("container added")
	return c, nil
}

func (t *TaskDefinition) obtainExecutionRole() (*iam.Role, error) {
	if t.executionRole != nil {
		return t.executionRole, nil
	}
	role, err := iam.NewRole(t.Stack(), t.ID()+"-ExecutionRole", iam.RoleProps{
		AssumedBy: intrinsics.ServicePrincipal{"ecs-tasks.amazonaws.com"},
	})
	if err != nil {
		return nil, err
	}
	t.executionRole = role
	t.ExecutionRoleArn = role.Arn()
	return role, nil
}
