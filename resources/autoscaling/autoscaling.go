// Package autoscaling declares EC2 Auto Scaling groups backed by a launch
// template, used as ECS capacity.
package autoscaling

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/resources/ec2"
	"github.com/lex00/cdkutils-go/resources/iam"
	"github.com/lex00/cdkutils-go/stack"
)

// ErrMissingImage is returned when a group has no machine image.
var ErrMissingImage = errors.New("auto scaling group has no machine image")

// MachineImage is the AMI instances boot from.
type MachineImage struct {
	ImageID any
}

type LaunchTemplateData struct {
	ImageId            any
	InstanceType       string
	IamInstanceProfile *InstanceProfileSpec
	UserData           any
	SecurityGroupIds   []any
}

type InstanceProfileSpec struct {
	Arn any
}

// LaunchTemplate is an AWS::EC2::LaunchTemplate.
type LaunchTemplate struct {
	stack.Construct    `json:"-"`
	LaunchTemplateData LaunchTemplateData
}

func (*LaunchTemplate) ResourceType() string { return "AWS::EC2::LaunchTemplate" }

// InstanceProfile is an AWS::IAM::InstanceProfile.
type InstanceProfile struct {
	stack.Construct `json:"-"`
	Roles           []any
}

func (*InstanceProfile) ResourceType() string { return "AWS::IAM::InstanceProfile" }

type LaunchTemplateSpec struct {
	LaunchTemplateId any
	Version          any
}

// Group is an AWS::AutoScaling::AutoScalingGroup.
type Group struct {
	stack.Construct      `json:"-"`
	AutoScalingGroupName string
	MinSize              string
	MaxSize              string
	VPCZoneIdentifier    []string
	LaunchTemplate       LaunchTemplateSpec

	template *LaunchTemplate
	role     *iam.Role
	userData []any
}

func (*Group) ResourceType() string { return "AWS::AutoScaling::AutoScalingGroup" }

// Name returns the group name, which capacity providers accept in place of
// the ARN.
func (g *Group) Name() any { return g.Ref() }

// Role returns the instance role.
func (g *Group) Role() *iam.Role { return g.role }

// LaunchTemplateResource returns the group's launch template.
func (g *Group) LaunchTemplateResource() *LaunchTemplate { return g.template }

// AddUserData appends shell lines run at instance boot.
func (g *Group) AddUserData(lines ...any) {
	g.userData = append(g.userData, lines...)
}

// Prepare renders the user data into the launch template.
func (g *Group) Prepare() error {
	if len(g.userData) == 0 {
		return nil
	}
	lines := append([]any{"#!/bin/bash"}, g.userData...)
	g.template.LaunchTemplateData.UserData = intrinsics.Base64{Value: intrinsics.Join{Delimiter: "\n", Values: lines}}
	return nil
}

// GroupProps configures CreateAutoScalingGroup.
type GroupProps struct {
	// ID defaults to "autoscaling-profile-<uuid>".
	ID                   string
	AutoScalingGroupName string
	InstanceType         string
	MachineImage         *MachineImage
	// Subnets defaults to the VPC's private subnets.
	Subnets        []ec2.Subnet
	SecurityGroups []any
	// MinCapacity defaults to 1 and MaxCapacity to MinCapacity.
	MinCapacity int
	MaxCapacity int
}

// CreateAutoScalingGroup declares a group in vpc with a launch template and
// an instance role assumable by EC2.
func CreateAutoScalingGroup(st *stack.Stack, vpc *ec2.Vpc, props GroupProps) (*Group, error) {
	if props.MachineImage == nil {
		return nil, ErrMissingImage
	}
	if _, err := ec2.InstanceTypeOf(props.InstanceType); err != nil {
		return nil, err
	}
	id := props.ID
	if id == "" {
		id = "autoscaling-profile-" + uuid.NewString()
	}
	subnets := props.Subnets
	if subnets == nil {
		subnets = vpc.PrivateSubnets
	}
	if len(subnets) == 0 {
		return nil, fmt.Errorf("auto scaling group %q: vpc %s has no subnets", id, vpc.ID)
	}
	minSize, maxSize := props.MinCapacity, props.MaxCapacity
	if minSize == 0 {
		minSize = 1
	}
	if maxSize == 0 {
		maxSize = minSize
	}
	if maxSize < minSize {
		return nil, fmt.Errorf("auto scaling group %q: max capacity %d below min %d", id, maxSize, minSize)
	}

	g := &Group{
		AutoScalingGroupName: props.AutoScalingGroupName,
		MinSize:              strconv.Itoa(minSize),
		MaxSize:              strconv.Itoa(maxSize),
		VPCZoneIdentifier:    ec2.SubnetIDs(subnets),
	}
	if err := st.Add(id, g); err != nil {
		return nil, err
	}

	role, err := iam.NewRole(st, id+"-InstanceRole", iam.RoleProps{
		AssumedBy: intrinsics.ServicePrincipal{"ec2.amazonaws.com"},
	})
	if err != nil {
		return nil, err
	}
	profile := &InstanceProfile{Roles: []any{role.Ref()}}
	if err := st.AddChild(g, "InstanceProfile", profile); err != nil {
		return nil, err
	}
	lt := &LaunchTemplate{LaunchTemplateData: LaunchTemplateData{
		ImageId:            props.MachineImage.ImageID,
		InstanceType:       props.InstanceType,
		IamInstanceProfile: &InstanceProfileSpec{Arn: profile.GetAtt("Arn")},
		SecurityGroupIds:   props.SecurityGroups,
	}}
	if err := st.AddChild(g, "LaunchTemplate", lt); err != nil {
		return nil, err
	}
	g.LaunchTemplate = LaunchTemplateSpec{
		LaunchTemplateId: lt.Ref(),
		Version:          lt.GetAtt("LatestVersionNumber"),
	}
	g.template = lt
	g.role = role
	return g, nil
}
