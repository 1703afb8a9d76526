package ec2

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/cdkutils-go/stack"
)

type fakeEC2 struct {
	vpcs    []types.Vpc
	subnets []types.Subnet
	tables  []types.RouteTable
	vpcIn   *ec2.DescribeVpcsInput
	err     error
}

func (f *fakeEC2) DescribeVpcs(_ context.Context, in *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	f.vpcIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &ec2.DescribeVpcsOutput{Vpcs: f.vpcs}, nil
}

func (f *fakeEC2) DescribeSubnets(context.Context, *ec2.DescribeSubnetsInput, ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	return &ec2.DescribeSubnetsOutput{Subnets: f.subnets}, nil
}

func (f *fakeEC2) DescribeRouteTables(context.Context, *ec2.DescribeRouteTablesInput, ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	return &ec2.DescribeRouteTablesOutput{RouteTables: f.tables}, nil
}

func newFake() *fakeEC2 {
	return &fakeEC2{
		vpcs: []types.Vpc{{VpcId: aws.String("vpc-1"), CidrBlock: aws.String("10.0.0.0/16")}},
		subnets: []types.Subnet{
			{SubnetId: aws.String("subnet-pub-b"), AvailabilityZone: aws.String("eu-central-1b")},
			{SubnetId: aws.String("subnet-pub-a"), AvailabilityZone: aws.String("eu-central-1a")},
			{SubnetId: aws.String("subnet-priv-a"), AvailabilityZone: aws.String("eu-central-1a")},
		},
		tables: []types.RouteTable{
			{
				RouteTableId: aws.String("rtb-main"),
				Associations: []types.RouteTableAssociation{{Main: aws.Bool(true)}},
				Routes:       []types.Route{{GatewayId: aws.String("igw-1")}},
			},
			{
				RouteTableId: aws.String("rtb-private"),
				Associations: []types.RouteTableAssociation{{SubnetId: aws.String("subnet-priv-a")}},
				Routes:       []types.Route{{NatGatewayId: aws.String("nat-1")}},
			},
		},
	}
}

func TestRetrieveVpc(t *testing.T) {
	st := stack.New("ecs", stack.Environment{})
	v, err := RetrieveVpc(context.Background(), st, newFake(), "vpc-1", "")
	require.NoError(t, err)

	assert.Equal(t, "vpc-1", v.ID)
	assert.Equal(t, []string{"subnet-pub-a", "subnet-pub-b"}, SubnetIDs(v.PublicSubnets))
	assert.Equal(t, []string{"subnet-priv-a"}, SubnetIDs(v.PrivateSubnets))
	assert.Equal(t, "rtb-private", v.PrivateSubnets[0].RouteTableID)
	assert.Equal(t, []string{"eu-central-1a", "eu-central-1b"}, v.AvailabilityZones())
}

func TestRetrieveVpc_Errors(t *testing.T) {
	st := stack.New("ecs", stack.Environment{})
	_, err := RetrieveVpc(context.Background(), st, &fakeEC2{}, "vpc-missing", "lookup")
	assert.ErrorIs(t, err, ErrVpcNotFound)

	boom := errors.New("throttled")
	_, err = RetrieveVpc(context.Background(), st, &fakeEC2{err: boom}, "vpc-1", "lookup")
	assert.ErrorIs(t, err, boom)
}

func TestDefaultVpc(t *testing.T) {
	st := stack.New("ecs", stack.Environment{})
	fake := newFake()
	_, err := DefaultVpc(context.Background(), st, fake)
	require.NoError(t, err)
	require.Len(t, fake.vpcIn.Filters, 1)
	assert.Equal(t, "is-default", aws.ToString(fake.vpcIn.Filters[0].Name))

	_, err = DefaultVpc(context.Background(), st, fake)
	assert.ErrorIs(t, err, stack.ErrDuplicateID)
}

func TestGetSubnets(t *testing.T) {
	v := &Vpc{PublicSubnets: []Subnet{{ID: "a"}}, PrivateSubnets: []Subnet{{ID: "b"}}}

	pub, err := GetSubnets(v, "public")
	require.NoError(t, err)
	assert.Equal(t, "a", pub[0].ID)

	priv, err := GetSubnets(v, "private")
	require.NoError(t, err)
	assert.Equal(t, "b", priv[0].ID)

	_, err = GetSubnets(v, "isolated")
	assert.ErrorIs(t, err, ErrUnknownSubnetType)
}

func TestInstanceTypeOf(t *testing.T) {
	it, err := InstanceTypeOf("m5.xlarge")
	require.NoError(t, err)
	assert.Equal(t, types.InstanceTypeM5Xlarge, it)

	_, err = InstanceTypeOf("m5.huge")
	assert.ErrorIs(t, err, ErrUnknownInstanceType)
}
