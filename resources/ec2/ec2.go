// Package ec2 looks up existing VPCs and their subnets at synth time and
// validates instance types.
package ec2

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"

	"github.com/lex00/cdkutils-go/stack"
)

// Subnet kinds accepted by GetSubnets.
const (
	SubnetPublic  = "public"
	SubnetPrivate = "private"
)

var (
	// ErrVpcNotFound is returned when a lookup matches no VPC.
	ErrVpcNotFound = errors.New("vpc not found")
	// ErrUnknownSubnetType is returned for a subnet kind other than public
	// or private.
	ErrUnknownSubnetType = errors.New("unknown subnet type")
	// ErrUnknownInstanceType is returned for an instance type EC2 does not
	// offer.
	ErrUnknownInstanceType = errors.New("unknown instance type")
)

// API is the part of the EC2 client the lookups use.
type API interface {
	DescribeVpcs(ctx context.Context, in *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, in *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeRouteTables(ctx context.Context, in *ec2.DescribeRouteTablesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error)
}

// Subnet is a looked up subnet.
type Subnet struct {
	ID               string
	AvailabilityZone string
	CidrBlock        string
	RouteTableID     string
}

// Vpc is a looked up VPC with its subnets split by reachability.
type Vpc struct {
	ID             string
	CidrBlock      string
	PublicSubnets  []Subnet
	PrivateSubnets []Subnet
}

// AvailabilityZones returns the zones holding subnets, sorted.
func (v *Vpc) AvailabilityZones() []string {
	seen := make(map[string]bool)
	var zones []string
	for _, s := range append(append([]Subnet{}, v.PublicSubnets...), v.PrivateSubnets...) {
		if !seen[s.AvailabilityZone] {
			seen[s.AvailabilityZone] = true
			zones = append(zones, s.AvailabilityZone)
		}
	}
	sort.Strings(zones)
	return zones
}

// RetrieveVpc looks up vpcID under construct ID id, which defaults to
// "ec2-vpc-profile-<uuid>".
func RetrieveVpc(ctx context.Context, st *stack.Stack, client API, vpcID, id string) (*Vpc, error) {
	if id == "" {
		id = "ec2-vpc-profile-" + uuid.NewString()
	}
	return lookup(ctx, st, client, id, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
}

// DefaultVpc looks up the account's default VPC under "default-vpc".
func DefaultVpc(ctx context.Context, st *stack.Stack, client API) (*Vpc, error) {
	return lookup(ctx, st, client, "default-vpc", &ec2.DescribeVpcsInput{
		Filters: []types.Filter{{Name: aws.String("is-default"), Values: []string{"true"}}},
	})
}

func lookup(ctx context.Context, st *stack.Stack, client API, id string, in *ec2.DescribeVpcsInput) (*Vpc, error) {
	out, err := client.DescribeVpcs(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("describe vpcs: %w", err)
	}
	if len(out.Vpcs) == 0 {
		return nil, ErrVpcNotFound
	}
	v := &Vpc{
		ID:        aws.ToString(out.Vpcs[0].VpcId),
		CidrBlock: aws.ToString(out.Vpcs[0].CidrBlock),
	}
	vpcFilter := []types.Filter{{Name: aws.String("vpc-id"), Values: []string{v.ID}}}

	subnets, err := client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{Filters: vpcFilter})
	if err != nil {
		return nil, fmt.Errorf("describe subnets of %s: %w", v.ID, err)
	}
	tables, err := client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{Filters: vpcFilter})
	if err != nil {
		return nil, fmt.Errorf("describe route tables of %s: %w", v.ID, err)
	}

	// Subnets without an explicit association use the main table.
	explicit := make(map[string]types.RouteTable)
	var main *types.RouteTable
	for i, rt := range tables.RouteTables {
		for _, a := range rt.Associations {
			if aws.ToBool(a.Main) {
				main = &tables.RouteTables[i]
			}
			if a.SubnetId != nil {
				explicit[*a.SubnetId] = rt
			}
		}
	}

	for _, sn := range subnets.Subnets {
		s := Subnet{
			ID:               aws.ToString(sn.SubnetId),
			AvailabilityZone: aws.ToString(sn.AvailabilityZone),
			CidrBlock:        aws.ToString(sn.CidrBlock),
		}
		rt, ok := explicit[s.ID]
		if !ok && main != nil {
			rt, ok = *main, true
		}
		if ok {
			s.RouteTableID = aws.ToString(rt.RouteTableId)
		}
		if ok && routesToInternet(rt) {
			v.PublicSubnets = append(v.PublicSubnets, s)
		} else {
			v.PrivateSubnets = append(v.PrivateSubnets, s)
		}
	}
	sortSubnets(v.PublicSubnets)
	sortSubnets(v.PrivateSubnets)

	if err := st.Import(id); err != nil {
		return nil, err
	}
	log.WithField("vpc", v.ID).WithField("public", len(v.PublicSubnets)).WithField("private", len(v.PrivateSubnets)).Debug("vpc looked up")
	return v, nil
}

func routesToInternet(rt types.RouteTable) bool {
	for _, r := range rt.Routes {
		if strings.HasPrefix(aws.ToString(r.GatewayId), "igw-") {
			return true
		}
	}
	return false
}

func sortSubnets(s []Subnet) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].AvailabilityZone != s[j].AvailabilityZone {
			return s[i].AvailabilityZone < s[j].AvailabilityZone
		}
		return s[i].ID < s[j].ID
	})
}

// GetSubnets returns the public or private subnets of v.
func GetSubnets(v *Vpc, kind string) ([]Subnet, error) {
	switch kind {
	case SubnetPublic:
		return v.PublicSubnets, nil
	case SubnetPrivate:
		return v.PrivateSubnets, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubnetType, kind)
	}
}

// SubnetIDs returns the IDs of subnets.
func SubnetIDs(subnets []Subnet) []string {
	ids := make([]string, len(subnets))
	for i, s := range subnets {
		ids[i] = s.ID
	}
	return ids
}

// InstanceTypeOf validates name against the instance types EC2 offers.
func InstanceTypeOf(name string) (types.InstanceType, error) {
	t := types.InstanceType(name)
	for _, known := range t.Values() {
		if known == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownInstanceType, name)
}
