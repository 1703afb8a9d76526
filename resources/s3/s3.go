// Package s3 references buckets and manages their resource policies.
package s3

import (
	"fmt"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/stack"
)

// IBucket is a bucket other factories can read from or write to.
type IBucket interface {
	Name() any
	Arn() any
	// ArnForObjects returns the ARN of keys matching pattern, e.g. "raw/*".
	ArnForObjects(pattern string) any
}

// Bucket is a bucket referenced by name. It declares nothing until a
// statement is added to its resource policy.
type Bucket struct {
	st     *stack.Stack
	id     string
	name   any
	policy *BucketPolicy
}

func (b *Bucket) Name() any { return b.name }

func (b *Bucket) Arn() any {
	return intrinsics.Concat("arn:", intrinsics.AWS_PARTITION, ":s3:::", b.name)
}

func (b *Bucket) ArnForObjects(pattern string) any {
	return intrinsics.Concat("arn:", intrinsics.AWS_PARTITION, ":s3:::", b.name, "/", pattern)
}

// Policy returns the declared bucket policy, or nil.
func (b *Bucket) Policy() *BucketPolicy { return b.policy }

// BucketPolicy is an AWS::S3::BucketPolicy.
type BucketPolicy struct {
	stack.Construct `json:"-"`
	Bucket          any
	PolicyDocument  *intrinsics.PolicyDocument
}

func (*BucketPolicy) ResourceType() string { return "AWS::S3::BucketPolicy" }

// BucketFromName references bucket name under "profile-for-bucket-<name>".
func BucketFromName(st *stack.Stack, name string) (*Bucket, error) {
	id := "profile-for-bucket-" + name
	if err := st.Import(id); err != nil {
		return nil, err
	}
	return &Bucket{st: st, id: id, name: name}, nil
}

// BucketFromAttributes references a bucket whose name may be resolved at
// deploy time, e.g. from an SSM parameter.
func BucketFromAttributes(st *stack.Stack, id string, name any) (*Bucket, error) {
	if err := st.Import(id); err != nil {
		return nil, err
	}
	return &Bucket{st: st, id: id, name: name}, nil
}

// AddToResourcePolicy merges statement into the bucket's policy, declaring
// the policy on first use. Identical statements are added once.
func AddToResourcePolicy(b *Bucket, statement *intrinsics.PolicyStatement) (*BucketPolicy, error) {
	if b == nil || statement == nil {
		return nil, fmt.Errorf("bucket and statement are required")
	}
	if b.policy == nil {
		p := &BucketPolicy{Bucket: b.name, PolicyDocument: intrinsics.NewPolicyDocument()}
		if err := b.st.Add(b.id+"-Policy", p); err != nil {
			return nil, err
		}
		b.policy = p
	}
	b.policy.PolicyDocument.AddStatements(statement)
	return b.policy, nil
}

// Path returns "s3://<bucket>/<prefix>".
func Path(bucket, prefix string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, prefix)
}
