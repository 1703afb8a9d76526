package awsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/lex00/cdkutils-go/intrinsics"
)

// S3API is the part of the S3 client the object and policy helpers use.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetBucketPolicy(ctx context.Context, in *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error)
	PutBucketPolicy(ctx context.Context, in *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
}

// UploadObject writes body to s3://bucket/key.
func UploadObject(ctx context.Context, client S3API, bucket, key string, body io.Reader) error {
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		log.WithError(err).WithField("bucket", bucket).WithField("key", key).Error("upload failed")
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}
	log.WithField("bucket", bucket).WithField("key", key).Debug("object uploaded")
	return nil
}

// objectExists reports whether s3://bucket/key exists.
func objectExists(ctx context.Context, client S3API, bucket, key string) (bool, error) {
	_, err := client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	if apiErrorCode(err) == "NotFound" || apiErrorCode(err) == "NoSuchKey" {
		return false, nil
	}
	return false, err
}

// ReadBucketPolicy returns the policy of bucket, or an empty document when
// the bucket has none.
func ReadBucketPolicy(ctx context.Context, client S3API, bucket string) (*intrinsics.PolicyDocument, error) {
	out, err := client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: aws.String(bucket)})
	if err != nil {
		if apiErrorCode(err) == "NoSuchBucketPolicy" {
			return intrinsics.NewPolicyDocument(), nil
		}
		log.WithError(err).WithField("bucket", bucket).Error("reading bucket policy failed")
		return nil, fmt.Errorf("get policy of bucket %s: %w", bucket, err)
	}
	doc, err := DecodePolicy([]byte(aws.ToString(out.Policy)))
	if err != nil {
		return nil, fmt.Errorf("policy of bucket %s: %w", bucket, err)
	}
	return doc, nil
}

// WriteBucketPolicy replaces the policy of bucket with doc.
func WriteBucketPolicy(ctx context.Context, client S3API, bucket string, doc *intrinsics.PolicyDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(string(data)),
	})
	if err != nil {
		return fmt.Errorf("put policy of bucket %s: %w", bucket, err)
	}
	log.WithField("bucket", bucket).WithField("statements", len(doc.Statement)).Info("bucket policy written")
	return nil
}

// MergeBucketPolicy returns a copy of existing with statements added. A
// statement replaces the one with the same Sid and is skipped when an equal
// statement is present.
func MergeBucketPolicy(existing *intrinsics.PolicyDocument, statements ...*intrinsics.PolicyStatement) *intrinsics.PolicyDocument {
	merged := intrinsics.NewPolicyDocument()
	if existing != nil {
		if existing.Version != "" {
			merged.Version = existing.Version
		}
		merged.Statement = append(merged.Statement, existing.Statement...)
	}
	merged.AddStatements(statements...)
	return merged
}

// rawStatement accepts the single-string forms IAM allows for Action and
// Resource.
type rawStatement struct {
	Sid       string          `json:"Sid"`
	Effect    string          `json:"Effect"`
	Principal any             `json:"Principal"`
	Action    json.RawMessage `json:"Action"`
	Resource  json.RawMessage `json:"Resource"`
	Condition map[string]any  `json:"Condition"`
}

// DecodePolicy parses an IAM policy document.
func DecodePolicy(data []byte) (*intrinsics.PolicyDocument, error) {
	var raw struct {
		Version   string          `json:"Version"`
		Statement json.RawMessage `json:"Statement"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}

	var stmts []rawStatement
	if s := bytes.TrimSpace(raw.Statement); len(s) > 0 && s[0] == '{' {
		var one rawStatement
		if err := json.Unmarshal(s, &one); err != nil {
			return nil, fmt.Errorf("decode policy statement: %w", err)
		}
		stmts = []rawStatement{one}
	} else if len(s) > 0 {
		if err := json.Unmarshal(s, &stmts); err != nil {
			return nil, fmt.Errorf("decode policy statements: %w", err)
		}
	}

	doc := &intrinsics.PolicyDocument{Version: raw.Version}
	for _, r := range stmts {
		actions, err := stringList(r.Action)
		if err != nil {
			return nil, fmt.Errorf("statement %q: Action: %w", r.Sid, err)
		}
		resources, err := stringList(r.Resource)
		if err != nil {
			return nil, fmt.Errorf("statement %q: Resource: %w", r.Sid, err)
		}
		st := &intrinsics.PolicyStatement{
			Sid:       r.Sid,
			Effect:    r.Effect,
			Principal: r.Principal,
			Action:    actions,
			Condition: r.Condition,
		}
		for _, res := range resources {
			st.Resource = append(st.Resource, res)
		}
		doc.Statement = append(doc.Statement, st)
	}
	return doc, nil
}

func stringList(data json.RawMessage) ([]string, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, err
	}
	return many, nil
}

func apiErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}
