package awsclient

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// STSAPI is the part of the STS client CrossAccountCredentials uses.
type STSAPI interface {
	AssumeRole(ctx context.Context, in *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// RoleArn returns "arn:aws:iam::<accountID>:role/<roleName>".
func RoleArn(accountID, roleName string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, roleName)
}

// CrossAccountCredentials assumes roleName in accountID with session name
// "cross_acct_lambda_<roleName>" and returns the temporary credentials.
func CrossAccountCredentials(ctx context.Context, client STSAPI, accountID, roleName string) (aws.Credentials, error) {
	arn := RoleArn(accountID, roleName)
	out, err := client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(arn),
		RoleSessionName: aws.String("cross_acct_lambda_" + roleName),
	})
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("assume role %s: %w", arn, err)
	}
	if out.Credentials == nil {
		return aws.Credentials{}, fmt.Errorf("assume role %s: no credentials returned", arn)
	}

	c := out.Credentials
	creds := aws.Credentials{
		AccessKeyID:     aws.ToString(c.AccessKeyId),
		SecretAccessKey: aws.ToString(c.SecretAccessKey),
		SessionToken:    aws.ToString(c.SessionToken),
		Source:          "AssumeRole",
	}
	if c.Expiration != nil {
		creds.CanExpire = true
		creds.Expires = *c.Expiration
	}
	log.WithField("role", arn).Debug("assumed role")
	return creds, nil
}
