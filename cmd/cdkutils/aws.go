package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"

	"github.com/lex00/cdkutils-go/awsclient"
	"github.com/lex00/cdkutils-go/stack"
)

// clientFactory builds the SDK clients the AWS commands call. Tests replace
// it with fakes.
type clientFactory struct {
	config     func(ctx context.Context, opts ...awsclient.Option) (aws.Config, error)
	ssm        func(cfg aws.Config) awsclient.SSMAPI
	sts        func(cfg aws.Config) awsclient.STSAPI
	s3         func(cfg aws.Config) awsclient.S3API
	glue       func(cfg aws.Config, creds *aws.Credentials) awsclient.GlueAPI
	quicksight func(cfg aws.Config, creds *aws.Credentials) awsclient.QuickSightAPI
}

var clients = clientFactory{
	config: awsclient.LoadConfig,
	ssm:    func(cfg aws.Config) awsclient.SSMAPI { return ssm.NewFromConfig(cfg) },
	sts:    func(cfg aws.Config) awsclient.STSAPI { return sts.NewFromConfig(cfg) },
	s3:     func(cfg aws.Config) awsclient.S3API { return s3.NewFromConfig(cfg) },
	glue: func(cfg aws.Config, creds *aws.Credentials) awsclient.GlueAPI {
		return awsclient.NewGlueClient(cfg, creds)
	},
	quicksight: func(cfg aws.Config, creds *aws.Credentials) awsclient.QuickSightAPI {
		return awsclient.NewQuickSightClient(cfg, creds)
	},
}

// awsFlags are shared by every command that calls AWS.
type awsFlags struct {
	region  string
	profile string
}

func (f *awsFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.region, "region", awsclient.DefaultRegion, "AWS region")
	cmd.PersistentFlags().StringVar(&f.profile, "profile", "", "Shared config profile")
}

func (f *awsFlags) load(ctx context.Context) (aws.Config, error) {
	opts := []awsclient.Option{awsclient.WithRegion(f.region)}
	if f.profile != "" {
		opts = append(opts, awsclient.WithProfile(f.profile))
	}
	cfg, err := clients.config(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// assume returns temporary credentials for role in account, or nil when
// no role is given.
func (f *awsFlags) assume(ctx context.Context, cfg aws.Config, account, role string) (*aws.Credentials, error) {
	if role == "" {
		return nil, nil
	}
	if account == "" {
		return nil, fmt.Errorf("--role requires --account")
	}
	creds, err := awsclient.CrossAccountCredentials(ctx, clients.sts(cfg), account, role)
	if err != nil {
		return nil, err
	}
	return &creds, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newSSMCmd() *cobra.Command {
	var flags awsFlags
	cmd := &cobra.Command{
		Use:   "ssm",
		Short: "Read SSM parameters",
	}
	flags.register(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Print the value of a parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd.Context())
			if err != nil {
				return err
			}
			value, err := awsclient.GetSSMValue(cmd.Context(), clients.ssm(cfg), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	})
	return cmd
}

func newSTSCmd() *cobra.Command {
	var (
		flags   awsFlags
		account string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "sts",
		Short: "Assume cross-account roles",
	}
	flags.register(cmd)

	assume := &cobra.Command{
		Use:   "assume",
		Short: "Print temporary credentials for a role",
		Long: `Assume prints the temporary credentials of role in account as JSON.

Example:
    cdkutils sts assume --account 123456789012 --role data-reader`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd.Context())
			if err != nil {
				return err
			}
			creds, err := awsclient.CrossAccountCredentials(cmd.Context(), clients.sts(cfg), account, role)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"AccessKeyId":     creds.AccessKeyID,
				"SecretAccessKey": creds.SecretAccessKey,
				"SessionToken":    creds.SessionToken,
				"Expiration":      creds.Expires,
			})
		},
	}
	assume.Flags().StringVar(&account, "account", "", "Account ID")
	assume.Flags().StringVar(&role, "role", "", "Role name")
	_ = assume.MarkFlagRequired("account")
	_ = assume.MarkFlagRequired("role")
	cmd.AddCommand(assume)
	return cmd
}

func newGlueCmd() *cobra.Command {
	var (
		flags   awsFlags
		account string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "glue",
		Short: "Trigger Glue crawlers",
	}
	flags.register(cmd)

	start := &cobra.Command{
		Use:   "start-crawler <name>",
		Short: "Start a crawler, optionally in another account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := flags.load(ctx)
			if err != nil {
				return err
			}
			creds, err := flags.assume(ctx, cfg, account, role)
			if err != nil {
				return err
			}
			if _, err := awsclient.TriggerGlueCrawler(ctx, clients.glue(cfg, creds), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "crawler %s started\n", args[0])
			return nil
		},
	}
	start.Flags().StringVar(&account, "account", "", "Account owning the crawler")
	start.Flags().StringVar(&role, "role", "", "Role to assume in that account")
	cmd.AddCommand(start)
	return cmd
}

func newQuickSightCmd() *cobra.Command {
	var (
		flags   awsFlags
		dataset string
		account string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "quicksight",
		Short: "Refresh QuickSight datasets",
	}
	flags.register(cmd)

	ingest := &cobra.Command{
		Use:   "ingest",
		Short: "Start a SPICE ingestion of a dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := flags.load(ctx)
			if err != nil {
				return err
			}
			creds, err := flags.assume(ctx, cfg, account, role)
			if err != nil {
				return err
			}
			out, id, err := awsclient.InitiateQuickSightIngestion(ctx, clients.quicksight(cfg, creds), dataset, account)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"IngestionId":     id,
				"IngestionStatus": string(out.IngestionStatus),
			})
		},
	}
	ingest.Flags().StringVar(&dataset, "dataset", "", "Dataset ID")
	ingest.Flags().StringVar(&account, "account", "", "Account owning the dataset")
	ingest.Flags().StringVar(&role, "role", "", "Role to assume in that account")
	_ = ingest.MarkFlagRequired("dataset")
	_ = ingest.MarkFlagRequired("account")
	cmd.AddCommand(ingest)
	return cmd
}

func newPublishCmd() *cobra.Command {
	var (
		flags  awsFlags
		bucket string
	)
	cmd := &cobra.Command{
		Use:   "publish <paths...>",
		Short: "Zip and upload file assets",
		Long: `Publish zips each file or directory and uploads it to bucket under its
content hash, skipping archives that are already there.

Example:
    cdkutils publish --bucket cdk-hnb659fds-assets-123456789012-eu-central-1 ./lambda`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := stack.New("publish", stack.Environment{})
			for _, p := range args {
				if _, err := st.AddFileAsset(p); err != nil {
					return err
				}
			}
			cfg, err := flags.load(cmd.Context())
			if err != nil {
				return err
			}
			keys, err := awsclient.PublishFileAssets(cmd.Context(), clients.s3(cfg), bucket, st.Assets())
			if err != nil {
				return err
			}
			for _, a := range st.Assets() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s s3://%s/%s\n", a.Path, bucket, a.ObjectKey())
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "all assets already published")
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&bucket, "bucket", "", "Asset bucket")
	_ = cmd.MarkFlagRequired("bucket")
	return cmd
}
