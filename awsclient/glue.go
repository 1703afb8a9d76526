package awsclient

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
)

// GlueAPI is the part of the Glue client TriggerGlueCrawler uses.
type GlueAPI interface {
	StartCrawler(ctx context.Context, in *glue.StartCrawlerInput, optFns ...func(*glue.Options)) (*glue.StartCrawlerOutput, error)
}

// NewGlueClient creates a Glue client, using creds instead of the
// configured credentials when creds is not nil.
func NewGlueClient(cfg aws.Config, creds *aws.Credentials) *glue.Client {
	return glue.NewFromConfig(withCredentials(cfg, creds))
}

// TriggerGlueCrawler starts crawler name.
func TriggerGlueCrawler(ctx context.Context, client GlueAPI, name string) (*glue.StartCrawlerOutput, error) {
	out, err := client.StartCrawler(ctx, &glue.StartCrawlerInput{Name: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("start crawler %s: %w", name, err)
	}
	log.WithField("crawler", name).Info("crawler started")
	return out, nil
}
