package awsclient

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/quicksight"
	"github.com/google/uuid"
)

// QuickSightAPI is the part of the QuickSight client
// InitiateQuickSightIngestion uses.
type QuickSightAPI interface {
	CreateIngestion(ctx context.Context, in *quicksight.CreateIngestionInput, optFns ...func(*quicksight.Options)) (*quicksight.CreateIngestionOutput, error)
}

// NewQuickSightClient creates a QuickSight client, using creds instead of
// the configured credentials when creds is not nil.
func NewQuickSightClient(cfg aws.Config, creds *aws.Credentials) *quicksight.Client {
	return quicksight.NewFromConfig(withCredentials(cfg, creds))
}

// InitiateQuickSightIngestion refreshes SPICE dataset datasetID of account
// accountID under a random ingestion ID. It returns the response and the ID.
func InitiateQuickSightIngestion(ctx context.Context, client QuickSightAPI, datasetID, accountID string) (*quicksight.CreateIngestionOutput, string, error) {
	id := uuid.NewString()
	out, err := client.CreateIngestion(ctx, &quicksight.CreateIngestionInput{
		AwsAccountId: aws.String(accountID),
		DataSetId:    aws.String(datasetID),
		IngestionId:  aws.String(id),
	})
	if err != nil {
		return nil, id, fmt.Errorf("create ingestion for dataset %s: %w", datasetID, err)
	}
	log.WithField("dataset", datasetID).WithField("ingestion", id).Info("ingestion started")
	return out, id, nil
}
