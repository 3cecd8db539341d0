package history

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/types"
)

// ledgerKey is the fixed partition key: the whole ledger is one small
// item collection, sorted by outcome ID.
const ledgerKey = "executions"

// DynamoMode represents the DynamoDB connection mode
type DynamoMode string

const (
	DynamoModeLocal DynamoMode = "local"
	DynamoModeAWS   DynamoMode = "aws"
)

// DynamoConfig holds DynamoDB configuration
type DynamoConfig struct {
	Mode            DynamoMode
	Endpoint        string // for local mode
	Region          string
	ExecutionsTable string
}

// LoadDynamoConfig loads DynamoDB config from environment
func LoadDynamoConfig() DynamoConfig {
	mode := DynamoMode(getEnv("DYNAMO_MODE", "aws"))
	if mode != DynamoModeLocal {
		mode = DynamoModeAWS
	}

	return DynamoConfig{
		Mode:            mode,
		Endpoint:        getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
		Region:          getEnv("DYNAMO_REGION", "eu-central-1"),
		ExecutionsTable: getEnv("DYNAMO_EXECUTIONS_TABLE", "pbxetl-executions"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// dynamoItem is one persisted outcome plus the fixed partition key.
type dynamoItem struct {
	Ledger string `dynamodbav:"Ledger"`
	types.Outcome
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs when
		// static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	// Create the table in local mode
	if cfg.Mode == DynamoModeLocal {
		if err := createTableIfNotExists(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB history store initialized")

	return store, nil
}

func (s *DynamoDBStore) Load(ctx context.Context) ([]types.Outcome, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.ExecutionsTable),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "Ledger",
		},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":pk": &dbtypes.AttributeValueMemberS{Value: ledgerKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query execution history: %w", err)
	}

	var items []dynamoItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution history: %w", err)
	}

	outcomes := make([]types.Outcome, 0, len(items))
	for _, it := range items {
		outcomes = append(outcomes, it.Outcome)
	}
	// IDs are millisecond timestamps, so lexicographic sort by the sort key
	// is not chronological across digit-count boundaries. Sort by StartTime.
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].StartTime.Before(outcomes[j].StartTime)
	})
	return outcomes, nil
}

func (s *DynamoDBStore) Save(ctx context.Context, outcomes []types.Outcome) error {
	keep := make(map[string]bool, len(outcomes))

	// Write the pruned ledger in batches of 25
	for i := 0; i < len(outcomes); i += 25 {
		end := i + 25
		if end > len(outcomes) {
			end = len(outcomes)
		}

		requests := make([]dbtypes.WriteRequest, 0, end-i)
		for _, outcome := range outcomes[i:end] {
			keep[outcome.ID] = true
			item, err := attributevalue.MarshalMap(dynamoItem{Ledger: ledgerKey, Outcome: outcome})
			if err != nil {
				return fmt.Errorf("failed to marshal outcome: %w", err)
			}
			requests = append(requests, dbtypes.WriteRequest{
				PutRequest: &dbtypes.PutRequest{Item: item},
			})
		}

		_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]dbtypes.WriteRequest{
				s.config.ExecutionsTable: requests,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to save execution history: %w", err)
		}
	}

	return s.deletePruned(ctx, keep)
}

// deletePruned removes persisted outcomes that fell off the bounded ledger.
func (s *DynamoDBStore) deletePruned(ctx context.Context, keep map[string]bool) error {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.ExecutionsTable),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ProjectionExpression:   aws.String("#pk, #sk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "Ledger",
			"#sk": "ID",
		},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":pk": &dbtypes.AttributeValueMemberS{Value: ledgerKey},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to list execution history keys: %w", err)
	}

	var stale []dbtypes.WriteRequest
	for _, item := range result.Items {
		id, ok := item["ID"].(*dbtypes.AttributeValueMemberS)
		if !ok || keep[id.Value] {
			continue
		}
		stale = append(stale, dbtypes.WriteRequest{
			DeleteRequest: &dbtypes.DeleteRequest{
				Key: map[string]dbtypes.AttributeValue{
					"Ledger": &dbtypes.AttributeValueMemberS{Value: ledgerKey},
					"ID":     item["ID"],
				},
			},
		})
	}

	for i := 0; i < len(stale); i += 25 {
		end := i + 25
		if end > len(stale) {
			end = len(stale)
		}
		_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]dbtypes.WriteRequest{
				s.config.ExecutionsTable: stale[i:end],
			},
		})
		if err != nil {
			return fmt.Errorf("failed to prune execution history: %w", err)
		}
	}
	return nil
}

// createTableIfNotExists creates the executions table for local development
func createTableIfNotExists(ctx context.Context, client *dynamodb.Client, config DynamoConfig, logger zerolog.Logger) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(config.ExecutionsTable),
	})
	if err == nil {
		logger.Info().Str("table", config.ExecutionsTable).Msg("table already exists")
		return nil
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(config.ExecutionsTable),
		KeySchema: []dbtypes.KeySchemaElement{
			{AttributeName: aws.String("Ledger"), KeyType: dbtypes.KeyTypeHash},
			{AttributeName: aws.String("ID"), KeyType: dbtypes.KeyTypeRange},
		},
		AttributeDefinitions: []dbtypes.AttributeDefinition{
			{AttributeName: aws.String("Ledger"), AttributeType: dbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("ID"), AttributeType: dbtypes.ScalarAttributeTypeS},
		},
		BillingMode: dbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", config.ExecutionsTable, err)
	}
	logger.Info().Str("table", config.ExecutionsTable).Msg("table created")
	return nil
}
