package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the ledger uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Dynamo stores entries in a single table keyed
//
//	PK = "SEGMENT#<key>", SK = "<RFC3339 time>#<platform>"
//
// with ExpiresAt as the table's TTL attribute.
type Dynamo struct {
	client    DynamoAPI
	tableName string
	ttl       time.Duration
}

// NewDynamo creates a ledger over tableName. ttl <= 0 keeps entries forever.
func NewDynamo(client DynamoAPI, tableName string, ttl time.Duration) *Dynamo {
	return &Dynamo{client: client, tableName: tableName, ttl: ttl}
}

// NewDynamoFromConfig builds the DynamoDB client from an AWS config.
func NewDynamoFromConfig(cfg aws.Config, tableName string, ttl time.Duration) *Dynamo {
	return NewDynamo(dynamodb.NewFromConfig(cfg), tableName, ttl)
}

func partitionKey(segmentKey string) string { return "SEGMENT#" + segmentKey }

// Record saves one upload entry.
func (d *Dynamo) Record(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	e.PK = partitionKey(e.SegmentKey)
	e.SK = e.RecordedAt.Format(time.RFC3339Nano) + "#" + e.Platform
	if d.ttl > 0 {
		e.ExpiresAt = e.RecordedAt.Add(d.ttl).Unix()
	}

	av, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshaling ledger entry: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("saving ledger entry to DynamoDB: %w", err)
	}
	return nil
}

// List queries a segment's partition newest first.
func (d *Dynamo) List(ctx context.Context, segmentKey string, limit int) ([]Entry, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: partitionKey(segmentKey)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	result, err := d.client.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	var entries []Entry
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &entries); err != nil {
		return nil, fmt.Errorf("unmarshaling ledger entries: %w", err)
	}
	return entries, nil
}
