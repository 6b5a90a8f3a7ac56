package server

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"
)

// DynamoDBStore implements the Store interface using AWS DynamoDB. Records
// live in a single table keyed by id.
type DynamoDBStore struct {
	client *dynamodb.DynamoDB
	table  string
}

// dynamoRecordItem is the DynamoDB representation of a Record. Timestamps
// are stored as strings so they survive round trips unchanged.
type dynamoRecordItem struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Email     string                 `json:"email"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
	CreatedAt string                 `json:"createdAt"`
	UpdatedAt string                 `json:"updatedAt"`
}

// NewDynamoDBStore creates a DynamoDB-backed store on an existing session.
func NewDynamoDBStore(sess *session.Session, table string) (*DynamoDBStore, error) {
	if table == "" {
		return nil, fmt.Errorf("DynamoDB table name is required")
	}
	return &DynamoDBStore{
		client: dynamodb.New(sess),
		table:  table,
	}, nil
}

func itemFromRecord(record *Record) *dynamoRecordItem {
	return &dynamoRecordItem{
		ID:        record.ID,
		Name:      record.Name,
		Email:     record.Email,
		Extra:     record.Extra,
		CreatedAt: record.CreatedAt.UTC().Format(recordTimeFormat),
		UpdatedAt: record.UpdatedAt.UTC().Format(recordTimeFormat),
	}
}

func recordFromItem(item *dynamoRecordItem) *Record {
	rec := &Record{
		ID:    item.ID,
		Name:  item.Name,
		Email: item.Email,
		Extra: item.Extra,
	}
	if t, err := time.Parse(recordTimeFormat, item.CreatedAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(recordTimeFormat, item.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec
}

// Put stores or overwrites a record under its id.
func (s *DynamoDBStore) Put(ctx context.Context, record *Record) error {
	if record == nil || record.ID == "" {
		return &ValidationError{Message: "record id is required"}
	}

	av, err := dynamodbattribute.MarshalMap(itemFromRecord(record))
	if err != nil {
		return fmt.Errorf("failed to marshal record item: %v", err)
	}

	_, err = s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put record item: %v", err)
	}
	return nil
}

// Get retrieves a record by id, returning (nil, nil) when it is absent.
func (s *DynamoDBStore) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, &ValidationError{Message: "record id is required"}
	}

	result, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(id),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %v", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item dynamoRecordItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record item: %v", err)
	}
	return recordFromItem(&item), nil
}

// Scan returns up to limit records plus the table's count totals.
func (s *DynamoDBStore) Scan(ctx context.Context, limit int) (*ScanResult, error) {
	if limit <= 0 {
		limit = defaultScanLimit
	}

	result, err := s.client.ScanWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
		Limit:     aws.Int64(int64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %v", err)
	}

	items := make([]*Record, 0, len(result.Items))
	for _, raw := range result.Items {
		var item dynamoRecordItem
		if err := dynamodbattribute.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record item: %v", err)
		}
		items = append(items, recordFromItem(&item))
	}

	return &ScanResult{
		Items:        items,
		Count:        int(aws.Int64Value(result.Count)),
		ScannedCount: int(aws.Int64Value(result.ScannedCount)),
	}, nil
}

// Update merges the mutation into the stored item and refreshes updatedAt.
// Like the table's document API, updating a missing id creates it.
func (s *DynamoDBStore) Update(ctx context.Context, id string, mutation map[string]interface{}) (*Record, error) {
	if id == "" {
		return nil, &ValidationError{Message: "record id is required"}
	}

	now := time.Now().UTC().Format(recordTimeFormat)
	update := expression.Set(expression.Name("updatedAt"), expression.Value(now))
	for k, v := range mutation {
		switch k {
		case "id", "createdAt", "updatedAt":
			continue
		case "name", "email":
			update = update.Set(expression.Name(k), expression.Value(v))
		default:
			update = update.Set(expression.Name("extra."+k), expression.Value(v))
		}
	}

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %v", err)
	}

	result, err := s.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(id),
			},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              aws.String(dynamodb.ReturnValueAllNew),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %v", err)
	}

	var item dynamoRecordItem
	if err := dynamodbattribute.UnmarshalMap(result.Attributes, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal updated record: %v", err)
	}
	item.ID = id
	return recordFromItem(&item), nil
}

// Delete removes the record. Deleting a missing id succeeds.
func (s *DynamoDBStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return &ValidationError{Message: "record id is required"}
	}

	_, err := s.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(id),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %v", err)
	}
	return nil
}
