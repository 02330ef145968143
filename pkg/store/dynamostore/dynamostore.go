// Package dynamostore persists submissions in a DynamoDB table keyed by id.
// Updates are conditional puts on the stored version attribute.
package dynamostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/anggasct/inspectflow"
	"github.com/anggasct/inspectflow/pkg/awsconfig"
)

// API is the subset of the DynamoDB client the store uses
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// SubmissionItem is the DynamoDB item for a submission. The full record is
// kept as JSON in Document; the other attributes are projections used by
// condition and filter expressions.
type SubmissionItem struct {
	ID        string   `dynamodbav:"id"`
	Version   int64    `dynamodbav:"version"`
	Status    string   `dynamodbav:"workflowStatus"`
	CreatorID string   `dynamodbav:"creatorId"`
	CreatedAt string   `dynamodbav:"createdAt"`
	UpdatedAt string   `dynamodbav:"updatedAt"`
	Signers   []string `dynamodbav:"signers"`
	Document  string   `dynamodbav:"document"`
}

// Store implements inspectflow.Store on DynamoDB
type Store struct {
	client    API
	tableName string
}

// New creates a store on an existing client
func New(client API, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// NewFromConfig loads the AWS configuration and creates a store for tableName
func NewFromConfig(ctx context.Context, tableName string, opts awsconfig.Options) (*Store, error) {
	cfg, err := awsconfig.Load(ctx, opts)
	if err != nil {
		return nil, err
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if ep := opts.BaseEndpoint(); ep != nil {
			o.BaseEndpoint = ep
		}
	})
	return New(client, tableName), nil
}

// toItem converts a submission to its DynamoDB item
func toItem(sub *inspectflow.Submission) (*SubmissionItem, error) {
	doc, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode submission %s: %w", sub.ID, err)
	}
	signers := sub.Signers()
	if signers == nil {
		signers = []string{}
	}
	return &SubmissionItem{
		ID:        sub.ID,
		Version:   sub.Version,
		Status:    string(sub.Status),
		CreatorID: sub.CreatorID,
		CreatedAt: sub.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: sub.UpdatedAt.Format(time.RFC3339Nano),
		Signers:   signers,
		Document:  string(doc),
	}, nil
}

// toSubmission converts an item back, trusting the projected version
func toSubmission(item *SubmissionItem) (*inspectflow.Submission, error) {
	var sub inspectflow.Submission
	if err := json.Unmarshal([]byte(item.Document), &sub); err != nil {
		return nil, fmt.Errorf("failed to decode submission %s: %w", item.ID, err)
	}
	if _, err := inspectflow.ParseStatus(string(sub.Status)); err != nil {
		return nil, fmt.Errorf("submission %s: %w", item.ID, err)
	}
	sub.Version = item.Version
	return &sub, nil
}

// Create implements inspectflow.Store
func (s *Store) Create(ctx context.Context, sub *inspectflow.Submission) error {
	if sub.Version == 0 {
		sub.Version = 1
	}
	cond := expression.AttributeNotExists(expression.Name("id"))
	err := s.put(ctx, sub, cond)
	if isConditionFailed(err) {
		return fmt.Errorf("create %s: %w", sub.ID, inspectflow.ErrAlreadyExists)
	}
	return err
}

// Get implements inspectflow.Store
func (s *Store) Get(ctx context.Context, id string) (*inspectflow.Submission, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("get %s: %w", id, inspectflow.ErrNotFound)
	}

	var item SubmissionItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission item: %w", err)
	}
	return toSubmission(&item)
}

// Update implements inspectflow.Store
func (s *Store) Update(ctx context.Context, sub *inspectflow.Submission, expectedVersion int64) error {
	next := sub.Clone()
	next.Version = expectedVersion + 1

	cond := expression.AttributeExists(expression.Name("id")).
		And(expression.Name("version").Equal(expression.Value(expectedVersion)))
	err := s.put(ctx, next, cond)
	if isConditionFailed(err) {
		// the condition fails both for a missing item and a stale version
		if _, getErr := s.Get(ctx, sub.ID); errors.Is(getErr, inspectflow.ErrNotFound) {
			return getErr
		}
		return fmt.Errorf("update %s: expected version %d: %w", sub.ID, expectedVersion, inspectflow.ErrVersionConflict)
	}
	if err != nil {
		return err
	}
	sub.Version = next.Version
	return nil
}

func (s *Store) put(ctx context.Context, sub *inspectflow.Submission, cond expression.ConditionBuilder) error {
	item, err := toItem(sub)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal submission item: %w", err)
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build condition expression: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("failed to put item in DynamoDB: %w", err)
	}
	return err
}

// ListByStatus implements inspectflow.Store
func (s *Store) ListByStatus(ctx context.Context, statuses ...inspectflow.Status) ([]*inspectflow.Submission, error) {
	if len(statuses) == 0 {
		return []*inspectflow.Submission{}, nil
	}
	name := expression.Name("workflowStatus")
	var filter expression.ConditionBuilder
	if len(statuses) == 1 {
		filter = name.Equal(expression.Value(string(statuses[0])))
	} else {
		rest := make([]expression.OperandBuilder, 0, len(statuses)-1)
		for _, st := range statuses[1:] {
			rest = append(rest, expression.Value(string(st)))
		}
		filter = name.In(expression.Value(string(statuses[0])), rest...)
	}
	return s.scan(ctx, filter)
}

// ListBySigner implements inspectflow.Store
func (s *Store) ListBySigner(ctx context.Context, actorID string) ([]*inspectflow.Submission, error) {
	return s.scan(ctx, expression.Contains(expression.Name("signers"), actorID))
}

func (s *Store) scan(ctx context.Context, filter expression.ConditionBuilder) ([]*inspectflow.Submission, error) {
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build filter expression: %w", err)
	}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})

	out := make([]*inspectflow.Submission, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan DynamoDB table: %w", err)
		}
		var items []SubmissionItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal submission items: %w", err)
		}
		for i := range items {
			sub, err := toSubmission(&items[i])
			if err != nil {
				return nil, err
			}
			out = append(out, sub)
		}
	}
	return out, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

var _ inspectflow.Store = (*Store)(nil)
