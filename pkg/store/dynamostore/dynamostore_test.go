package dynamostore

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/inspectflow"
)

// fakeDynamo keeps items in memory and understands the handful of condition
// and filter shapes the store builds.
type fakeDynamo struct {
	mutex sync.Mutex
	items map[string]map[string]types.AttributeValue
	puts  []*dynamodb.PutItemInput
	scans []*dynamodb.ScanInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func stringValue(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[stringValue(in.Key["id"])]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.puts = append(f.puts, in)

	id := stringValue(in.Item["id"])
	existing, exists := f.items[id]
	cond := aws.ToString(in.ConditionExpression)
	switch {
	case strings.HasPrefix(cond, "attribute_not_exists"):
		if exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		}
	case strings.HasPrefix(cond, "(attribute_exists"):
		var expected string
		for _, v := range in.ExpressionAttributeValues {
			expected = stringValue(v)
		}
		if !exists || stringValue(existing["version"]) != expected {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("version")}
		}
	}
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.scans = append(f.scans, in)

	values := make(map[string]bool)
	for _, v := range in.ExpressionAttributeValues {
		values[stringValue(v)] = true
	}
	filter := aws.ToString(in.FilterExpression)

	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		keep := false
		if strings.HasPrefix(filter, "contains") {
			if list, ok := item["signers"].(*types.AttributeValueMemberL); ok {
				for _, v := range list.Value {
					keep = keep || values[stringValue(v)]
				}
			}
		} else {
			keep = values[stringValue(item["workflowStatus"])]
		}
		if keep {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func TestItemConversion(t *testing.T) {
	sub := inspectflow.CreateSubmissionAt(inspectflow.StatusGeneralManagerReview)
	sub.Version = 7

	item, err := toItem(sub)
	require.NoError(t, err)
	assert.Equal(t, "general_manager_review", item.Status)
	assert.ElementsMatch(t, []string{"sup-1", "om-1", "bd-1", "proc-1"}, item.Signers)

	av, err := attributevalue.MarshalMap(item)
	require.NoError(t, err)
	assert.Contains(t, av, "workflowStatus")
	assert.Contains(t, av, "document")

	var back SubmissionItem
	require.NoError(t, attributevalue.UnmarshalMap(av, &back))
	got, err := toSubmission(&back)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Version)
	assert.Equal(t, sub.Status, got.Status)
	assert.Equal(t, sub.Procurement.Actor, got.Procurement.Actor)
}

func TestStore_CreateAndVersionedUpdate(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	s := New(fake, "inspections")

	sub := inspectflow.CreateSubmissionAt(inspectflow.StatusSubmitted)
	require.NoError(t, s.Create(ctx, sub))
	assert.ErrorIs(t, s.Create(ctx, sub), inspectflow.ErrAlreadyExists)
	assert.Equal(t, "inspections", aws.ToString(fake.puts[0].TableName))

	got, err := s.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	next := got.Clone()
	next.Status = inspectflow.StatusOperationsManagerReview
	inspectflow.SignBlock(next, inspectflow.RoleSupervisor)
	require.NoError(t, s.Update(ctx, next, 1))
	assert.Equal(t, int64(2), next.Version)

	assert.ErrorIs(t, s.Update(ctx, got, 1), inspectflow.ErrVersionConflict)

	missing := got.Clone()
	missing.ID = "missing"
	assert.ErrorIs(t, s.Update(ctx, missing, 1), inspectflow.ErrNotFound)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, inspectflow.ErrNotFound)
}

func TestStore_Lists(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	s := New(fake, "inspections")

	for _, st := range []inspectflow.Status{
		inspectflow.StatusOperationsManagerReview,
		inspectflow.StatusBDProcurementReview,
		inspectflow.StatusCompleted,
	} {
		require.NoError(t, s.Create(ctx, inspectflow.CreateSubmissionAt(st)))
	}

	got, err := s.ListByStatus(ctx, inspectflow.StatusBDProcurementReview)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inspectflow.StatusBDProcurementReview, got[0].Status)

	got, err = s.ListByStatus(ctx, inspectflow.StatusOperationsManagerReview, inspectflow.StatusCompleted)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, aws.ToString(fake.scans[len(fake.scans)-1].FilterExpression), "IN")

	got, err = s.ListBySigner(ctx, inspectflow.TestOperationsManager.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListByStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_EngineRoundTrip(t *testing.T) {
	ctx := context.Background()
	engine, err := inspectflow.NewBuilder().Store(New(newFakeDynamo(), "inspections")).Build()
	require.NoError(t, err)

	sub, err := engine.Create(ctx, inspectflow.TestSupervisor, inspectflow.CreateInput{})
	require.NoError(t, err)
	require.NoError(t, inspectflow.DriveTo(ctx, engine, sub.ID, inspectflow.StatusCompleted))

	history, err := engine.ListHistoryFor(ctx, inspectflow.TestProcurement.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{sub.ID}, history)
}
