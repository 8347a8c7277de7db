package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	getItem        func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	putItem        func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	updateItem     func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	query          func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	batchWriteItem func(*dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error)
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return f.getItem(in)
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return f.putItem(in)
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return f.updateItem(in)
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return f.query(in)
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return f.batchWriteItem(in)
}

func strAttr(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func newTestStore(t *testing.T, api dynamodbAPI) *Store {
	t.Helper()
	s, err := NewStore(api, "tutor-state", "GSI1")
	require.NoError(t, err)
	return s
}

func TestNewStore_Validates(t *testing.T) {
	_, err := NewStore(nil, "table", "GSI1")
	require.Error(t, err)

	_, err = NewStore(&fakeDynamo{}, "  ", "GSI1")
	require.Error(t, err)

	_, err = NewStore(&fakeDynamo{}, "table", "")
	require.Error(t, err)
}

func TestPut_RejectsItemWithoutKey(t *testing.T) {
	s := newTestStore(t, &fakeDynamo{})

	err := s.Put(context.Background(), map[string]types.AttributeValue{
		"PK": strAttr("DEVICE#dev-1"),
	})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestGet_AbsentItemReturnsNil(t *testing.T) {
	s := newTestStore(t, &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		},
	})

	item, err := s.Get(context.Background(), Key{PK: "DEVICE#dev-1", SK: "SETTINGS"})
	require.NoError(t, err)
	require.Nil(t, item)
}

func TestQueryPrefix_BuildsRequest(t *testing.T) {
	var captured *dynamodb.QueryInput
	s := newTestStore(t, &fakeDynamo{
		query: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			captured = in
			return &dynamodb.QueryOutput{}, nil
		},
	})

	_, cursor, err := s.QueryPrefix(context.Background(), PrefixQuery{
		PK:         "DEVICE#dev-1",
		SKPrefix:   "SESSION#",
		TypeFilter: "SESSION_META",
		Limit:      5,
		Descending: true,
	})
	require.NoError(t, err)
	require.Nil(t, cursor)

	require.Equal(t, "tutor-state", *captured.TableName)
	require.Equal(t, "PK = :pk AND begins_with(SK, :prefix)", *captured.KeyConditionExpression)
	require.Equal(t, "#type = :type", *captured.FilterExpression)
	require.False(t, *captured.ScanIndexForward)
	require.EqualValues(t, 5, *captured.Limit)
}

func TestQueryPrefix_ReturnsResumeKey(t *testing.T) {
	s := newTestStore(t, &fakeDynamo{
		query: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			return &dynamodb.QueryOutput{
				LastEvaluatedKey: map[string]types.AttributeValue{
					"PK": strAttr("DEVICE#dev-1"),
					"SK": strAttr("SESSION#sess-3#META"),
				},
			}, nil
		},
	})

	_, cursor, err := s.QueryPrefix(context.Background(), PrefixQuery{PK: "DEVICE#dev-1", SKPrefix: "SESSION#"})
	require.NoError(t, err)
	require.NotNil(t, cursor)
	require.Equal(t, Key{PK: "DEVICE#dev-1", SK: "SESSION#sess-3#META"}, *cursor)
}

func TestQueryIndex_FollowsPagination(t *testing.T) {
	calls := 0
	s := newTestStore(t, &fakeDynamo{
		query: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			calls++
			require.Equal(t, "GSI1", *in.IndexName)
			if calls == 1 {
				return &dynamodb.QueryOutput{
					Items: []map[string]types.AttributeValue{{"GSI1SK": strAttr("META")}},
					LastEvaluatedKey: map[string]types.AttributeValue{
						"PK": strAttr("DEVICE#dev-1"),
						"SK": strAttr("SESSION#sess-1#META"),
					},
				}, nil
			}
			require.NotNil(t, in.ExclusiveStartKey)
			return &dynamodb.QueryOutput{
				Items: []map[string]types.AttributeValue{{"GSI1SK": strAttr("ANALYSIS")}},
			}, nil
		},
	})

	items, err := s.QueryIndex(context.Background(), "SESSION#sess-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 2, calls)
}

func TestBatchDelete_Chunks(t *testing.T) {
	var sizes []int
	s := newTestStore(t, &fakeDynamo{
		batchWriteItem: func(in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
			sizes = append(sizes, len(in.RequestItems["tutor-state"]))
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	})

	keys := make([]Key, 60)
	for i := range keys {
		keys[i] = Key{PK: "DEVICE#dev-1", SK: "SESSION#sess-1#MSG#" + string(rune('a'+i))}
	}
	require.NoError(t, s.BatchDelete(context.Background(), keys))
	require.Equal(t, []int{25, 25, 10}, sizes)
}

func TestBatchDelete_ResubmitsUnprocessed(t *testing.T) {
	calls := 0
	s := newTestStore(t, &fakeDynamo{
		batchWriteItem: func(in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
			calls++
			if calls == 1 {
				// Push the last entry back as unprocessed once.
				reqs := in.RequestItems["tutor-state"]
				return &dynamodb.BatchWriteItemOutput{
					UnprocessedItems: map[string][]types.WriteRequest{"tutor-state": reqs[len(reqs)-1:]},
				}, nil
			}
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	})

	keys := []Key{
		{PK: "DEVICE#dev-1", SK: "SESSION#sess-1#META"},
		{PK: "DEVICE#dev-1", SK: "SESSION#sess-1#ANALYSIS"},
	}
	require.NoError(t, s.BatchDelete(context.Background(), keys))
	require.Equal(t, 2, calls)
}

func TestBatchDelete_GivesUpAfterBoundedRounds(t *testing.T) {
	calls := 0
	s := newTestStore(t, &fakeDynamo{
		batchWriteItem: func(in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
			calls++
			return &dynamodb.BatchWriteItemOutput{
				UnprocessedItems: map[string][]types.WriteRequest{"tutor-state": in.RequestItems["tutor-state"]},
			}, nil
		},
	})

	err := s.BatchDelete(context.Background(), []Key{{PK: "DEVICE#dev-1", SK: "SETTINGS"}})
	require.Error(t, err)
	require.Equal(t, maxBatchRounds, calls)
}

func TestBatchDelete_RejectsInvalidKey(t *testing.T) {
	s := newTestStore(t, &fakeDynamo{})

	err := s.BatchDelete(context.Background(), []Key{{PK: "DEVICE#dev-1", SK: ""}})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestUpdate_PassesExpression(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	s := newTestStore(t, &fakeDynamo{
		updateItem: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			captured = in
			return &dynamodb.UpdateItemOutput{}, nil
		},
	})

	err := s.Update(context.Background(),
		Key{PK: "DEVICE#dev-1", SK: "SESSION#sess-1#META"},
		"SET #st = :status",
		map[string]string{"#st": "status"},
		map[string]types.AttributeValue{":status": strAttr("completed")},
	)
	require.NoError(t, err)
	require.Equal(t, "SET #st = :status", *captured.UpdateExpression)
	require.Equal(t, "status", captured.ExpressionAttributeNames["#st"])
}

func TestStore_WrapsBackendErrors(t *testing.T) {
	boom := errors.New("boom")
	s := newTestStore(t, &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return nil, boom
		},
	})

	_, err := s.Get(context.Background(), Key{PK: "DEVICE#dev-1", SK: "SETTINGS"})
	require.ErrorIs(t, err, boom)
}
