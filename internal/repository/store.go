package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// DynamoDB caps BatchWriteItem at 25 requests per call.
	batchChunkSize = 25
	// Rounds of resubmitting unprocessed batch entries before giving up.
	maxBatchRounds = 5
)

// ErrInvalidKey is returned when a key component is empty or otherwise
// unusable before any call to the backend is made.
var ErrInvalidKey = errors.New("repository: invalid key")

// dynamodbAPI is the minimal DynamoDB interface required by Store.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Key is the composite primary key of one record.
type Key struct {
	PK string `json:"PK"`
	SK string `json:"SK"`
}

// PrefixQuery describes a sort-key prefix query within one partition.
type PrefixQuery struct {
	PK       string
	SKPrefix string
	// TypeFilter, when non-empty, restricts results to items whose "type"
	// attribute equals it. Applied server-side after the key condition, so a
	// page may contain fewer items than Limit.
	TypeFilter string
	Limit      int32
	StartKey   *Key
	Descending bool
}

// Store wraps a single DynamoDB table with a secondary index. It knows
// nothing about key semantics beyond primary/index key storage and range
// queries; key construction belongs to the repositories built on top.
type Store struct {
	api       dynamodbAPI
	tableName string
	indexName string
}

// NewStore creates a Store over the given table and secondary index.
func NewStore(api dynamodbAPI, tableName, indexName string) (*Store, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if strings.TrimSpace(indexName) == "" {
		return nil, errors.New("repository: index name must not be empty")
	}
	return &Store{api: api, tableName: tableName, indexName: indexName}, nil
}

func (k Key) valid() bool {
	return k.PK != "" && k.SK != ""
}

func keyAttrs(k Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: k.PK},
		"SK": &types.AttributeValueMemberS{Value: k.SK},
	}
}

// Put inserts or fully overwrites the item at its key. The item must carry
// PK and SK string attributes.
func (s *Store) Put(ctx context.Context, item map[string]types.AttributeValue) error {
	if !itemKey(item).valid() {
		return fmt.Errorf("%w: item missing PK or SK", ErrInvalidKey)
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

// Get returns the item at the given key, or nil if absent.
func (s *Store) Get(ctx context.Context, k Key) (map[string]types.AttributeValue, error) {
	if !k.valid() {
		return nil, fmt.Errorf("%w: empty key component", ErrInvalidKey)
	}
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       keyAttrs(k),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

// Update applies an update expression to the item at the given key. The item
// is created if absent, with only the updated attributes set.
func (s *Store) Update(ctx context.Context, k Key, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	if !k.valid() {
		return fmt.Errorf("%w: empty key component", ErrInvalidKey)
	}
	in := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       keyAttrs(k),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
	}
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}
	if _, err := s.api.UpdateItem(ctx, in); err != nil {
		return fmt.Errorf("repository: Update: %w", err)
	}
	return nil
}

// QueryPrefix returns one page of items under q.PK whose sort key starts with
// q.SKPrefix, together with the key to resume from, or nil when the partition
// is exhausted.
func (s *Store) QueryPrefix(ctx context.Context, q PrefixQuery) ([]map[string]types.AttributeValue, *Key, error) {
	if q.PK == "" || q.SKPrefix == "" {
		return nil, nil, fmt.Errorf("%w: empty query key component", ErrInvalidKey)
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: q.PK},
			":prefix": &types.AttributeValueMemberS{Value: q.SKPrefix},
		},
		ScanIndexForward: aws.Bool(!q.Descending),
	}
	if q.TypeFilter != "" {
		in.FilterExpression = aws.String("#type = :type")
		in.ExpressionAttributeNames = map[string]string{"#type": "type"}
		in.ExpressionAttributeValues[":type"] = &types.AttributeValueMemberS{Value: q.TypeFilter}
	}
	if q.Limit > 0 {
		in.Limit = aws.Int32(q.Limit)
	}
	if q.StartKey != nil {
		in.ExclusiveStartKey = keyAttrs(*q.StartKey)
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("repository: QueryPrefix: %w", err)
	}
	return out.Items, lastEvaluated(out.LastEvaluatedKey), nil
}

// QueryIndex returns all items sharing the given index partition key, ordered
// ascending by index sort key. Follows pagination to exhaustion.
func (s *Store) QueryIndex(ctx context.Context, indexPK string) ([]map[string]types.AttributeValue, error) {
	if indexPK == "" {
		return nil, fmt.Errorf("%w: empty index partition key", ErrInvalidKey)
	}

	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		in := &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(s.indexName),
			KeyConditionExpression: aws.String("GSI1PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: indexPK},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
		}
		out, err := s.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: QueryIndex: %w", err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// BatchDelete deletes all given keys in chunks, resubmitting unprocessed
// entries until none remain. Returns an error once a chunk still has
// unprocessed entries after maxBatchRounds rounds, so partial failures are
// never silently dropped.
func (s *Store) BatchDelete(ctx context.Context, keys []Key) error {
	for _, k := range keys {
		if !k.valid() {
			return fmt.Errorf("%w: empty key component in batch", ErrInvalidKey)
		}
	}

	for start := 0; start < len(keys); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := s.deleteChunk(ctx, keys[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteChunk(ctx context.Context, keys []Key) error {
	pending := make([]types.WriteRequest, 0, len(keys))
	for _, k := range keys {
		pending = append(pending, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: keyAttrs(k)},
		})
	}

	for round := 0; len(pending) > 0; round++ {
		if round >= maxBatchRounds {
			return fmt.Errorf("repository: BatchDelete: %d entries still unprocessed after %d rounds", len(pending), maxBatchRounds)
		}
		out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.tableName: pending},
		})
		if err != nil {
			return fmt.Errorf("repository: BatchDelete: %w", err)
		}
		pending = out.UnprocessedItems[s.tableName]
	}
	return nil
}

func itemKey(item map[string]types.AttributeValue) Key {
	return Key{PK: strAttrOr(item, "PK"), SK: strAttrOr(item, "SK")}
}

func strAttrOr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func lastEvaluated(attrs map[string]types.AttributeValue) *Key {
	if len(attrs) == 0 {
		return nil
	}
	k := itemKey(attrs)
	return &k
}
