package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"tutor-backend/internal/domain"
)

const (
	pkDevicePrefix  = "DEVICE#"
	skSessionPrefix = "SESSION#"
	skMetaSuffix    = "#META"
	skAnalysisSfx   = "#ANALYSIS"
	msgIDPrefix     = "MSG#"

	gsiMetaSK     = "META"
	gsiAnalysisSK = "ANALYSIS"

	typeSessionMeta = "SESSION_META"
	typeMessage     = "MESSAGE"
	typeAnalysis    = "ANALYSIS"

	// Records expire 90 days after creation.
	ttlDuration = 90 * 24 * time.Hour
)

// Sessions owns the session key schema (meta, message and analysis records)
// on top of Store. No other component constructs session keys.
type Sessions struct {
	store *Store
}

// NewSessions creates the session repository.
func NewSessions(store *Store) (*Sessions, error) {
	if store == nil {
		return nil, errors.New("repository: store must not be nil")
	}
	return &Sessions{store: store}, nil
}

func devicePK(deviceID string) string {
	return pkDevicePrefix + deviceID
}

func sessionGSIPK(sessionID string) string {
	return skSessionPrefix + sessionID
}

func metaSK(sessionID string) string {
	return skSessionPrefix + sessionID + skMetaSuffix
}

func analysisSK(sessionID string) string {
	return skSessionPrefix + sessionID + skAnalysisSfx
}

// newMessageID derives the message identifier from the save instant.
// Nanosecond precision keeps rapid consecutive saves from colliding on the
// same sort key.
func newMessageID(ts time.Time) string {
	return msgIDPrefix + ts.UTC().Format(time.RFC3339Nano)
}

func messageSK(sessionID, messageID string) string {
	return skSessionPrefix + sessionID + "#" + messageID
}

func isoTime(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

func ttlValue(now time.Time) int64 {
	return now.Add(ttlDuration).Unix()
}

func validateSessionIDs(deviceID, sessionID string) error {
	if deviceID == "" || sessionID == "" {
		return fmt.Errorf("%w: deviceId and sessionId are required", ErrInvalidKey)
	}
	return nil
}

type sessionMetaRecord struct {
	Key
	GSI1PK   string `dynamodbav:"GSI1PK"`
	GSI1SK   string `dynamodbav:"GSI1SK"`
	Type     string `dynamodbav:"type"`
	DeviceID string `dynamodbav:"deviceId"`
	domain.SessionMeta
	CreatedAt string `dynamodbav:"createdAt"`
	TTL       int64  `dynamodbav:"ttl"`
}

type messageRecord struct {
	Key
	GSI1PK    string `dynamodbav:"GSI1PK"`
	GSI1SK    string `dynamodbav:"GSI1SK"`
	Type      string `dynamodbav:"type"`
	DeviceID  string `dynamodbav:"deviceId"`
	SessionID string `dynamodbav:"sessionId"`
	domain.Message
	CreatedAt string `dynamodbav:"createdAt"`
	TTL       int64  `dynamodbav:"ttl"`
}

type analysisRecord struct {
	Key
	GSI1PK    string `dynamodbav:"GSI1PK"`
	GSI1SK    string `dynamodbav:"GSI1SK"`
	Type      string `dynamodbav:"type"`
	DeviceID  string `dynamodbav:"deviceId"`
	SessionID string `dynamodbav:"sessionId"`
	domain.Analysis
	CreatedAt string `dynamodbav:"createdAt"`
	TTL       int64  `dynamodbav:"ttl"`
}

// StartSession writes a fresh SessionMeta with status=active. An existing
// record at the same key is overwritten, so re-starting a session id silently
// resets it.
func (r *Sessions) StartSession(ctx context.Context, deviceID, sessionID, tutorName string, settings domain.TutorSettings) (domain.SessionMeta, error) {
	if err := validateSessionIDs(deviceID, sessionID); err != nil {
		return domain.SessionMeta{}, err
	}

	now := time.Now()
	meta := domain.SessionMeta{
		SessionID: sessionID,
		TutorName: tutorName,
		Settings:  settings,
		StartedAt: isoTime(now),
		Status:    domain.SessionStatusActive,
	}
	rec := sessionMetaRecord{
		Key:         Key{PK: devicePK(deviceID), SK: metaSK(sessionID)},
		GSI1PK:      sessionGSIPK(sessionID),
		GSI1SK:      gsiMetaSK,
		Type:        typeSessionMeta,
		DeviceID:    deviceID,
		SessionMeta: meta,
		CreatedAt:   meta.StartedAt,
		TTL:         ttlValue(now),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return domain.SessionMeta{}, fmt.Errorf("repository: StartSession marshal: %w", err)
	}
	if err := r.store.Put(ctx, item); err != nil {
		return domain.SessionMeta{}, fmt.Errorf("repository: StartSession: %w", err)
	}
	return meta, nil
}

// EndSession marks the session completed and records the final counters.
// The underlying update is lenient: ending a session that was never started
// materializes a partial meta record rather than failing.
func (r *Sessions) EndSession(ctx context.Context, deviceID, sessionID string, duration, turnCount, wordCount int) (string, error) {
	if err := validateSessionIDs(deviceID, sessionID); err != nil {
		return "", err
	}

	endedAt := isoTime(time.Now())
	err := r.store.Update(ctx,
		Key{PK: devicePK(deviceID), SK: metaSK(sessionID)},
		"SET endedAt = :endedAt, #dur = :duration, turnCount = :turnCount, wordCount = :wordCount, #st = :status",
		map[string]string{"#dur": "duration", "#st": "status"},
		map[string]types.AttributeValue{
			":endedAt":   &types.AttributeValueMemberS{Value: endedAt},
			":duration":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", duration)},
			":turnCount": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", turnCount)},
			":wordCount": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", wordCount)},
			":status":    &types.AttributeValueMemberS{Value: domain.SessionStatusCompleted},
		},
	)
	if err != nil {
		return "", fmt.Errorf("repository: EndSession: %w", err)
	}
	return endedAt, nil
}

// SaveMessage persists one conversation turn and returns its message id.
func (r *Sessions) SaveMessage(ctx context.Context, deviceID, sessionID string, msg domain.Message) (string, error) {
	if err := validateSessionIDs(deviceID, sessionID); err != nil {
		return "", err
	}

	now := time.Now()
	id := newMessageID(now)
	msg.Timestamp = isoTime(now)
	rec := messageRecord{
		Key:       Key{PK: devicePK(deviceID), SK: messageSK(sessionID, id)},
		GSI1PK:    sessionGSIPK(sessionID),
		GSI1SK:    id,
		Type:      typeMessage,
		DeviceID:  deviceID,
		SessionID: sessionID,
		Message:   msg,
		CreatedAt: msg.Timestamp,
		TTL:       ttlValue(now),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return "", fmt.Errorf("repository: SaveMessage marshal: %w", err)
	}
	if err := r.store.Put(ctx, item); err != nil {
		return "", fmt.Errorf("repository: SaveMessage: %w", err)
	}
	return id, nil
}

// SaveAnalysis writes the analysis record for a session, overwriting any
// previous one.
func (r *Sessions) SaveAnalysis(ctx context.Context, deviceID, sessionID string, analysis domain.Analysis) error {
	if err := validateSessionIDs(deviceID, sessionID); err != nil {
		return err
	}

	now := time.Now()
	rec := analysisRecord{
		Key:       Key{PK: devicePK(deviceID), SK: analysisSK(sessionID)},
		GSI1PK:    sessionGSIPK(sessionID),
		GSI1SK:    gsiAnalysisSK,
		Type:      typeAnalysis,
		DeviceID:  deviceID,
		SessionID: sessionID,
		Analysis:  analysis,
		CreatedAt: isoTime(now),
		TTL:       ttlValue(now),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("repository: SaveAnalysis marshal: %w", err)
	}
	if err := r.store.Put(ctx, item); err != nil {
		return fmt.Errorf("repository: SaveAnalysis: %w", err)
	}
	return nil
}

// ListSessions returns up to limit session metas for a device, newest first,
// with an opaque continuation token. Pages from the store are consumed until
// the requested count is reached, so interleaved message records never
// shorten the returned page.
func (r *Sessions) ListSessions(ctx context.Context, deviceID string, limit int, startToken string) ([]domain.SessionMeta, string, bool, error) {
	if deviceID == "" {
		return nil, "", false, fmt.Errorf("%w: deviceId is required", ErrInvalidKey)
	}
	if limit <= 0 {
		limit = 10
	}

	cursor, err := decodePageToken(startToken)
	if err != nil {
		return nil, "", false, err
	}

	sessions := make([]domain.SessionMeta, 0, limit)
	for len(sessions) < limit {
		items, next, err := r.store.QueryPrefix(ctx, PrefixQuery{
			PK:         devicePK(deviceID),
			SKPrefix:   skSessionPrefix,
			TypeFilter: typeSessionMeta,
			Limit:      int32(limit - len(sessions)),
			StartKey:   cursor,
			Descending: true,
		})
		if err != nil {
			return nil, "", false, fmt.Errorf("repository: ListSessions: %w", err)
		}
		for _, item := range items {
			var rec sessionMetaRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, "", false, fmt.Errorf("repository: ListSessions unmarshal: %w", err)
			}
			sessions = append(sessions, rec.SessionMeta)
		}
		cursor = next
		if cursor == nil {
			break
		}
	}

	if cursor == nil {
		return sessions, "", false, nil
	}
	token, err := encodePageToken(cursor)
	if err != nil {
		return nil, "", false, err
	}
	return sessions, token, true, nil
}

// GetSessionDetail loads every record of a session through the secondary
// index and partitions the result by record type. Messages are returned in
// turn order; ties keep their index order.
func (r *Sessions) GetSessionDetail(ctx context.Context, deviceID, sessionID string) (*domain.SessionMeta, []domain.Message, *domain.Analysis, error) {
	if err := validateSessionIDs(deviceID, sessionID); err != nil {
		return nil, nil, nil, err
	}

	items, err := r.store.QueryIndex(ctx, sessionGSIPK(sessionID))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("repository: GetSessionDetail: %w", err)
	}

	var meta *domain.SessionMeta
	var messages []domain.Message
	var analysis *domain.Analysis
	for _, item := range items {
		switch strAttrOr(item, "type") {
		case typeSessionMeta:
			var rec sessionMetaRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, nil, nil, fmt.Errorf("repository: GetSessionDetail meta unmarshal: %w", err)
			}
			meta = &rec.SessionMeta
		case typeMessage:
			var rec messageRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, nil, nil, fmt.Errorf("repository: GetSessionDetail message unmarshal: %w", err)
			}
			messages = append(messages, rec.Message)
		case typeAnalysis:
			var rec analysisRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, nil, nil, fmt.Errorf("repository: GetSessionDetail analysis unmarshal: %w", err)
			}
			analysis = &rec.Analysis
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].TurnNumber < messages[j].TurnNumber
	})
	return meta, messages, analysis, nil
}

// DeleteSession removes every record of a session (meta, messages, analysis)
// and returns the number of keys deleted. Deleting an unknown session is not
// an error; it reports zero deletions.
func (r *Sessions) DeleteSession(ctx context.Context, deviceID, sessionID string) (int, error) {
	if err := validateSessionIDs(deviceID, sessionID); err != nil {
		return 0, err
	}

	var keys []Key
	var cursor *Key
	for {
		items, next, err := r.store.QueryPrefix(ctx, PrefixQuery{
			PK:       devicePK(deviceID),
			SKPrefix: skSessionPrefix + sessionID,
			StartKey: cursor,
		})
		if err != nil {
			return 0, fmt.Errorf("repository: DeleteSession: %w", err)
		}
		for _, item := range items {
			keys = append(keys, itemKey(item))
		}
		if next == nil {
			break
		}
		cursor = next
	}

	if len(keys) == 0 {
		return 0, nil
	}
	if err := r.store.BatchDelete(ctx, keys); err != nil {
		return 0, fmt.Errorf("repository: DeleteSession: %w", err)
	}
	return len(keys), nil
}

func encodePageToken(k *Key) (string, error) {
	raw, err := json.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("repository: encode page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodePageToken(token string) (*Key, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed page token", ErrInvalidKey)
	}
	var k Key
	if err := json.Unmarshal(raw, &k); err != nil || !k.valid() {
		return nil, fmt.Errorf("%w: malformed page token", ErrInvalidKey)
	}
	return &k, nil
}
