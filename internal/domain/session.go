package domain

// Session lifecycle states. A session moves active -> completed exactly once.
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SessionMeta is the aggregate record for one tutoring call.
type SessionMeta struct {
	SessionID string        `json:"sessionId" dynamodbav:"sessionId"`
	TutorName string        `json:"tutorName" dynamodbav:"tutorName"`
	Settings  TutorSettings `json:"settings" dynamodbav:"settings"`
	StartedAt string        `json:"startedAt" dynamodbav:"startedAt"`
	EndedAt   *string       `json:"endedAt" dynamodbav:"endedAt"`
	Duration  int           `json:"duration" dynamodbav:"duration"`
	TurnCount int           `json:"turnCount" dynamodbav:"turnCount"`
	WordCount int           `json:"wordCount" dynamodbav:"wordCount"`
	Status    string        `json:"status" dynamodbav:"status"`
}

// Message is a single persisted conversation turn. Translation is optional
// and only present on assistant turns that were translated for the student.
type Message struct {
	Role        string  `json:"role" dynamodbav:"role"`
	Content     string  `json:"content" dynamodbav:"content"`
	Translation *string `json:"translation,omitempty" dynamodbav:"translation"`
	TurnNumber  int     `json:"turnNumber" dynamodbav:"turnNumber"`
	Timestamp   string  `json:"timestamp" dynamodbav:"timestamp"`
}
