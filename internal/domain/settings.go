package domain

// TutorSettings is the per-device tutor configuration chosen by the student.
// Each field is constrained to a fixed set of values; unknown values are
// replaced with defaults on save (see repository.ValidateSettings).
type TutorSettings struct {
	Accent string `json:"accent" dynamodbav:"accent"`
	Gender string `json:"gender" dynamodbav:"gender"`
	Speed  string `json:"speed" dynamodbav:"speed"`
	Level  string `json:"level" dynamodbav:"level"`
	Topic  string `json:"topic" dynamodbav:"topic"`
}
