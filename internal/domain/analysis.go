package domain

// CAFPScores holds the four scored dimensions of spoken-language assessment:
// complexity, accuracy, fluency and pronunciation, each 0-100.
type CAFPScores struct {
	Complexity    int `json:"complexity" dynamodbav:"complexity"`
	Accuracy      int `json:"accuracy" dynamodbav:"accuracy"`
	Fluency       int `json:"fluency" dynamodbav:"fluency"`
	Pronunciation int `json:"pronunciation" dynamodbav:"pronunciation"`
}

// FillerStats counts hesitation markers ("um", "like", ...) in the student's
// speech.
type FillerStats struct {
	Count      int      `json:"count" dynamodbav:"count"`
	Words      []string `json:"words" dynamodbav:"words"`
	Percentage float64  `json:"percentage" dynamodbav:"percentage"`
}

// GrammarCorrection is one corrected student sentence with an explanation in
// Korean.
type GrammarCorrection struct {
	Original    string `json:"original" dynamodbav:"original"`
	Corrected   string `json:"corrected" dynamodbav:"corrected"`
	Explanation string `json:"explanation" dynamodbav:"explanation"`
}

// VocabularyStats summarizes the vocabulary used by the student.
type VocabularyStats struct {
	TotalWords     int      `json:"total_words" dynamodbav:"totalWords"`
	UniqueWords    int      `json:"unique_words" dynamodbav:"uniqueWords"`
	AdvancedWords  []string `json:"advanced_words" dynamodbav:"advancedWords"`
	SuggestedWords []string `json:"suggested_words" dynamodbav:"suggestedWords"`
}

// Analysis is the per-session conversation assessment. At most one exists per
// session; re-analysis overwrites the previous record.
type Analysis struct {
	CAFPScores         CAFPScores          `json:"cafp_scores" dynamodbav:"cafpScores"`
	Fillers            FillerStats         `json:"fillers" dynamodbav:"fillers"`
	GrammarCorrections []GrammarCorrection `json:"grammar_corrections" dynamodbav:"grammarCorrections"`
	Vocabulary         VocabularyStats     `json:"vocabulary" dynamodbav:"vocabulary"`
	OverallFeedback    string              `json:"overall_feedback" dynamodbav:"overallFeedback"`
	ImprovementTips    []string            `json:"improvement_tips" dynamodbav:"improvementTips"`
}
