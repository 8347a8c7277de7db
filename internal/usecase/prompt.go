package usecase

import (
	"errors"
	"regexp"
	"strings"

	"tutor-backend/internal/domain"
)

// defaultOpener seeds the conversation when the client sends no history.
const defaultOpener = "Hello, let's start our English practice session."

var accentDescriptions = map[string]string{
	"us": "American English",
	"uk": "British English",
	"au": "Australian English",
	"in": "Indian English",
}

var levelDescriptions = map[string]string{
	"beginner":     "Beginner (use simple words and short sentences)",
	"intermediate": "Intermediate (normal conversation level)",
	"advanced":     "Advanced (use complex vocabulary and idioms)",
}

var topicDescriptions = map[string]string{
	"business":  "Business and workplace situations",
	"daily":     "Daily life and casual conversation",
	"travel":    "Travel and tourism",
	"interview": "Job interviews and professional settings",
}

func describe(m map[string]string, key, fallback string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

// renderPersonaPrompt fills the persona template's placeholders from the
// tutor settings.
func renderPersonaPrompt(template string, s domain.TutorSettings) string {
	r := strings.NewReplacer(
		"{accent}", describe(accentDescriptions, s.Accent, "American English"),
		"{level}", describe(levelDescriptions, s.Level, "Intermediate"),
		"{topic}", describe(topicDescriptions, s.Topic, "Business"),
	)
	return r.Replace(template)
}

func translationPrompt(text string) string {
	return strings.Join([]string{
		"Translate the following English text to natural Korean.",
		"Keep the tone friendly and conversational.",
		"Return ONLY the Korean translation, nothing else.",
		"",
		"English: " + text,
		"",
		"Korean translation:",
	}, "\n")
}

func analysisPrompt(conversation string) string {
	return strings.Join([]string{
		"Analyze the following English conversation between a student and an AI tutor.",
		"Provide a detailed analysis in JSON format.",
		"",
		"Conversation:",
		conversation,
		"",
		"Analyze ONLY the student's messages (role: user) and return a JSON object with:",
		"",
		`{`,
		`  "cafp_scores": {`,
		`    "complexity": <0-100, vocabulary diversity and sentence structure complexity>,`,
		`    "accuracy": <0-100, grammatical correctness>,`,
		`    "fluency": <0-100, natural flow and coherence>,`,
		`    "pronunciation": <0-100, estimate based on word choice indicating possible pronunciation difficulties>`,
		`  },`,
		`  "fillers": {`,
		`    "count": <number of filler words used>,`,
		`    "words": [<list of filler words found: um, uh, like, you know, basically, actually, literally, I mean, so, well, etc.>],`,
		`    "percentage": <percentage of words that are fillers>`,
		`  },`,
		`  "grammar_corrections": [`,
		`    {`,
		`      "original": "<original sentence with error>",`,
		`      "corrected": "<corrected sentence>",`,
		`      "explanation": "<brief explanation in Korean>"`,
		`    }`,
		`  ],`,
		`  "vocabulary": {`,
		`    "total_words": <total words spoken by student>,`,
		`    "unique_words": <unique words count>,`,
		`    "advanced_words": [<list of advanced vocabulary used>],`,
		`    "suggested_words": [<3-5 advanced words they could have used>]`,
		`  },`,
		`  "overall_feedback": "<2-3 sentences of encouraging feedback in Korean>",`,
		`  "improvement_tips": [<3 specific tips for improvement in Korean>]`,
		`}`,
		"",
		"Return ONLY valid JSON, no other text.",
	}, "\n")
}

// conversationTranscript flattens the history into "role: content" lines,
// keeping only user and assistant turns.
func conversationTranscript(messages []domain.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// extractJSONObject cuts the first top-level JSON object out of model output
// that may be wrapped in prose.
func extractJSONObject(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", errors.New("usecase: no JSON object in model output")
	}
	return s[start : end+1], nil
}

var fillerWords = []string{
	"um", "uh", "like", "you know", "basically", "actually",
	"literally", "i mean", "so", "well", "kind of", "sort of",
}

var fillerPatterns = func() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(fillerWords))
	for i, w := range fillerWords {
		patterns[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return patterns
}()

// findFillers returns every filler-word occurrence in the lowercased student
// text, one entry per hit.
func findFillers(text string) []string {
	var found []string
	for i, re := range fillerPatterns {
		for range re.FindAllStringIndex(text, -1) {
			found = append(found, fillerWords[i])
		}
	}
	return found
}
