package domain

// Document is a loaded source file after normalization.
type Document struct {
	Source  string
	Content string
}

// Chunk is a word window of a Document. Ordinal is its position in the
// snapshot and must match the position of its vector.
type Chunk struct {
	Text    string `json:"content"`
	Source  string `json:"source,omitempty"`
	Ordinal int    `json:"ordinal"`
}

// Passage is a retrieved chunk with its L2 distance to the query.
type Passage struct {
	Chunk
	Distance float32 `json:"distance"`
}

type AnswerMode string

const (
	// AnswerModeGenerated means the generation capability produced the answer.
	AnswerModeGenerated AnswerMode = "generated"
	// AnswerModeFixed means a pre-vetted statement from the topic table was used.
	AnswerModeFixed AnswerMode = "fixed"
	// AnswerModeRawContext means generation failed and truncated contexts were returned.
	AnswerModeRawContext AnswerMode = "raw_context"
	// AnswerModeNone means retrieval found nothing.
	AnswerModeNone AnswerMode = "none"
)

// IsFallback reports whether the answer came from the local fallback path.
func (m AnswerMode) IsFallback() bool {
	return m == AnswerModeFixed || m == AnswerModeRawContext
}

const NoRelevantInformation = "No relevant information found."

type AnswerRecord struct {
	Answer   string     `json:"answer"`
	Contexts []string   `json:"contexts"`
	Mode     AnswerMode `json:"mode"`
}

// NoAnswer is the record returned when retrieval yields no contexts.
func NoAnswer() *AnswerRecord {
	return &AnswerRecord{
		Answer:   NoRelevantInformation,
		Contexts: []string{},
		Mode:     AnswerModeNone,
	}
}
