package domain

// Document is a raw text document read from the corpus. It only exists for
// the duration of an index build; chunks carry everything the online path needs.
type Document struct {
	Source  string // source identifier, e.g. the file name
	Content string
}

// Chunk is a contiguous span of a document's text, the unit of retrieval.
// Text is always the literal substring Content[Start:Start+len(Text)] of its
// document, so chunks from one document reassemble in ordinal order.
type Chunk struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Ordinal int    `json:"ordinal"`
	Start   int    `json:"start"`
	Text    string `json:"text"`
}

// ScoredChunk is a retrieval hit: a chunk plus its similarity score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
