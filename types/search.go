package types

// SearchParams scopes a similarity search. UserID is mandatory.
type SearchParams struct {
	Query               string
	UserID              string
	DocumentIDs         []string
	MatchCount          int
	SimilarityThreshold float64
}

// SearchResult is one ranked chunk returned by a similarity search.
type SearchResult struct {
	ChunkID          string         `json:"chunk_id"`
	DocumentID       string         `json:"document_id"`
	Filename         string         `json:"filename"`
	Content          string         `json:"chunk_content"`
	ChunkIndex       int            `json:"chunk_index"`
	Similarity       float64        `json:"similarity"`
	DocumentMetadata map[string]any `json:"document_metadata"`
	ChunkMetadata    ChunkMetadata  `json:"chunk_metadata"`
}

// VectorQuery is what the retrieval engine hands to a store.
type VectorQuery struct {
	Embedding           []float32
	UserID              string
	DocumentIDs         []string
	MatchCount          int
	SimilarityThreshold float64
}
