package types

type SearchRequest struct {
	Query               string   `json:"query"`
	DocumentIDs         []string `json:"document_ids,omitempty"`
	MatchCount          *int     `json:"match_count,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
}

type QueryBody struct {
	Question       string   `json:"question"`
	ConversationID string   `json:"conversation_id,omitempty"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
	MatchCount     *int     `json:"match_count,omitempty"`
}
