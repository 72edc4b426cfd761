package model

import "encoding/json"

// SourceMatch is one retrieved document fragment with its ranking scalar.
// The scalar is opaque: it comes from the retrieval collaborator and is
// neither normalized nor re-sorted downstream.
type SourceMatch struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// sourceMatchWire mirrors SourceMatch but accepts both naming
// conventions for the ranking scalar. Some retrieval backends emit
// "similarity", others "score"; the ambiguity is resolved here, once,
// at the decode boundary.
type sourceMatchWire struct {
	ID         string   `json:"id"`
	DocumentID string   `json:"document_id"`
	Content    string   `json:"content"`
	Similarity *float64 `json:"similarity"`
	Score      *float64 `json:"score"`
}

// UnmarshalJSON decodes a SourceMatch, preferring "similarity" over
// "score" when both are present.
func (m *SourceMatch) UnmarshalJSON(data []byte) error {
	var w sourceMatchWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.ID = w.ID
	m.DocumentID = w.DocumentID
	m.Content = w.Content
	switch {
	case w.Similarity != nil:
		m.Similarity = *w.Similarity
	case w.Score != nil:
		m.Similarity = *w.Score
	default:
		m.Similarity = 0
	}
	return nil
}
