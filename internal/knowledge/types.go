package knowledge

import "encoding/json"

// DefaultPriority is applied to patterns that do not declare one.
const DefaultPriority = 0.5

// Pattern is a unit of stored knowledge matched against queries.
//
// JSON field names are part of the wire contract shared with existing
// callers and must not change.
type Pattern struct {
	ID           string   `json:"id"`
	Keywords     []string `json:"keywords"`
	ErrorCodes   []string `json:"error_codes"`
	Tags         []string `json:"tags"`
	PathPatterns []string `json:"path_patterns"`
	// Priority scales the combined score, in [0,1].
	Priority float64 `json:"priority"`
	Content  string  `json:"content"`
}

// UnmarshalJSON applies DefaultPriority when the priority field is absent.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	type plain Pattern
	aux := plain{Priority: DefaultPriority}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Pattern(aux)
	return nil
}

// Query is a single knowledge lookup.
type Query struct {
	Text       string   `json:"text"`
	ErrorCodes []string `json:"error_codes"`
	Tags       []string `json:"tags"`
	// FilePath is optional; empty means no path signal.
	FilePath string `json:"file_path,omitempty"`
}

// SignalScores holds the four independently computed signals, each in [0,1].
type SignalScores struct {
	KeywordScore   float64 `json:"keyword_score"`
	ErrorCodeScore float64 `json:"error_code_score"`
	TagScore       float64 `json:"tag_score"`
	PathScore      float64 `json:"path_score"`
}

// PatternMatch is a scored pattern returned from MatchPatterns.
type PatternMatch struct {
	PatternID      string       `json:"pattern_id"`
	Score          float64      `json:"score"`
	Signals        SignalScores `json:"signals"`
	KeywordMatches int          `json:"keyword_matches"`
}

// CacheStats reports result cache occupancy.
type CacheStats struct {
	Total int `json:"total"`
	Valid int `json:"valid"`
}

// KeywordCount is a pattern index with its raw keyword occurrence count.
type KeywordCount struct {
	PatternIndex int `json:"pattern_index"`
	Count        int `json:"count"`
}
