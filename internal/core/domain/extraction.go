package domain

// ExtractionRequest is what the extraction strategies see of a turn.
// Collected never carries the password.
type ExtractionRequest struct {
	Message     string
	Locale      string
	Missing     []Field
	Collected   map[Field]string
	History     []HistoryEntry
	Digressions int
	Channel     Channel
}

// ExtractionResult is produced per turn and discarded after use.
type ExtractionResult struct {
	Updates    map[Field]string
	ReplyText  string
	Confidence map[Field]float64
	Abandon    bool
	Strategy   string
}
