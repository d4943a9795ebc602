package domain

// Stream is the metadata row of a live stream, owned by the stream store.
// Chat only reads it to verify existence and to decorate join events.
type Stream struct {
	ID    string
	Title string
}

// Verdict is the outcome of the moderation pipeline for one message.
// It is transient and never persisted.
type Verdict struct {
	Appropriate bool
	Reason      string
}

// Snapshot is a point-in-time view of a room's presence state.
// Unknown rooms yield a zeroed snapshot, never an error.
type Snapshot struct {
	ActiveUserCount int
	TotalMessages   int
	Members         []Member
}
