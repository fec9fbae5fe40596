package ir

// Changeset statuses recorded in the journal.
const (
	StatusClosed    = "closed"
	StatusDiscarded = "discarded"
	StatusAborted   = "aborted"
)

// ChangesetRecord is the journal entry for one drained Changeset.
type ChangesetRecord struct {
	Token  string    `json:"token"`
	Seq    int64     `json:"seq"`
	Root   string    `json:"root"`
	Op     Operation `json:"op"`
	Status string    `json:"status"`
	Steps  int       `json:"steps"`
	Paths  []string  `json:"paths"`
}

// FailureRecord is the journal entry for one failed generator invocation.
type FailureRecord struct {
	Token     string `json:"token"`
	Generator string `json:"generator"`
	Path      string `json:"path"`
	Message   string `json:"message"`
}
