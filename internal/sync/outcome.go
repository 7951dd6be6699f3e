package sync

// OutcomeKind is the terminal state of one path's transfer.
type OutcomeKind string

const (
	OutcomeCommitted   OutcomeKind = "committed"
	OutcomeSkipped     OutcomeKind = "skipped"
	OutcomeConflicted  OutcomeKind = "conflicted"
	OutcomeFailed      OutcomeKind = "failed"
	OutcomeInterrupted OutcomeKind = "interrupted"
)

// Outcome is what a transfer attempt resolved to. Record is set when the
// revision store should take the source record for Path.
type Outcome struct {
	Kind   OutcomeKind
	Path   string
	Record *FileRecord
	Reason string
	Err    error
}

func committed(path string, rec FileRecord) Outcome {
	return Outcome{Kind: OutcomeCommitted, Path: path, Record: &rec}
}

func skipped(path string, rec *FileRecord, reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Path: path, Record: rec, Reason: reason}
}

func conflicted(path, reason string) Outcome {
	return Outcome{Kind: OutcomeConflicted, Path: path, Reason: reason, Err: &ConflictError{Path: path, Reason: reason}}
}

func failed(path, op string, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Path: path, Reason: op, Err: &TransferError{Path: path, Op: op, Err: err}}
}

func interrupted(path string) Outcome {
	return Outcome{Kind: OutcomeInterrupted, Path: path, Err: ErrInterrupted}
}
