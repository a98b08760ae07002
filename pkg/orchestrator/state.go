package orchestrator

// State tracks where one issuance attempt is in its lifecycle. Failed is
// terminal and reachable from any non-terminal state.
type State string

const (
	StateCreated     State = "created"
	StateOrderOpen   State = "order-open"
	StateAuthorizing State = "authorizing"
	StateValidating  State = "validating"
	StateFinalizing  State = "finalizing"
	StateDownloading State = "downloading"
	StateSaved       State = "saved"
	StateFailed      State = "failed"
)
