package transfer

import "encoding/json"

// Lifecycle event types pushed to progress listeners. Byte-level progress
// events come from the session handles themselves.
const (
	EventTransferStarted   = "transfer_started"
	EventTransferCompleted = "transfer_completed"
	EventTransferCanceled  = "transfer_canceled"
)

type lifecyclePayload struct {
	SourceServerID int64  `json:"source_server_id"`
	Target         string `json:"target"`
}

func lifecycleBody(sourceServerID int64, target string) []byte {
	body, _ := json.Marshal(lifecyclePayload{SourceServerID: sourceServerID, Target: target})
	return body
}
