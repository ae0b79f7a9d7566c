package broadcast

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/registry"
)

// EventType names a server-push event.
type EventType string

// --- Lobby events ---
const (
	EventMembershipChanged       EventType = "membership_changed"
	EventSettingsChanged         EventType = "settings_changed"
	EventChatAppended            EventType = "chat_appended"
	EventHostTransferred         EventType = "host_transferred"
	EventJoinRequested           EventType = "join_requested" // unicast to host
	EventKicked                  EventType = "kicked"         // unicast
	EventInvited                 EventType = "invited"        // unicast
	EventLobbyClosed             EventType = "lobby_closed"
	EventSyncState               EventType = "sync_state" // unicast on (re)connect
	EventForceDisconnected       EventType = registry.EventForceDisconnected
	EventActionResult            EventType = "action_result" // reply to a socket action
	EventRoundStarted            EventType = "round_started"
	EventSubmissionStatusChanged EventType = "submission_status_changed"
	EventRoundRevealed           EventType = "round_revealed"
	EventScoresUpdated           EventType = "scores_updated"
	EventRoundAdvanced           EventType = "round_advanced"
	EventMatchFinished           EventType = "match_finished"
	EventPowerUpUsed             EventType = "powerup_used"
	EventHint                    EventType = "hint" // unicast
)

// Envelope is the frame every client receives.
type Envelope struct {
	Type      EventType   `json:"type"`
	LobbyID   uuid.UUID   `json:"lobby_id,omitempty"`
	Seq       uint64      `json:"seq,omitempty"` // per-lobby, increases with commit order
	Timestamp int64       `json:"ts"`
	Payload   interface{} `json:"payload,omitempty"`
}
