package playback

// SessionPhase is a state of the session reporter
type SessionPhase string

const (
	PhaseIdle        SessionPhase = "idle"
	PhaseStarted     SessionPhase = "started"
	PhaseProgressing SessionPhase = "progressing"
	PhasePaused      SessionPhase = "paused"
	PhaseStopped     SessionPhase = "stopped"
)

// SessionState is the ephemeral state of one playback session. It is
// never persisted.
type SessionState struct {
	SessionID     string       `json:"session_id"`
	ItemID        string       `json:"item_id"`
	MediaSourceID string       `json:"media_source_id,omitempty"`
	PositionTicks int64        `json:"position_ticks"`
	Paused        bool         `json:"paused"`
	Stopped       bool         `json:"stopped"`
	Seeking       bool         `json:"seeking"`
	Phase         SessionPhase `json:"phase"`
}
