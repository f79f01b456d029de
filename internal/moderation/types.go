package moderation

// CheckRequest is published to moderation.check when a message needs async
// content review.
type CheckRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Ts        int64  `json:"ts"`
}

// CheckResult is published back to moderation.result.<user_id> with the
// review outcome.
type CheckResult struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Blocked   bool   `json:"blocked"`
	Reason    string `json:"reason"`
	Term      string `json:"term"`
}

// ReportNotice is published to moderation.check when a user files an abuse
// report, so the worker can apply escalating bans.
type ReportNotice struct {
	ReporterID string `json:"reporter_id"`
	ReportedID string `json:"reported_id"`
	SessionID  string `json:"session_id"`
	Reason     string `json:"reason"`
	Ts         int64  `json:"ts"`
}
