package connection

import (
	"time"

	"github.com/google/uuid"

	"github.com/srinumudili/CodeMate/internal/user"
)

type Status string

const (
	StatusInterested Status = "interested"
	StatusIgnored    Status = "ignored"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
)

// Request is a directed edge between two identities. At most one exists per unordered pair.
type Request struct {
	ID         uuid.UUID `db:"id" json:"id"`
	FromUserID uuid.UUID `db:"from_user_id" json:"fromUserId"`
	ToUserID   uuid.UUID `db:"to_user_id" json:"toUserId"`
	Status     Status    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// ReceivedRequest is a pending request with the sender's public profile.
type ReceivedRequest struct {
	Request
	From user.Profile `json:"from"`
}

const (
	defaultFeedLimit = 10
	maxFeedLimit     = 50
)
