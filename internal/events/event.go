// Package events carries domain notifications from committed commands to
// connected clients.
package events

import (
	"fmt"
	"time"
)

// Type names a notification.
type Type string

const (
	TypeInvitationCreated   Type = "invitation_created"
	TypeInvitationUpdate    Type = "invitation_update"
	TypeGroupFinalized      Type = "group_finalized"
	TypeGroupDisbanded      Type = "group_disbanded"
	TypeMemberRemoved       Type = "member_removed"
	TypeMemberLeft          Type = "member_left"
	TypeProjectRegistered   Type = "project_registered"
	TypePendingDecision     Type = "pending_decision"
	TypeFacultyResponse     Type = "faculty_response"
	TypeGroupAllocation     Type = "group_allocation"
	TypeAllocationExhausted Type = "allocation_exhausted"
)

// AudienceKind selects how an audience is resolved to topics.
type AudienceKind string

const (
	AudienceGroup  AudienceKind = "group"
	AudienceUser   AudienceKind = "user"
	AudienceAdmins AudienceKind = "admins"
)

// Audience is one recipient set of an event.
type Audience struct {
	Kind AudienceKind
	ID   uint64
}

// ToGroup addresses the group's active members at dispatch time.
func ToGroup(groupID uint64) Audience {
	return Audience{Kind: AudienceGroup, ID: groupID}
}

// ToUser addresses one user.
func ToUser(userID uint64) Audience {
	return Audience{Kind: AudienceUser, ID: userID}
}

// ToUsers addresses each of the given users.
func ToUsers(userIDs ...uint64) []Audience {
	out := make([]Audience, len(userIDs))
	for i, id := range userIDs {
		out[i] = ToUser(id)
	}
	return out
}

// ToAdmins addresses every connected admin.
func ToAdmins() Audience {
	return Audience{Kind: AudienceAdmins}
}

// Event is the envelope delivered to subscribers.
type Event struct {
	ID           string                 `json:"id"`
	Type         Type                   `json:"type"`
	OccurredAt   time.Time              `json:"occurred_at"`
	GroupID      uint64                 `json:"group_id,omitempty"`
	ProjectID    uint64                 `json:"project_id,omitempty"`
	InvitationID uint64                 `json:"invitation_id,omitempty"`
	ActorID      uint64                 `json:"actor_id,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`

	Audience []Audience `json:"-"`
}

// Topic helpers. Every transport uses the same names.
const AdminTopic = "admin"

func UserTopic(userID uint64) string {
	return fmt.Sprintf("user:%d", userID)
}

func GroupTopic(groupID uint64) string {
	return fmt.Sprintf("group:%d", groupID)
}
