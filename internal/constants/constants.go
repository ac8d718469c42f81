package constants

import "time"

// Session and context keys
const (
	SessionCookieName    = "allocation_session"
	ContextKeyUserID     = "user_id"
	ContextKeyPrincipal  = "principal"
	MinPasswordLength    = 8
	MaxGroupNameLength   = 100
	MaxProjectTitleLen   = 255
	DefaultSessionMaxAge = 86400 * 7
)

// Pagination
const (
	MinPageSize     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Auto-rejection reasons. The text is shown to students as-is; the code is
// what gets logged and sent with events.
const (
	ReasonGroupFinalized = "Group has been finalized"
	ReasonGroupFull      = "Group is now full"
	ReasonGroupDisbanded = "Group has been disbanded"
	ReasonJoinedOther    = "Invitee joined another group"

	ReasonCodeGroupFinalized = "group_finalized"
	ReasonCodeGroupFull      = "group_full"
	ReasonCodeGroupDisbanded = "group_disbanded"
	ReasonCodeJoinedOther    = "invitee_joined_other_group"
)

// Realtime
const (
	WSWriteWait      = 10 * time.Second
	WSPongWait       = 60 * time.Second
	WSPingPeriod     = (WSPongWait * 9) / 10
	WSMaxMessageSize = 4096
	SubscriberBuffer = 64
)
