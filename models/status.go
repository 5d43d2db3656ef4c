package models

// AuditStatus is the moderation state shared by songs, forum posts, forum replies and comments.
type AuditStatus int8

const (
	AuditPending AuditStatus = iota
	AuditApproved
	AuditRejected
)

// Valid reports whether s is one of the known moderation states.
func (s AuditStatus) Valid() bool {
	switch s {
	case AuditPending, AuditApproved, AuditRejected:
		return true
	}
	return false
}

func (s AuditStatus) String() string {
	switch s {
	case AuditPending:
		return "pending"
	case AuditApproved:
		return "approved"
	case AuditRejected:
		return "rejected"
	}
	return "unknown"
}

// OrderStatus is the lifecycle state of a forum order (an application to a requirement post).
type OrderStatus int8

const (
	OrderPendingAgreement OrderStatus = iota
	OrderAccepted
	OrderCompleted
	OrderRejected
)

// ClaimedOrderStatuses are the states in which an order holds its requirement post.
var ClaimedOrderStatuses = []OrderStatus{OrderAccepted, OrderCompleted}

// Label returns the human readable label shown next to an order.
func (s OrderStatus) Label() string {
	switch s {
	case OrderPendingAgreement:
		return "pending agreement"
	case OrderAccepted:
		return "accepted, not completed"
	case OrderCompleted:
		return "completed"
	case OrderRejected:
		return "rejected"
	}
	return "unknown"
}

// Claimed reports whether the order occupies its post (accepted or completed).
func (s OrderStatus) Claimed() bool {
	return s == OrderAccepted || s == OrderCompleted
}

// CanTransition reports whether the poster may move an order from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderPendingAgreement:
		return next == OrderAccepted || next == OrderRejected
	case OrderAccepted:
		return next == OrderCompleted
	case OrderCompleted, OrderRejected:
		return false
	}
	return false
}

// PostType distinguishes plain discussions from requirement (help request) posts.
type PostType int8

const (
	PostDiscussion PostType = iota
	PostRequirement
)

func (t PostType) Valid() bool {
	return t == PostDiscussion || t == PostRequirement
}

// RecordStatus is the soft-delete flag of forum posts and replies.
type RecordStatus int8

const (
	RecordActive RecordStatus = iota
	RecordDeleted
)

// ArtistCategory classifies catalog artists.
type ArtistCategory int8

const (
	ArtistMale ArtistCategory = iota
	ArtistFemale
	ArtistGroup
	// ArtistOriginal marks profiles derived from users who upload original songs.
	ArtistOriginal
)

func (c ArtistCategory) Valid() bool {
	return c >= ArtistMale && c <= ArtistOriginal
}

const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// UserStatus values.
const (
	UserEnabled  int8 = 0
	UserDisabled int8 = 1
)
