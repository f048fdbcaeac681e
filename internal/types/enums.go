package types

import "strings"

// TransactionKind categorizes credit ledger entries.
type TransactionKind string

const (
	TxKindSubscription TransactionKind = "subscription"
	TxKindGeneration   TransactionKind = "generation"
	TxKindScheduling   TransactionKind = "scheduling"
	TxKindRefund       TransactionKind = "refund"
)

// SchedulePostCost is the credit price of scheduling one post. The charge
// comes back when the post is canceled while pending or when the system
// fails it without publishing.
const SchedulePostCost = 5

// PostStatus is the lifecycle state of a scheduled post.
// pending is the only non-terminal state; a post transitions to posted or
// failed exactly once and is never scanned again afterwards.
type PostStatus string

const (
	PostStatusPending PostStatus = "pending"
	PostStatusPosted  PostStatus = "posted"
	PostStatusFailed  PostStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s PostStatus) Terminal() bool {
	return s == PostStatusPosted || s == PostStatusFailed
}

// Platform is a normalized social platform identifier.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTikTok    Platform = "tiktok"
	PlatformPinterest Platform = "pinterest"
)

// knownPlatforms is the set of platform names the posting provider supports.
var knownPlatforms = map[Platform]bool{
	PlatformInstagram: true,
	PlatformFacebook:  true,
	PlatformTwitter:   true,
	PlatformLinkedIn:  true,
	PlatformTikTok:    true,
	PlatformPinterest: true,
}

// NormalizePlatform lowercases and trims a raw platform name. The provider
// and the UI disagree on casing ("Instagram" vs "instagram"), so account
// matching always goes through this.
func NormalizePlatform(raw string) Platform {
	return Platform(strings.ToLower(strings.TrimSpace(raw)))
}

// ValidPlatform reports whether the normalized platform name is supported.
func ValidPlatform(p Platform) bool {
	return knownPlatforms[p]
}

// SubscriptionStatus mirrors the payment provider's subscription state.
type SubscriptionStatus string

const (
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// PlanTier identifies a paid plan. Plans map to a monthly credit grant via
// the billing.PlanRegistry.
type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanStarter PlanTier = "starter"
	PlanPro     PlanTier = "pro"
	PlanAgency  PlanTier = "agency"
)

// GenerationTaskState is the terminal/non-terminal state reported by the
// image generation task API.
type GenerationTaskState string

const (
	TaskStateQueued     GenerationTaskState = "queued"
	TaskStateProcessing GenerationTaskState = "processing"
	TaskStateSuccess    GenerationTaskState = "success"
	TaskStateFail       GenerationTaskState = "fail"
)

// Terminal reports whether the task state is terminal.
func (s GenerationTaskState) Terminal() bool {
	return s == TaskStateSuccess || s == TaskStateFail
}
