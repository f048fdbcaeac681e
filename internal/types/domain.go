package types

import "time"

// User is a registered account holder.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreditBalance is the current spendable balance for a user. One row per
// user, created implicitly on the first credit grant. The amount is never
// negative; deductions are floor-checked in SQL.
type CreditBalance struct {
	UserID    string    `json:"user_id"`
	Amount    int       `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreditTransaction is an immutable ledger entry. Positive amounts are
// grants, negative amounts are spends. Rows are append-only; the sum of a
// user's transactions reconciles with their CreditBalance.
type CreditTransaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      int             `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// GeneratedImage is a banner produced by the generation orchestrator.
// Immutable once persisted; referenced by ScheduledPost.
type GeneratedImage struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ImageURL      string    `json:"image_url"`
	Prompt        string    `json:"prompt"`
	Theme         string    `json:"theme"`
	VariantNumber int       `json:"variant_number"`
	CreatedAt     time.Time `json:"created_at"`
}

// ScheduledPost is a banner queued for publication to one or more social
// platforms. Status transitions pending -> posted|failed exactly once,
// performed by the post processor.
type ScheduledPost struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	ImageID        string     `json:"image_id"`
	Caption        string     `json:"caption"`
	ScheduledFor   time.Time  `json:"scheduled_for"`
	Platforms      []string   `json:"platforms"`
	Status         PostStatus `json:"status"`
	ExternalPostID string     `json:"external_post_id,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	TikTokMetadata []byte     `json:"tiktok_metadata,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SocialAccount is an external account linked through the posting provider.
// Unique on (user_id, external_account_id); upserted by the linking pipeline.
type SocialAccount struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	ExternalAccountID string    `json:"external_account_id"`
	Platform          Platform  `json:"platform"`
	Username          string    `json:"username"`
	Name              string    `json:"name"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

// BrandKit is a user's stored visual identity, injected into generation
// prompts. One row per user, upserted freely by the owner.
type BrandKit struct {
	UserID              string    `json:"user_id"`
	LogoURL             string    `json:"logo_url,omitempty"`
	PrimaryColor        string    `json:"primary_color,omitempty"`
	SecondaryColor      string    `json:"secondary_color,omitempty"`
	BusinessDescription string    `json:"business_description,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Subscription is the locally mirrored billing state for a user, mutated
// only by the payment webhook handlers.
type Subscription struct {
	UserID                 string             `json:"user_id"`
	Provider               string             `json:"provider"`
	ProviderSubscriptionID string             `json:"provider_subscription_id"`
	Plan                   PlanTier           `json:"plan"`
	Status                 SubscriptionStatus `json:"status"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// PendingAccount is an external account discovered during the OAuth flow
// but not yet confirmed for linking by the user.
type PendingAccount struct {
	ExternalAccountID string   `json:"external_account_id"`
	Platform          Platform `json:"platform"`
	Username          string   `json:"username"`
	Name              string   `json:"name"`
}

// RedirectURLs carries the browser return targets for a hosted checkout
// session.
type RedirectURLs struct {
	Success string `json:"success"`
	Cancel  string `json:"cancel"`
}

// PlatformResult is the per-platform outcome of a publish call.
type PlatformResult struct {
	Platform Platform   `json:"platform"`
	Success  bool       `json:"success"`
	PostID   string     `json:"post_id,omitempty"`
	PostedAt *time.Time `json:"posted_at,omitempty"`
	Error    string     `json:"error,omitempty"`
}
