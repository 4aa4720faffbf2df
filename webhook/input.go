package webhook

// Input is the creation payload for webhooks.
type Input struct {
	// UserID is the owner of the webhook.
	UserID string `json:"user_id"`

	// URL is the https delivery target.
	URL string `json:"url"`

	// Description is a human-readable label.
	Description string `json:"description"`

	// Secret is the signing secret. Generated when empty.
	Secret string `json:"secret,omitempty"`

	// Events is the subscription set. Empty subscribes to everything.
	Events []string `json:"events"`
}

// UpdateInput carries the mutable fields of a webhook. Nil fields are left unchanged.
type UpdateInput struct {
	URL         *string   `json:"url,omitempty"`
	Description *string   `json:"description,omitempty"`
	Events      *[]string `json:"events,omitempty"`
	Enabled     *bool     `json:"enabled,omitempty"`
}

// ListOpts configures filtering and pagination for webhook listing.
type ListOpts struct {
	Offset  int
	Limit   int
	Enabled *bool
}
