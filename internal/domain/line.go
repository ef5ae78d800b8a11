package domain

// ============================================================
// LINE messaging
// ============================================================

// BotInfo is the identity reported by the messaging provider for the
// configured channel.
type BotInfo struct {
	DisplayName string `json:"displayName"`
	UserID      string `json:"userId"`
	BasicID     string `json:"basicId"`
	PictureURL  string `json:"pictureUrl,omitempty"`
}

// ConnectionResult is returned by POST /line/test-connection.
type ConnectionResult struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	BotInfo BotInfo `json:"bot_info"`
}

// SendResult is the outcome of pushing a card to one customer.
type SendResult struct {
	CustomerID   int64  `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

// BatchRequest is the body for POST /line/send-card-batch.
type BatchRequest struct {
	CustomerIDs []int64 `json:"customer_ids"`
}

// BatchResult aggregates per-customer results in input order.
type BatchResult struct {
	Total        int          `json:"total"`
	SuccessCount int          `json:"success_count"`
	ErrorCount   int          `json:"error_count"`
	Results      []SendResult `json:"results"`
}

// LineConfigStatus is returned by GET /line/config. Secrets are only
// exposed as short previews.
type LineConfigStatus struct {
	HasAccessToken       bool   `json:"has_access_token"`
	HasChannelSecret     bool   `json:"has_channel_secret"`
	AccessTokenPreview   string `json:"access_token_preview"`
	ChannelSecretPreview string `json:"channel_secret_preview"`
	Source               string `json:"source"`
}

// LineConfigUpdate is the body for POST /line/config.
type LineConfigUpdate struct {
	ChannelAccessToken string `json:"access_token"`
	ChannelSecret      string `json:"channel_secret"`
}
