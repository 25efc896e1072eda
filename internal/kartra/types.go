package kartra

// Verification is the fixed response contract of the membership
// verification endpoint.
type Verification struct {
	IsVerified            bool   `json:"isVerified"`
	HasActiveSubscription bool   `json:"hasActiveSubscription"`
	LeadID                string `json:"leadId"`
	Email                 string `json:"email"`
}

// Webhook actions we care about.
const ActionCancelSubscription = "cancel_subscription"

// WebhookEvent is the payload Kartra posts to our webhook endpoint.
type WebhookEvent struct {
	Action string `json:"action"`
	Lead   struct {
		Email string `json:"email"`
	} `json:"lead"`
	ActionDetails struct {
		TransactionDetails struct {
			ProductName   string `json:"product_name"`
			TransactionID string `json:"transaction_id"`
		} `json:"transaction_details"`
	} `json:"action_details"`
}
