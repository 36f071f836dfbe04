package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicCheckoutStarted = "checkout.started"
	TopicCheckoutFailed  = "checkout.failed"
	TopicCheckoutPaid    = "checkout.paid"
	TopicLeadReceived    = "lead.received"
	TopicPageview        = "pageview"
)

// NotifyTopics returns the topics that trigger outbound email.
func NotifyTopics() []string {
	return []string{
		TopicCheckoutPaid,
		TopicLeadReceived,
	}
}
