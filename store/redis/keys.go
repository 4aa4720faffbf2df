package redis

// Key prefixes for primary entity storage.
const (
	prefixWebhook  = "ubt:wh:"
	prefixDelivery = "ubt:del:"
	prefixQueue    = "ubt:q:"
)

// Key prefixes for sorted set indexes.
const (
	zQueueDue        = "ubt:z:q:due"    // queue entry IDs scored by deliver_after
	zWebhookUser     = "ubt:z:wh:user:" // + user ID
	zDeliveryAll     = "ubt:z:del:all"  // delivery IDs scored by created_at
	zDeliveryWebhook = "ubt:z:del:wh:"  // + webhook ID
)

// Key prefixes for set and hash indexes.
const (
	sWebhookEnabled = "ubt:s:wh:user:" // + userID + ":enabled"
	sQueueDelivery  = "ubt:s:q:del:"   // + delivery ID
	hCollaborators  = "ubt:h:collab:"  // + trip ID, field user ID, value status
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// enabledSetKey returns the set key for enabled webhooks of a user.
func enabledSetKey(userID string) string {
	return sWebhookEnabled + userID + ":enabled"
}
