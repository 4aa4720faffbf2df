package catalog

// Subscribed reports whether a webhook with the given event list receives
// eventType. An empty list is a wildcard.
func Subscribed(events []string, eventType string) bool {
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e == eventType {
			return true
		}
	}
	return false
}
