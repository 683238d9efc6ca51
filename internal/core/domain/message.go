package domain

// InboundMessage is a normalized channel turn.
type InboundMessage struct {
	SessionKey string
	Channel    Channel
	Text       string
	MessageID  string
	LocaleHint string
}

// TurnReply is what the controller hands back to a channel adapter.
type TurnReply struct {
	SessionKey string
	Text       string
	Locale     string
	Status     SessionStatus
	State      ConversationState
	Completed  bool
	Returning  bool
	AccountID  string
	Summary    map[string]string
}

// StoreKey is the storage and lock key of a conversation. Keys are scoped by
// channel so a web token can never address a messaging conversation, whose
// key is the sender's phone number.
func StoreKey(channel Channel, key string) string {
	return string(channel) + ":" + key
}
