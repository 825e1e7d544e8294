package bus

import "time"

// Event is a domain event published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Namespaces end with a dot so they can be used as prefixes.
const (
	NamespaceStream   = "stream."
	NamespaceMessage  = "message."
	NamespacePresence = "presence."
	NamespaceAttach   = "attach."
	NamespaceNotify   = "notify."
	NamespaceTarget   = "target."

	StreamStatusChanged = "stream.status_changed"

	MessageUpserted   = "message.upserted"
	MessageRemoved    = "message.removed"
	MessageSendAck    = "message.send_ack"
	MessageSendFailed = "message.send_failed"
	MessagesReplaced  = "message.replaced"

	PresenceUpdated = "presence.updated"

	AttachChanged = "attach.changed"
	AttachShake   = "attach.shake"

	NotifyMessage = "notify.message"
	NotifyToast   = "notify.toast"

	TargetSwitched = "target.switched"
	TargetPerms    = "target.perms"
)
