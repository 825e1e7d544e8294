package chat

// MessageChange is published when a thread gains or updates a message.
type MessageChange struct {
	Target  Target      `json:"target"`
	Message Message     `json:"message"`
	Kind    OutcomeKind `json:"kind"`
	// TempID is set when an optimistic entry was confirmed or changed status.
	TempID string `json:"tempId,omitempty"`
}

// MessageRemoval is published when messages leave a thread.
type MessageRemoval struct {
	Target Target   `json:"target"`
	IDs    []string `json:"ids"`
}

// ThreadReplaced is published when a thread's list was rebuilt from a
// history snapshot.
type ThreadReplaced struct {
	Target   Target    `json:"target"`
	Messages []Message `json:"messages"`
}
