package ws

// Inbound is a message from a participant. Type selects the operation;
// unused fields are ignored.
type Inbound struct {
	Type      string `json:"type"` // "join", "action" or "leave"
	Name      string `json:"name,omitempty"`
	Character string `json:"character,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Payload   string `json:"payload,omitempty"`
}

// ErrorMessage is sent back to the submitting participant when an
// operation is rejected
type ErrorMessage struct {
	Type    string `json:"type"` // Always "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}
