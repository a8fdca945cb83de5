package model

// ChatPayload is the payload of a chat job. MessageID is the assistant message
// placeholder row that receives the final text.
type ChatPayload struct {
	MessageID      int64  `json:"message_id"                validate:"required,gt=0"`
	ConversationID int64  `json:"conversation_id,omitempty" validate:"gte=0"`
	Prompt         string `json:"prompt,omitempty"          validate:"max=32768"`
}

// WhatsAppPayload is the payload of a whatsapp_chat job.
type WhatsAppPayload struct {
	MessageID int64  `json:"message_id"     validate:"required,gt=0"`
	From      string `json:"from,omitempty" validate:"max=64"`
	Text      string `json:"text,omitempty" validate:"max=32768"`
}

// PerformanceReportPayload is the payload of a performance_report job.
type PerformanceReportPayload struct {
	GRNNumber string `json:"grn_number" validate:"required,max=64"`
}

// GatewayReply is the body posted to the messaging gateway once a
// whatsapp_chat job finishes.
type GatewayReply struct {
	MessageID int64  `json:"message_id"`
	To        string `json:"to"`
	Text      string `json:"text"`
}
