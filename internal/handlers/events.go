package handlers

// Outbound event names pushed to client connections.
const (
	EventUserDataUpdate         = "user_data_update"
	EventUserDataSync           = "user_data_sync"
	EventChatCreated            = "chat_created"
	EventChatDataSync           = "chat_data_sync"
	EventChatValidationResponse = "chat_validation_response"
	EventNewMessage             = "new_message"
	EventMessageDataSync        = "message_data_sync"
	EventMessageStatusUpdated   = "message_status_updated"
)

// Inbound operation names received from client connections.
const (
	OpEditUser            = "edit_user"
	OpValidateChatAndSave = "validate_chat_and_save"
	OpSendMessage         = "send_message"
	OpDisconnect          = "disconnect"
)
