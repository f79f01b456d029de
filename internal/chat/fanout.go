package chat

import (
	"github.com/kindredchat/kindred/internal/protocol"
	"github.com/kindredchat/kindred/internal/store"
)

// Frame encoders for session events. Kept in one place so the wire shapes the
// manager emits are easy to audit.

func encodeNewMessage(sessionID string, msg *store.Message) ([]byte, error) {
	return protocol.NewServerMessage(protocol.TypeNewMessage, protocol.NewMessageMsg{
		SessionID: sessionID,
		Message: protocol.Message{
			ID:        msg.ID,
			SessionID: msg.SessionID,
			SenderID:  msg.SenderID,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
			Edited:    msg.Edited,
		},
	})
}

func encodeTyping(sessionID, userID string, stop bool) ([]byte, error) {
	typ := protocol.TypeTyping
	if stop {
		typ = protocol.TypeStopTyping
	}
	return protocol.NewServerMessage(typ, protocol.PeerTypingMsg{
		SessionID: sessionID,
		UserID:    userID,
	})
}

func encodeReadAll(sessionID, readerID, upToMessageID string) ([]byte, error) {
	return protocol.NewServerMessage(protocol.TypeReadAll, protocol.ReadAllEventMsg{
		SessionID:     sessionID,
		ReaderID:      readerID,
		UpToMessageID: upToMessageID,
	})
}

func encodeSessionEnded(sessionID, byUserID string) ([]byte, error) {
	return protocol.NewServerMessage(protocol.TypeSessionEnded, protocol.SessionEndedMsg{
		SessionID: sessionID,
		By:        byUserID,
	})
}
