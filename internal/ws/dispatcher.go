package ws

import (
	"log"
	"time"

	"github.com/kindredchat/kindred/internal/fault"
	"github.com/kindredchat/kindred/internal/protocol"
)

// MessageHandler is the callback signature for handling a parsed client
// message. msg is the concrete struct returned by
// protocol.ParseClientMessage (protocol.StartSearchMsg, protocol.SendMessageMsg, ...).
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes incoming WebSocket messages to registered handlers
// based on the message type. It handles the built-in ping/pong keepalive
// internally, refuses everything but authenticate on unauthenticated
// connections, and sends structured error responses for malformed or
// unsupported messages.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
}

// NewMessageDispatcher creates an empty MessageDispatcher.
func NewMessageDispatcher() *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
	}
}

// Register associates a MessageHandler with a message type. A handler already
// registered for the type is silently replaced.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch parses raw frame bytes into a typed message, handles ping
// internally, enforces the authentication gate, and routes everything else to
// the registered handler.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("ws: dispatch parse error conn=%s: %v", conn.ID, err)
		SendFault(conn, fault.New(fault.InvalidContent, "invalid message format"))
		return
	}

	// Built-in ping handler, no registration required.
	if msgType == protocol.TypePing {
		d.sendPong(conn)
		return
	}

	if msgType != protocol.TypeAuthenticate && conn.UserID() == "" {
		SendFault(conn, fault.New(fault.AuthRequired, "authenticate first"))
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		log.Printf("ws: unsupported message type=%q conn=%s", msgType, conn.ID)
		SendFault(conn, fault.New(fault.InvalidContent, "unsupported message type"))
		return
	}

	handler(conn, msg)
}

// SendFault queues a structured error frame carrying the fault's stable code.
// Errors during message construction are logged, never propagated.
func SendFault(conn *Connection, err error) {
	data, encErr := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    string(fault.CodeOf(err)),
		Message: fault.MessageOf(err),
	})
	if encErr != nil {
		log.Printf("ws: failed to build error message conn=%s: %v", conn.ID, encErr)
		return
	}
	conn.Enqueue(data, false)
}

// sendPong responds to a client ping and refreshes the connection's
// keepalive timestamp.
func (d *MessageDispatcher) sendPong(conn *Connection) {
	conn.LastPing = time.Now()

	data, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{})
	if err != nil {
		log.Printf("ws: failed to build pong message conn=%s: %v", conn.ID, err)
		return
	}
	conn.Enqueue(data, true)
}
