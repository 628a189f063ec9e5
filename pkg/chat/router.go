package chat

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/hackmatch/hackmatch/pkg/database"
)

// MessageStore is the durable side of the router. *database.DB implements it;
// tests substitute their own.
type MessageStore interface {
	AppendMessage(senderID string, channel, recipientID *string, kind, content string) (*database.Message, error)
}

// Router orchestrates inbound message intents from both transports:
// validate, persist, then fan out. Persistence is the durability point - if
// the append fails nothing is broadcast and the caller gets the error.
// Delivery failure after a successful append is non-fatal and not retried.
type Router struct {
	store    MessageStore
	presence *Presence
	rooms    *Rooms
	validate *validator.Validate
	metrics  Metrics

	// Per-channel send locks. Holding one across append+broadcast keeps
	// broadcast order equal to append-completion order within a channel
	// without ever touching the multiplexer lock during store I/O.
	channelLocks sync.Map // channel -> *sync.Mutex
}

// NewRouter creates a router over the given store, presence registry and
// room multiplexer.
func NewRouter(store MessageStore, presence *Presence, rooms *Rooms) *Router {
	return &Router{
		store:    store,
		presence: presence,
		rooms:    rooms,
		validate: validator.New(),
	}
}

// SetMetrics attaches metrics to the router
func (r *Router) SetMetrics(metrics Metrics) {
	r.metrics = metrics
}

type sendIntent struct {
	Content string `validate:"required,max=1000"`
	Kind    string `validate:"required,oneof=text image file system"`
}

// checkSend validates a send intent before it touches the store. An empty
// kind defaults to text, matching what clients usually omit.
func (r *Router) checkSend(content, kind string) (string, error) {
	if kind == "" {
		kind = database.KindText
	}
	if err := r.validate.Struct(sendIntent{Content: content, Kind: kind}); err != nil {
		return "", fmt.Errorf("%w: %v", database.ErrValidation, err)
	}
	return kind, nil
}

func (r *Router) channelLock(channel string) *sync.Mutex {
	mu, _ := r.channelLocks.LoadOrStore(channel, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// SendTeamMessage validates, persists and broadcasts a channel message,
// returning the stored form. Subscribers observe channel messages in
// append-completion order.
func (r *Router) SendTeamMessage(senderID, channel, content, kind string) (*database.Message, error) {
	kind, err := r.checkSend(content, kind)
	if err != nil {
		return nil, err
	}
	if channel == "" {
		return nil, fmt.Errorf("%w: channel is required", database.ErrValidation)
	}

	mu := r.channelLock(channel)
	mu.Lock()
	defer mu.Unlock()

	msg, err := r.store.AppendMessage(senderID, &channel, nil, kind, content)
	if err != nil {
		return nil, err
	}

	delivered := r.rooms.Broadcast(channel, MessageEvent{Type: EventTeamMessage, Message: msg})
	if r.metrics != nil {
		r.metrics.RecordMessageBroadcast(msg.Kind)
	}
	log.Debug().Str("channel", channel).Int64("message_id", msg.ID).Int("delivered", delivered).Msg("team message broadcast")

	return msg, nil
}

// SendDirectMessage validates, persists and pushes a direct message to every
// live connection of the recipient, then echoes the stored form to the
// sender's own connections so their view reflects the server-assigned id and
// timestamp. An offline recipient still gets a durable message.
func (r *Router) SendDirectMessage(senderID, recipientID, content, kind string) (*database.Message, error) {
	kind, err := r.checkSend(content, kind)
	if err != nil {
		return nil, err
	}
	if recipientID == "" {
		return nil, fmt.Errorf("%w: recipient is required", database.ErrValidation)
	}

	msg, err := r.store.AppendMessage(senderID, nil, &recipientID, kind, content)
	if err != nil {
		return nil, err
	}

	event := MessageEvent{Type: EventDirectMessage, Message: msg}
	delivered := 0
	for _, c := range r.presence.Lookup(recipientID) {
		if err := c.Send(event); err == nil {
			delivered++
		}
	}
	for _, c := range r.presence.Lookup(senderID) {
		c.Send(event)
	}
	if r.metrics != nil {
		r.metrics.RecordMessageBroadcast(msg.Kind)
	}
	log.Debug().Str("recipient", recipientID).Int64("message_id", msg.ID).Int("delivered", delivered).Msg("direct message delivered")

	return msg, nil
}

// HandleIntent processes one intent from a live connection. Intents from a
// single connection arrive here one at a time, in order; the reply to a
// failed intent is an error event to that connection only.
func (r *Router) HandleIntent(conn Conn, intent Intent) {
	switch intent.Type {
	case IntentJoinChannel:
		if intent.Channel != "" {
			r.rooms.Subscribe(conn, intent.Channel)
		}
	case IntentLeaveChannel:
		if intent.Channel != "" {
			r.rooms.Unsubscribe(conn, intent.Channel)
		}
	case IntentTeamMessage:
		if _, err := r.SendTeamMessage(conn.Identity(), intent.Channel, intent.Content, intent.Kind); err != nil {
			r.sendError(conn, err)
		}
	case IntentDirectMessage:
		if _, err := r.SendDirectMessage(conn.Identity(), intent.RecipientID, intent.Content, intent.Kind); err != nil {
			r.sendError(conn, err)
		}
	case IntentTypingStart, IntentTypingStop:
		if intent.Channel == "" {
			return
		}
		r.rooms.BroadcastExcept(intent.Channel, conn, TypingEvent{
			Type:    EventUserTyping,
			Channel: intent.Channel,
			UserID:  conn.Identity(),
			Typing:  intent.Type == IntentTypingStart,
		})
	case IntentPresenceUpdate:
		event := PresenceEvent{Type: EventPresenceUpdate, UserID: conn.Identity(), Status: intent.Status}
		for _, c := range r.presence.Connections() {
			if c.ID() == conn.ID() {
				continue
			}
			c.Send(event)
		}
	default:
		conn.Send(ErrorEvent{Type: EventError, Message: fmt.Sprintf("unknown intent type %q", intent.Type)})
	}
}

// Disconnect tears down all live state for a connection: presence entry and
// every channel subscription. After it returns, broadcasts and direct
// messages can no longer reach the connection.
func (r *Router) Disconnect(conn Conn) {
	r.presence.Unregister(conn)
	r.rooms.Drop(conn)
}

func (r *Router) sendError(conn Conn, err error) {
	log.Warn().Err(err).Str("user", conn.Identity()).Msg("intent rejected")
	conn.Send(ErrorEvent{Type: EventError, Message: err.Error()})
}
