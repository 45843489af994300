// Package router implements the persist-then-deliver message pipeline:
// envelope-encrypt, insert the row, resolve recipients, and fan out to
// every live connection, echoing back to the sender's other live
// connections. History reads decrypt on demand and tolerate both
// legacy plaintext rows and decryption failures.
package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kestrelchat/kestrel/internal/common"
	"github.com/kestrelchat/kestrel/internal/cryptox"
	"github.com/kestrelchat/kestrel/internal/logging"
	"github.com/kestrelchat/kestrel/internal/server/broadcast"
	"github.com/kestrelchat/kestrel/internal/server/models"
	"github.com/kestrelchat/kestrel/internal/server/presence"
	"github.com/kestrelchat/kestrel/internal/server/repository"
)

// DecryptionFailedPlaceholder is substituted for any row whose envelope
// fails to authenticate, so the raw ciphertext is never returned to a
// client.
const DecryptionFailedPlaceholder = "[DECRYPTION FAILED]"

// ChatType distinguishes the two message kinds the router fans out;
// both flow through the same pipeline with a different recipient
// resolution and a different backing table.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// IncomingMessage is the frame the router hands to presence.Handle.Send
// for delivery to a live connection.
type IncomingMessage struct {
	MessageType string   `json:"message_type"`
	ChatType    ChatType `json:"chat_type"`
	From        string   `json:"from"`
	To          string   `json:"to,omitempty"`
	GroupID     string   `json:"group_id,omitempty"`
	Content     string   `json:"content"`
	Timestamp   int64    `json:"timestamp"`
}

// HistoryLine is one decoded row ready for a client-facing listing.
type HistoryLine struct {
	SenderName string
	Content    string
	Timestamp  time.Time
}

type Router struct {
	db          *sql.DB
	users       repository.Users
	members     repository.GroupMembers
	privateMsgs repository.PrivateMessages
	groupMsgs   repository.GroupMessages
	presence    *presence.Registry
	bus         broadcast.Bus
	masterKey   []byte
	log         logging.Logger
}

func NewRouter(
	db *sql.DB,
	users repository.Users,
	members repository.GroupMembers,
	privateMsgs repository.PrivateMessages,
	groupMsgs repository.GroupMessages,
	reg *presence.Registry,
	bus broadcast.Bus,
	masterKey []byte,
	log logging.Logger,
) *Router {
	return &Router{
		db:          db,
		users:       users,
		members:     members,
		privateMsgs: privateMsgs,
		groupMsgs:   groupMsgs,
		presence:    reg,
		bus:         bus,
		masterKey:   masterKey,
		log:         log,
	}
}

// SendPrivate implements the private-message half of the persist-before-
// deliver invariant: resolve receiver, derive the pair key, encrypt,
// insert, then fan out to every live handle of both parties.
func (r *Router) SendPrivate(ctx context.Context, senderID, senderName, receiverName, plaintext string) error {
	if plaintext == "" {
		return common.ErrValidation
	}

	receiver, err := r.users.GetByUsername(ctx, r.db, receiverName)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("no such user: %w", common.ErrValidation)
		}
		return err
	}

	participants := []string{senderID, receiver.ID}
	key := cryptox.DeriveConversationKey(r.masterKey, participants)
	envelope, err := cryptox.Seal(key, plaintext)
	if err != nil {
		return fmt.Errorf("router: seal: %w", err)
	}

	msg := &models.PrivateMessage{
		SenderID:   senderID,
		ReceiverID: receiver.ID,
		Content:    envelope,
	}
	if err := r.privateMsgs.Insert(ctx, r.db, msg); err != nil {
		return err
	}

	frame := IncomingMessage{
		MessageType: "incoming_message",
		ChatType:    ChatPrivate,
		From:        senderName,
		To:          receiverName,
		Content:     plaintext,
		Timestamp:   msg.Timestamp.UnixMilli(),
	}
	r.deliver(ctx, receiver.ID, frame)
	r.deliver(ctx, senderID, frame)
	return nil
}

// SendGroup implements the group-message half: sort(all current
// members) determines the conversation key, the row is written to
// group_messages, and every member's live handles receive the frame.
func (r *Router) SendGroup(ctx context.Context, senderID, senderName, groupID string, plaintext string) error {
	if plaintext == "" {
		return common.ErrValidation
	}

	members, err := r.members.ListByGroup(ctx, r.db, groupID)
	if err != nil {
		return err
	}
	isMember := false
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
		if m.UserID == senderID {
			isMember = true
		}
	}
	if !isMember {
		return common.ErrNotAMember
	}
	sort.Strings(ids)

	key := cryptox.DeriveConversationKey(r.masterKey, ids)
	envelope, err := cryptox.Seal(key, plaintext)
	if err != nil {
		return fmt.Errorf("router: seal: %w", err)
	}

	msg := &models.GroupMessage{
		SenderID: senderID,
		GroupID:  groupID,
		Content:  envelope,
	}
	if err := r.groupMsgs.Insert(ctx, r.db, msg); err != nil {
		return err
	}

	frame := IncomingMessage{
		MessageType: "incoming_message",
		ChatType:    ChatGroup,
		From:        senderName,
		GroupID:     groupID,
		Content:     plaintext,
		Timestamp:   msg.Timestamp.UnixMilli(),
	}
	for _, id := range ids {
		r.deliver(ctx, id, frame)
	}
	return nil
}

// deliver publishes a frame for userID on the broadcast bus. Every node
// (including this one) delivers to its own live local handles of userID
// through DeliverLocal, which is wired as the bus subscription handler
// at startup — so a single-node deployment on a LocalBus and a
// multi-node deployment on a RedisBus share the exact same delivery
// path with no special-casing.
func (r *Router) deliver(ctx context.Context, userID string, frame IncomingMessage) {
	payload, err := json.Marshal(frame)
	if err != nil {
		r.log.Error(ctx, "router: marshal frame failed", "error", err)
		return
	}
	if err := r.bus.Publish(ctx, broadcast.Message{UserID: userID, Payload: payload}); err != nil {
		r.log.Warn(ctx, "router: bus publish failed", "user_id", userID, "error", err)
	}
}

// DeliverLocal sends payload to every live local handle of msg.UserID,
// pruning any handle whose send fails. Register this as the bus
// subscription handler; persistence is never undone by a delivery
// failure here.
func (r *Router) DeliverLocal(ctx context.Context, msg broadcast.Message) {
	for _, h := range r.presence.Handles(msg.UserID) {
		if err := h.Send(msg.Payload); err != nil {
			r.log.Warn(ctx, "router: fan-out send failed, pruning handle", "user_id", msg.UserID, "conn_id", h.ConnID, "error", err)
			r.presence.Prune(msg.UserID, h.ConnID)
		}
	}
}

// Run subscribes to the broadcast bus and delivers every message to
// this node's local presence registry until ctx is canceled.
func (r *Router) Run(ctx context.Context) error {
	return r.bus.Subscribe(ctx, func(msg broadcast.Message) {
		r.DeliverLocal(ctx, msg)
	})
}

// GetPrivateHistory returns every non-deleted message between
// requestingUserID and peerName, oldest first, decrypted under the pair
// key. Legacy plaintext rows are returned verbatim; rows that fail to
// authenticate are replaced with DecryptionFailedPlaceholder and
// logged, never the raw ciphertext.
func (r *Router) GetPrivateHistory(ctx context.Context, requestingUserID, requestingUsername, peerName string) ([]HistoryLine, error) {
	peer, err := r.users.GetByUsername(ctx, r.db, peerName)
	if err != nil {
		return nil, err
	}

	rows, err := r.privateMsgs.ListBetween(ctx, r.db, requestingUserID, peer.ID)
	if err != nil {
		return nil, err
	}

	participants := []string{requestingUserID, peer.ID}
	out := make([]HistoryLine, 0, len(rows))
	for _, row := range rows {
		senderName := peerName
		if row.SenderID == requestingUserID {
			senderName = requestingUsername
		}
		out = append(out, r.decodeLine(ctx, row.ID, senderName, row.Content, row.Timestamp, participants))
	}
	return out, nil
}

// GetGroupHistory returns every non-deleted message in groupID, oldest
// first, decrypted under the key derived from the current member set.
func (r *Router) GetGroupHistory(ctx context.Context, groupID string) ([]HistoryLine, error) {
	members, err := r.members.ListByGroup(ctx, r.db, groupID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	byID := make(map[string]string, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
		u, err := r.users.GetByID(ctx, r.db, m.UserID)
		if err == nil {
			byID[m.UserID] = u.Username
		}
	}
	sort.Strings(ids)

	rows, err := r.groupMsgs.ListByGroup(ctx, r.db, groupID)
	if err != nil {
		return nil, err
	}

	out := make([]HistoryLine, 0, len(rows))
	for _, row := range rows {
		senderName := byID[row.SenderID]
		out = append(out, r.decodeLine(ctx, row.ID, senderName, row.Content, row.Timestamp, ids))
	}
	return out, nil
}

func (r *Router) decodeLine(ctx context.Context, rowID, senderName, content string, ts time.Time, participants []string) HistoryLine {
	plaintext, ok := cryptox.Decode(r.masterKey, participants, content)
	if !ok {
		r.log.Error(ctx, "router: decryption failed for stored row", "row_id", rowID, "participants", participants)
		plaintext = DecryptionFailedPlaceholder
	}
	return HistoryLine{SenderName: senderName, Content: plaintext, Timestamp: ts}
}

// DeletePrivateMessages soft-deletes, from requestingUserID's side only,
// every message exchanged with peerName.
func (r *Router) DeletePrivateMessages(ctx context.Context, requestingUserID, peerName string) error {
	peer, err := r.users.GetByUsername(ctx, r.db, peerName)
	if err != nil {
		return err
	}
	return r.privateMsgs.SoftDeleteForUser(ctx, r.db, requestingUserID, peer.ID, requestingUserID)
}

// DeleteGroupMessages soft-deletes every message in groupID. Membership
// is not checked here; callers enforce authorization before calling.
func (r *Router) DeleteGroupMessages(ctx context.Context, groupID string) error {
	return r.groupMsgs.SoftDeleteByGroup(ctx, r.db, groupID)
}
