package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kestrelchat/kestrel/internal/common"
	"github.com/kestrelchat/kestrel/internal/cryptox"
	"github.com/kestrelchat/kestrel/internal/dbx"
	"github.com/kestrelchat/kestrel/internal/logging"
	"github.com/kestrelchat/kestrel/internal/server/broadcast"
	"github.com/kestrelchat/kestrel/internal/server/models"
	"github.com/kestrelchat/kestrel/internal/server/presence"
	"github.com/kestrelchat/kestrel/internal/server/repository"
)

// fakeUsers is a minimal in-memory repository.Users for router tests.
type fakeUsers struct {
	mu    sync.Mutex
	byID  map[string]*models.User
	byUsr map[string]*models.User
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byID: map[string]*models.User{}, byUsr: map[string]*models.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
		f.byUsr[u.Username] = u
	}
	return f
}

func (f *fakeUsers) Create(ctx context.Context, db dbx.DBTX, u *models.User) error { return nil }
func (f *fakeUsers) GetByUsername(ctx context.Context, db dbx.DBTX, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byUsr[username]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}
func (f *fakeUsers) GetByUsernameForUpdate(ctx context.Context, db dbx.DBTX, username string) (*models.User, error) {
	return f.GetByUsername(ctx, db, username)
}
func (f *fakeUsers) GetByID(ctx context.Context, db dbx.DBTX, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}
func (f *fakeUsers) List(ctx context.Context, db dbx.DBTX) ([]*models.User, error) { return nil, nil }
func (f *fakeUsers) SetOnline(ctx context.Context, db dbx.DBTX, userID string, online bool) error {
	return nil
}
func (f *fakeUsers) TouchLastSeen(ctx context.Context, db dbx.DBTX, userID string, at time.Time) error {
	return nil
}

// fakeGroupMembers is a minimal in-memory repository.GroupMembers.
type fakeGroupMembers struct {
	byGroup map[string][]*models.GroupMember
}

func newFakeGroupMembers(groupID string, userIDs ...string) *fakeGroupMembers {
	members := make([]*models.GroupMember, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, &models.GroupMember{GroupID: groupID, UserID: id, Role: models.RoleMember})
	}
	return &fakeGroupMembers{byGroup: map[string][]*models.GroupMember{groupID: members}}
}

func (f *fakeGroupMembers) Add(ctx context.Context, db dbx.DBTX, m *models.GroupMember) error {
	f.byGroup[m.GroupID] = append(f.byGroup[m.GroupID], m)
	return nil
}
func (f *fakeGroupMembers) Remove(ctx context.Context, db dbx.DBTX, groupID, userID string) error {
	return nil
}
func (f *fakeGroupMembers) Get(ctx context.Context, db dbx.DBTX, groupID, userID string) (*models.GroupMember, error) {
	return nil, common.ErrNotFound
}
func (f *fakeGroupMembers) ListByGroup(ctx context.Context, db dbx.DBTX, groupID string) ([]*models.GroupMember, error) {
	return f.byGroup[groupID], nil
}
func (f *fakeGroupMembers) Count(ctx context.Context, db dbx.DBTX, groupID string) (int, error) {
	return len(f.byGroup[groupID]), nil
}

// fakePrivateMessages is a minimal in-memory repository.PrivateMessages.
type fakePrivateMessages struct {
	mu   sync.Mutex
	rows []*models.PrivateMessage
}

func (f *fakePrivateMessages) Insert(ctx context.Context, db dbx.DBTX, m *models.PrivateMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = uuid.NewString()
	m.Timestamp = time.Now().UTC()
	f.rows = append(f.rows, m)
	return nil
}
func (f *fakePrivateMessages) ListBetween(ctx context.Context, db dbx.DBTX, userA, userB string) ([]*models.PrivateMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PrivateMessage
	for _, m := range f.rows {
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			out = append(out, m)
		}
	}
	return out, nil
}
func (f *fakePrivateMessages) SoftDeleteForUser(ctx context.Context, db dbx.DBTX, userA, userB, requestingUserID string) error {
	return nil
}

// fakeGroupMessages is a minimal in-memory repository.GroupMessages.
type fakeGroupMessages struct {
	mu   sync.Mutex
	rows []*models.GroupMessage
}

func (f *fakeGroupMessages) Insert(ctx context.Context, db dbx.DBTX, m *models.GroupMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = uuid.NewString()
	m.Timestamp = time.Now().UTC()
	f.rows = append(f.rows, m)
	return nil
}
func (f *fakeGroupMessages) ListByGroup(ctx context.Context, db dbx.DBTX, groupID string) ([]*models.GroupMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.GroupMessage
	for _, m := range f.rows {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}
func (f *fakeGroupMessages) SoftDeleteByGroup(ctx context.Context, db dbx.DBTX, groupID string) error {
	return nil
}

var _ repository.Users = (*fakeUsers)(nil)
var _ repository.GroupMembers = (*fakeGroupMembers)(nil)
var _ repository.PrivateMessages = (*fakePrivateMessages)(nil)
var _ repository.GroupMessages = (*fakeGroupMessages)(nil)

func testMasterKey() []byte {
	return []byte("01234567890123456789012345678901")[:32]
}

// decodeFrame unmarshals the json.RawMessage a presence.Handle receives
// once it has passed through the broadcast bus.
func decodeFrame(t *testing.T, f presence.Frame) IncomingMessage {
	t.Helper()
	raw, ok := f.(json.RawMessage)
	require.True(t, ok, "expected json.RawMessage, got %T", f)
	var msg IncomingMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func newTestRouter(t *testing.T, users *fakeUsers, members *fakeGroupMembers, pm *fakePrivateMessages, gm *fakeGroupMessages, reg *presence.Registry, bus broadcast.Bus) *Router {
	t.Helper()
	return NewRouter(nil, users, members, pm, gm, reg, bus, testMasterKey(), logging.NopLogger{})
}

func startBus(t *testing.T, r *Router) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(cancel)
	// Give the subscription goroutine a chance to register before publishing.
	time.Sleep(10 * time.Millisecond)
}

func TestSendPrivate_PersistsThenDeliversToBothParties(t *testing.T) {
	alice := &models.User{ID: "u-alice", Username: "alice"}
	bob := &models.User{ID: "u-bob", Username: "bob"}
	users := newFakeUsers(alice, bob)
	pm := &fakePrivateMessages{}
	gm := &fakeGroupMessages{}
	members := &fakeGroupMembers{byGroup: map[string][]*models.GroupMember{}}
	reg := presence.NewRegistry()
	bus := broadcast.NewLocalBus()

	r := newTestRouter(t, users, members, pm, gm, reg, bus)
	startBus(t, r)

	var mu sync.Mutex
	var bobFrames, aliceFrames []IncomingMessage
	reg.Register(bob.ID, "bob-conn", func(f presence.Frame) error {
		mu.Lock()
		defer mu.Unlock()
		bobFrames = append(bobFrames, decodeFrame(t, f))
		return nil
	})
	reg.Register(alice.ID, "alice-conn", func(f presence.Frame) error {
		mu.Lock()
		defer mu.Unlock()
		aliceFrames = append(aliceFrames, decodeFrame(t, f))
		return nil
	})

	err := r.SendPrivate(context.Background(), alice.ID, "alice", "bob", "hello")
	require.NoError(t, err)

	require.Len(t, pm.rows, 1)
	require.Equal(t, alice.ID, pm.rows[0].SenderID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bobFrames) == 1 && len(aliceFrames) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "hello", bobFrames[0].Content)
	require.Equal(t, "hello", aliceFrames[0].Content)
}

func TestSendPrivate_UnknownReceiverFailsValidation(t *testing.T) {
	alice := &models.User{ID: "u-alice", Username: "alice"}
	users := newFakeUsers(alice)
	pm := &fakePrivateMessages{}
	r := newTestRouter(t, users, &fakeGroupMembers{byGroup: map[string][]*models.GroupMember{}}, pm, &fakeGroupMessages{}, presence.NewRegistry(), broadcast.NewLocalBus())

	err := r.SendPrivate(context.Background(), alice.ID, "alice", "ghost", "hi")
	require.Error(t, err)
	require.Empty(t, pm.rows)
}

func TestSendPrivate_EmptyBodyRejected(t *testing.T) {
	alice := &models.User{ID: "u-alice", Username: "alice"}
	bob := &models.User{ID: "u-bob", Username: "bob"}
	users := newFakeUsers(alice, bob)
	pm := &fakePrivateMessages{}
	r := newTestRouter(t, users, &fakeGroupMembers{byGroup: map[string][]*models.GroupMember{}}, pm, &fakeGroupMessages{}, presence.NewRegistry(), broadcast.NewLocalBus())

	err := r.SendPrivate(context.Background(), alice.ID, "alice", "bob", "")
	require.ErrorIs(t, err, common.ErrValidation)
	require.Empty(t, pm.rows)
}

func TestSendGroup_NonMemberRejected(t *testing.T) {
	members := newFakeGroupMembers("g1", "u-a", "u-b")
	r := newTestRouter(t, newFakeUsers(), members, &fakePrivateMessages{}, &fakeGroupMessages{}, presence.NewRegistry(), broadcast.NewLocalBus())

	err := r.SendGroup(context.Background(), "u-outsider", "outsider", "g1", "hi")
	require.ErrorIs(t, err, common.ErrNotAMember)
}

func TestSendGroup_FansOutToAllMembers(t *testing.T) {
	members := newFakeGroupMembers("g1", "u-a", "u-b", "u-c")
	gm := &fakeGroupMessages{}
	reg := presence.NewRegistry()
	bus := broadcast.NewLocalBus()
	r := newTestRouter(t, newFakeUsers(), members, &fakePrivateMessages{}, gm, reg, bus)
	startBus(t, r)

	var mu sync.Mutex
	received := map[string]int{}
	for _, id := range []string{"u-a", "u-b", "u-c"} {
		id := id
		reg.Register(id, id+"-conn", func(presence.Frame) error {
			mu.Lock()
			defer mu.Unlock()
			received[id]++
			return nil
		})
	}

	err := r.SendGroup(context.Background(), "u-a", "a", "g1", "group hello")
	require.NoError(t, err)
	require.Len(t, gm.rows, 1)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received["u-a"] == 1 && received["u-b"] == 1 && received["u-c"] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestGetPrivateHistory_DecryptionFailureIsContained(t *testing.T) {
	alice := &models.User{ID: "u-alice", Username: "alice"}
	bob := &models.User{ID: "u-bob", Username: "bob"}
	users := newFakeUsers(alice, bob)
	pm := &fakePrivateMessages{}
	r := newTestRouter(t, users, &fakeGroupMembers{byGroup: map[string][]*models.GroupMember{}}, pm, &fakeGroupMessages{}, presence.NewRegistry(), broadcast.NewLocalBus())

	require.NoError(t, r.SendPrivate(context.Background(), alice.ID, "alice", "bob", "good message"))
	require.NoError(t, r.SendPrivate(context.Background(), alice.ID, "alice", "bob", "will be tampered"))

	// Flip a byte inside the second row's ciphertext, keeping the
	// envelope's JSON shape intact so it still parses as an envelope but
	// fails to authenticate.
	env, err := cryptox.ParseEnvelope(pm.rows[1].Content)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 1
	env.Ciphertext = base64.StdEncoding.EncodeToString(raw)
	tampered, err := json.Marshal(env)
	require.NoError(t, err)
	pm.rows[1].Content = string(tampered)

	lines, err := r.GetPrivateHistory(context.Background(), alice.ID, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "good message", lines[0].Content)
	require.Equal(t, DecryptionFailedPlaceholder, lines[1].Content)
}

func TestGetPrivateHistory_LegacyPlaintextTolerance(t *testing.T) {
	alice := &models.User{ID: "u-alice", Username: "alice"}
	bob := &models.User{ID: "u-bob", Username: "bob"}
	users := newFakeUsers(alice, bob)
	pm := &fakePrivateMessages{rows: []*models.PrivateMessage{
		{ID: "legacy-1", SenderID: bob.ID, ReceiverID: alice.ID, Content: "plain old text", Timestamp: time.Now()},
	}}
	r := newTestRouter(t, users, &fakeGroupMembers{byGroup: map[string][]*models.GroupMember{}}, pm, &fakeGroupMessages{}, presence.NewRegistry(), broadcast.NewLocalBus())

	lines, err := r.GetPrivateHistory(context.Background(), alice.ID, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, "plain old text", lines[0].Content)
}
