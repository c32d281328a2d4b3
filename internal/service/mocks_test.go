package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"whatsgate/internal/models"
	"whatsgate/pkg/waproto/types"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeDirectory is an in-memory Directory with the same upsert semantics as
// the real store: partial updates preserve fields, message re-saves only
// change status, last_activity is monotonic.
type fakeDirectory struct {
	mu              sync.Mutex
	contacts        map[string]*models.Contact
	chats           map[string]*models.Chat
	groups          map[string]*models.Group
	groupMembers    map[string][]models.GroupMember
	channels        map[string]*models.Channel
	channelMembers  map[string][]models.ChannelMember
	media           map[int64]*models.StoredMedia
	messages        map[string]*models.Message
	channelMessages map[string]*models.ChannelMessage
	nextMediaID     int64

	failSaveMessage int
	saveMessageErr  error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		contacts:        make(map[string]*models.Contact),
		chats:           make(map[string]*models.Chat),
		groups:          make(map[string]*models.Group),
		groupMembers:    make(map[string][]models.GroupMember),
		channels:        make(map[string]*models.Channel),
		channelMembers:  make(map[string][]models.ChannelMember),
		media:           make(map[int64]*models.StoredMedia),
		messages:        make(map[string]*models.Message),
		channelMessages: make(map[string]*models.ChannelMessage),
	}
}

func (f *fakeDirectory) UpsertContact(ctx context.Context, contact *models.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.contacts[contact.ID]
	if !ok {
		clone := *contact
		f.contacts[contact.ID] = &clone
		return nil
	}
	if contact.Name != nil {
		existing.Name = contact.Name
	}
	if contact.PushName != nil {
		existing.PushName = contact.PushName
	}
	if contact.LastSeen != nil {
		existing.LastSeen = contact.LastSeen
	}
	existing.IsKnownUser = contact.IsKnownUser
	return nil
}

func (f *fakeDirectory) UpsertChat(ctx context.Context, chat *models.Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.chats[chat.ID]
	if !ok {
		clone := *chat
		f.chats[chat.ID] = &clone
		return nil
	}
	if chat.Subject != nil {
		existing.Subject = chat.Subject
	}
	if chat.LastMessageID != nil {
		existing.LastMessageID = chat.LastMessageID
	}
	existing.IsGroup = chat.IsGroup
	existing.UnreadCount = chat.UnreadCount
	if chat.LastActivity.After(existing.LastActivity) {
		existing.LastActivity = chat.LastActivity
	}
	return nil
}

func (f *fakeDirectory) TouchChat(ctx context.Context, chat *models.Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.chats[chat.ID]
	if !ok {
		clone := *chat
		clone.UnreadCount = 0
		f.chats[chat.ID] = &clone
		return nil
	}
	if chat.Subject != nil {
		existing.Subject = chat.Subject
	}
	if chat.LastMessageID != nil {
		existing.LastMessageID = chat.LastMessageID
	}
	existing.IsGroup = chat.IsGroup
	if chat.LastActivity.After(existing.LastActivity) {
		existing.LastActivity = chat.LastActivity
	}
	return nil
}

func (f *fakeDirectory) UpsertGroup(ctx context.Context, group *models.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.groups[group.ID]
	if !ok {
		clone := *group
		f.groups[group.ID] = &clone
		return nil
	}
	if group.Subject != nil {
		existing.Subject = group.Subject
	}
	return nil
}

func (f *fakeDirectory) ReplaceGroupMembers(ctx context.Context, groupID string, members []models.GroupMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupMembers[groupID] = append([]models.GroupMember(nil), members...)
	return nil
}

func (f *fakeDirectory) CreateChannel(ctx context.Context, channel *models.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *channel
	f.channels[channel.ID] = &clone
	return nil
}

func (f *fakeDirectory) AddChannelMember(ctx context.Context, member *models.ChannelMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.channelMembers[member.ChannelID] {
		if m.ContactID == member.ContactID {
			return nil
		}
	}
	f.channelMembers[member.ChannelID] = append(f.channelMembers[member.ChannelID], *member)
	return nil
}

func (f *fakeDirectory) RemoveChannelMember(ctx context.Context, channelID, contactID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.channelMembers[channelID]
	out := members[:0]
	for _, m := range members {
		if m.ContactID != contactID {
			out = append(out, m)
		}
	}
	f.channelMembers[channelID] = out
	return nil
}

func (f *fakeDirectory) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.contacts[id]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, nil
}

func (f *fakeDirectory) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.chats[id]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, nil
}

func (f *fakeDirectory) GetChats(ctx context.Context) ([]models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var chats []models.Chat
	for _, c := range f.chats {
		chats = append(chats, *c)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].LastActivity.After(chats[j].LastActivity) })
	return chats, nil
}

func (f *fakeDirectory) GetGroups(ctx context.Context) ([]models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var groups []models.Group
	for _, g := range f.groups {
		groups = append(groups, *g)
	}
	return groups, nil
}

func (f *fakeDirectory) GetGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.GroupMember(nil), f.groupMembers[groupID]...), nil
}

func (f *fakeDirectory) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.channels[id]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, nil
}

func (f *fakeDirectory) GetChannels(ctx context.Context) ([]models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var channels []models.Channel
	for _, c := range f.channels {
		channels = append(channels, *c)
	}
	return channels, nil
}

func (f *fakeDirectory) GetChannelMembers(ctx context.Context, channelID string) ([]models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var members []models.Contact
	for _, m := range f.channelMembers[channelID] {
		if c, ok := f.contacts[m.ContactID]; ok {
			members = append(members, *c)
		} else {
			members = append(members, models.Contact{ID: m.ContactID, IsKnownUser: true})
		}
	}
	return members, nil
}

func (f *fakeDirectory) SaveMedia(ctx context.Context, media *models.StoredMedia) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMediaID++
	clone := *media
	clone.ID = f.nextMediaID
	f.media[clone.ID] = &clone
	return clone.ID, nil
}

func (f *fakeDirectory) SaveMessage(ctx context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSaveMessage > 0 {
		f.failSaveMessage--
		if f.saveMessageErr != nil {
			return f.saveMessageErr
		}
		return fmt.Errorf("database is locked")
	}

	if existing, ok := f.messages[msg.ID]; ok {
		existing.Status = msg.Status
		return nil
	}
	clone := *msg
	f.messages[msg.ID] = &clone
	return nil
}

func (f *fakeDirectory) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[id]; ok {
		clone := *m
		return &clone, nil
	}
	return nil, nil
}

func (f *fakeDirectory) GetMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var messages []models.Message
	for _, m := range f.messages {
		if m.ChatID == chatID {
			messages = append(messages, *m)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].Timestamp.After(messages[j].Timestamp) })
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (f *fakeDirectory) SaveChannelMessage(ctx context.Context, msg *models.ChannelMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *msg
	f.channelMessages[msg.ID] = &clone
	return nil
}

func (f *fakeDirectory) GetChannelMessages(ctx context.Context, channelID string, limit int) ([]models.ChannelMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var messages []models.ChannelMessage
	for _, m := range f.channelMessages {
		if m.ChannelID == channelID {
			messages = append(messages, *m)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].Timestamp.After(messages[j].Timestamp) })
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// fakeMedia returns a canned descriptor, or nil to simulate fetch failure.
type fakeMedia struct {
	mu      sync.Mutex
	stored  *models.StoredMedia
	fetches []string
}

func (f *fakeMedia) FetchFromRemote(ctx context.Context, url, mimeType string) *models.StoredMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, url)
	if f.stored == nil {
		return nil
	}
	clone := *f.stored
	return &clone
}

// fakeLinks records pushed link batches.
type fakeLinks struct {
	pushed chan []string
}

func newFakeLinks() *fakeLinks {
	return &fakeLinks{pushed: make(chan []string, 8)}
}

func (f *fakeLinks) Push(ctx context.Context, links []string) error {
	f.pushed <- links
	return nil
}

type sentText struct {
	chatID string
	text   string
}

// fakeTransport scripts the transport: Dial hands out pre-built event
// channels in order, sends are recorded.
type fakeTransport struct {
	mu        sync.Mutex
	streams   []chan types.Event
	dialErrs  []error
	dialCount int

	sendErrFor map[string]error
	sendResult *types.SendResult
	sent       []sentText

	groupMeta *types.GroupMetadata
	groupErr  error

	loggedOut bool
	closed    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sendErrFor: make(map[string]error)}
}

func (f *fakeTransport) addStream() chan types.Event {
	ch := make(chan types.Event, 16)
	f.mu.Lock()
	f.streams = append(f.streams, ch)
	f.mu.Unlock()
	return ch
}

func (f *fakeTransport) Dial(ctx context.Context) (<-chan types.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dialCount++
	if len(f.dialErrs) > 0 {
		err := f.dialErrs[0]
		f.dialErrs = f.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.streams) == 0 {
		ch := make(chan types.Event)
		close(ch)
		return ch, nil
	}
	ch := f.streams[0]
	f.streams = f.streams[1:]

	// Mirror the real transport: the delivered channel ends when the dial
	// context is cancelled, not only when the script closes it.
	out := make(chan types.Event, 16)
	go func() {
		defer close(out)
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *fakeTransport) SendText(ctx context.Context, chatID, text string) (*types.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.sendErrFor[chatID]; err != nil {
		return nil, err
	}
	f.sent = append(f.sent, sentText{chatID: chatID, text: text})
	if f.sendResult != nil {
		clone := *f.sendResult
		return &clone, nil
	}
	return &types.SendResult{MessageID: fmt.Sprintf("OUT%d", len(f.sent))}, nil
}

func (f *fakeTransport) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		out = append(out, s.chatID)
	}
	return out
}

func (f *fakeTransport) GroupMetadata(ctx context.Context, groupID string) (*types.GroupMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	return f.groupMeta, nil
}

func (f *fakeTransport) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
