package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/flightguild/bot/internal/chat"
	"example.com/flightguild/bot/internal/models"
	"example.com/flightguild/bot/internal/scheduler"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
)

// MockDispatcher is a mock implementation of chat.Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) AddRole(ctx context.Context, memberID, roleID string) error {
	args := m.Called(ctx, memberID, roleID)
	return args.Error(0)
}

func (m *MockDispatcher) RemoveRole(ctx context.Context, memberID, roleID string) error {
	args := m.Called(ctx, memberID, roleID)
	return args.Error(0)
}

func (m *MockDispatcher) FetchMember(ctx context.Context, memberID string) (*chat.Member, error) {
	args := m.Called(ctx, memberID)
	member, _ := args.Get(0).(*chat.Member)
	return member, args.Error(1)
}

func (m *MockDispatcher) SendDirectMessage(ctx context.Context, userID string, msg chat.Message) error {
	args := m.Called(ctx, userID, msg)
	return args.Error(0)
}

func (m *MockDispatcher) SendChannelMessage(ctx context.Context, channelID string, msg chat.Message) (models.MessageRef, error) {
	args := m.Called(ctx, channelID, msg)
	return args.Get(0).(models.MessageRef), args.Error(1)
}

func (m *MockDispatcher) EditMessage(ctx context.Context, ref models.MessageRef, msg chat.Message) error {
	args := m.Called(ctx, ref, msg)
	return args.Error(0)
}

func (m *MockDispatcher) DeleteMessage(ctx context.Context, ref models.MessageRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockDispatcher) MessageExists(ctx context.Context, ref models.MessageRef) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

// MockBanStore is a mock implementation of repositories.BanStore
type MockBanStore struct {
	mock.Mock
}

func (m *MockBanStore) Put(ctx context.Context, subjectID string, expiresAt time.Time) error {
	args := m.Called(ctx, subjectID, expiresAt)
	return args.Error(0)
}

func (m *MockBanStore) Remove(ctx context.Context, subjectID string) error {
	args := m.Called(ctx, subjectID)
	return args.Error(0)
}

func (m *MockBanStore) Get(ctx context.Context, subjectID string) (models.BanRecord, bool, error) {
	args := m.Called(ctx, subjectID)
	return args.Get(0).(models.BanRecord), args.Bool(1), args.Error(2)
}

func (m *MockBanStore) IsActive(ctx context.Context, subjectID string, now time.Time) (bool, error) {
	args := m.Called(ctx, subjectID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockBanStore) LoadAll(ctx context.Context) ([]models.BanRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]models.BanRecord)
	return records, args.Error(1)
}

// manualScheduler runs keyed tasks when the test advances its fake clock
type manualScheduler struct {
	clock *clockwork.FakeClock

	mu    sync.Mutex
	seq   int
	tasks map[string]manualTask
}

type manualTask struct {
	at  time.Time
	seq int
	run scheduler.Task
}

func newManualScheduler(clock *clockwork.FakeClock) *manualScheduler {
	return &manualScheduler{clock: clock, tasks: make(map[string]manualTask)}
}

func (m *manualScheduler) Schedule(key string, at time.Time, task scheduler.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.tasks[key] = manualTask{at: at, seq: m.seq, run: task}
	return nil
}

func (m *manualScheduler) Cancel(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[key]
	delete(m.tasks, key)
	return ok
}

func (m *manualScheduler) Pending(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[key]
	return ok
}

// At returns the instant the task under key is armed for
func (m *manualScheduler) At(key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[key]
	return t.at, ok
}

// Advance moves the clock forward by d, stopping at every due task in order and running it
func (m *manualScheduler) Advance(ctx context.Context, d time.Duration) {
	target := m.clock.Now().Add(d)
	for {
		task, ok := m.popDue(target)
		if !ok {
			break
		}
		if task.at.After(m.clock.Now()) {
			m.clock.Advance(task.at.Sub(m.clock.Now()))
		}
		task.run(ctx)
	}
	if target.After(m.clock.Now()) {
		m.clock.Advance(target.Sub(m.clock.Now()))
	}
}

func (m *manualScheduler) popDue(target time.Time) (manualTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []string
	for key, t := range m.tasks {
		if !t.at.After(target) {
			due = append(due, key)
		}
	}
	if len(due) == 0 {
		return manualTask{}, false
	}
	sort.Slice(due, func(i, j int) bool {
		a, b := m.tasks[due[i]], m.tasks[due[j]]
		if a.at.Equal(b.at) {
			return a.seq < b.seq
		}
		return a.at.Before(b.at)
	})
	task := m.tasks[due[0]]
	delete(m.tasks, due[0])
	return task, true
}
