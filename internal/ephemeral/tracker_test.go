package ephemeral_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"filterbot/backend/internal/ephemeral"
	"filterbot/backend/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// MockDeleter records deletions and lets tests block on them.
type MockDeleter struct {
	mock.Mock
	deleted chan ephemeral.Key
}

func newMockDeleter() *MockDeleter {
	return &MockDeleter{deleted: make(chan ephemeral.Key, 16)}
}

func (m *MockDeleter) DeleteMessage(ctx context.Context, room models.RoomID, messageID int) error {
	args := m.Called(room, messageID)
	m.deleted <- ephemeral.Key{Room: room, MessageID: messageID}
	return args.Error(0)
}

func (m *MockDeleter) waitDeleted(t *testing.T) ephemeral.Key {
	t.Helper()
	select {
	case k := <-m.deleted:
		return k
	case <-time.After(2 * time.Second):
		t.Fatal("deletion did not happen")
		return ephemeral.Key{}
	}
}

func (m *MockDeleter) assertNoMoreDeletes(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case k := <-m.deleted:
		t.Fatalf("unexpected deletion of %+v", k)
	case <-time.After(within):
	}
}

const room = models.RoomID(-100500)

func TestTracker_DeletesAfterDelay(t *testing.T) {
	d := newMockDeleter()
	d.On("DeleteMessage", room, 10).Return(nil).Once()
	tr := ephemeral.NewTracker(d, zerolog.Nop())
	defer tr.Stop()

	tr.ScheduleAfter(room, 10, 20*time.Millisecond)
	assert.True(t, tr.Scheduled(room, 10))

	got := d.waitDeleted(t)
	assert.Equal(t, ephemeral.Key{Room: room, MessageID: 10}, got)
	assert.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)
	d.AssertExpectations(t)
}

func TestTracker_NonPositiveDelayIsNoop(t *testing.T) {
	d := newMockDeleter()
	tr := ephemeral.NewTracker(d, zerolog.Nop())
	defer tr.Stop()

	tr.Schedule(room, 1, 0)
	tr.Schedule(room, 2, -5)
	tr.ScheduleAfter(room, 3, 0)

	assert.Zero(t, tr.Len())
	d.assertNoMoreDeletes(t, 50*time.Millisecond)
}

func TestTracker_DelayBeyondDurationRangeIsRefused(t *testing.T) {
	d := newMockDeleter()
	tr := ephemeral.NewTracker(d, zerolog.Nop())
	defer tr.Stop()

	// 18446744074s * time.Second wraps to roughly 0.29s.
	tr.Schedule(room, 5, 18446744074)
	tr.Schedule(room, 6, int(ephemeral.MaxDelaySeconds)+1)

	assert.Zero(t, tr.Len())
	d.assertNoMoreDeletes(t, 500*time.Millisecond)
	d.AssertNotCalled(t, "DeleteMessage", room, 5)
}

func TestTracker_LargestDelayIsScheduled(t *testing.T) {
	d := newMockDeleter()
	tr := ephemeral.NewTracker(d, zerolog.Nop())
	defer tr.Stop()

	tr.Schedule(room, 7, int(ephemeral.MaxDelaySeconds))
	assert.True(t, tr.Scheduled(room, 7))
}

func TestTracker_RescheduleKeepsOneTimer(t *testing.T) {
	d := newMockDeleter()
	d.On("DeleteMessage", room, 1).Return(nil).Once()
	tr := ephemeral.NewTracker(d, zerolog.Nop())
	defer tr.Stop()

	tr.ScheduleAfter(room, 1, 30*time.Millisecond)
	tr.ScheduleAfter(room, 1, 40*time.Millisecond)
	assert.Equal(t, 1, tr.Len())

	d.waitDeleted(t)
	d.assertNoMoreDeletes(t, 100*time.Millisecond)
	d.AssertNumberOfCalls(t, "DeleteMessage", 1)
}

func TestTracker_Cancel(t *testing.T) {
	d := newMockDeleter()
	tr := ephemeral.NewTracker(d, zerolog.Nop())
	defer tr.Stop()

	tr.ScheduleAfter(room, 5, 30*time.Millisecond)
	tr.Cancel(room, 5)
	tr.Cancel(room, 5)
	tr.Cancel(room, 404)

	assert.False(t, tr.Scheduled(room, 5))
	d.assertNoMoreDeletes(t, 80*time.Millisecond)
	d.AssertNotCalled(t, "DeleteMessage", room, 5)
}

func TestTracker_SameMessageIDInOtherRoomIsIndependent(t *testing.T) {
	d := newMockDeleter()
	other := models.RoomID(12)
	d.On("DeleteMessage", other, 5).Return(nil).Once()
	tr := ephemeral.NewTracker(d, zerolog.Nop())
	defer tr.Stop()

	tr.ScheduleAfter(room, 5, time.Hour)
	tr.ScheduleAfter(other, 5, 10*time.Millisecond)

	got := d.waitDeleted(t)
	assert.Equal(t, other, got.Room)
	assert.True(t, tr.Scheduled(room, 5))
}

func TestTracker_FailedDeleteStillClearsEntry(t *testing.T) {
	d := newMockDeleter()
	d.On("DeleteMessage", room, 9).Return(errors.New("Bad Request: message to delete not found")).Once()
	tr := ephemeral.NewTracker(d, zerolog.Nop())
	defer tr.Stop()

	tr.ScheduleAfter(room, 9, 10*time.Millisecond)
	d.waitDeleted(t)

	assert.Eventually(t, func() bool { return !tr.Scheduled(room, 9) }, time.Second, 5*time.Millisecond)
}

func TestTracker_StopCancelsPending(t *testing.T) {
	d := newMockDeleter()
	tr := ephemeral.NewTracker(d, zerolog.Nop())

	for i := 0; i < 5; i++ {
		tr.ScheduleAfter(room, i, time.Hour)
	}
	tr.Stop()

	assert.Zero(t, tr.Len())
	tr.ScheduleAfter(room, 99, time.Millisecond)
	assert.Zero(t, tr.Len(), "stopped tracker accepts no work")
}

func TestTracker_ConcurrentScheduleAndCancel(t *testing.T) {
	d := newMockDeleter()
	d.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil)
	tr := ephemeral.NewTracker(d, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr.ScheduleAfter(room, j%10, time.Hour)
				if j%3 == 0 {
					tr.Cancel(room, j%10)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, tr.Len(), 10)
	tr.Stop()
	assert.Zero(t, tr.Len())
}
