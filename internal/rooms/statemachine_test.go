package rooms

import (
	"testing"
	"time"

	"github.com/classroom-sim/session-coordinator/internal/apperr"
	"github.com/classroom-sim/session-coordinator/pkg/types"
)

func waitingRoom(mode types.GameMode, numDays int) *types.Room {
	return &types.Room{
		Code:        "ABC123",
		CreatorName: "ms-rivera",
		Mode:        mode,
		Status:      types.RoomStatusWaiting,
		Config:      types.RoomConfig{NumDays: numDays},
	}
}

func TestStartRejectsReplay(t *testing.T) {
	room := waitingRoom(types.GameModeSync, 3)
	now := time.Now()

	if err := applyStart(room, now); err != nil {
		t.Fatalf("applyStart: %v", err)
	}
	if room.Status != types.RoomStatusInProgress || room.CurrentDay != 0 {
		t.Fatalf("unexpected room after start: %+v", room)
	}

	err := applyStart(room, now)
	if apperr.KindOf(err) != apperr.InvalidTransition {
		t.Fatalf("expected InvalidTransition replaying start, got %v", err)
	}
}

// TestSingleDaySessionFinishesOnFirstAdvance: a session of length 1 ends
// on the first advance-day.
func TestSingleDaySessionFinishesOnFirstAdvance(t *testing.T) {
	room := waitingRoom(types.GameModeSync, 1)
	now := time.Now()
	if err := applyStart(room, now); err != nil {
		t.Fatalf("applyStart: %v", err)
	}

	outcome, err := applyAdvanceDay(room, 1, 0, now)
	if err != nil {
		t.Fatalf("applyAdvanceDay: %v", err)
	}
	if !outcome.Advanced || !outcome.JustFinished {
		t.Fatalf("expected a finishing advance, got %+v", outcome)
	}
	if room.Status != types.RoomStatusFinished || room.CurrentDay != 1 {
		t.Fatalf("expected finished at current_day 1, got %+v", room)
	}
	if room.EndedAt == nil {
		t.Fatal("expected end timestamp to be recorded")
	}
}

// TestAdvanceSequenceIsMonotone: after k advances from start, current_day ==
// min(k, num_days) and finished iff current_day == num_days.
func TestAdvanceSequenceIsMonotone(t *testing.T) {
	const numDays = 3
	room := waitingRoom(types.GameModeSyncAuto, numDays)
	now := time.Now()
	if err := applyStart(room, now); err != nil {
		t.Fatalf("applyStart: %v", err)
	}

	for k := 1; k <= numDays+2; k++ {
		if _, err := applyAdvanceDay(room, numDays, room.CurrentDay, now); err != nil {
			t.Fatalf("advance %d: %v", k, err)
		}
		want := k
		if want > numDays {
			want = numDays
		}
		if room.CurrentDay != want {
			t.Fatalf("after %d advances expected current_day %d, got %d", k, want, room.CurrentDay)
		}
		finished := room.Status == types.RoomStatusFinished
		if finished != (room.CurrentDay == numDays) {
			t.Fatalf("finished=%v inconsistent with current_day=%d", finished, room.CurrentDay)
		}
	}
}

// TestStaleObservedDayCollapsesToNoOp: a caller whose observed day is behind
// the room's returns success without advancing.
func TestStaleObservedDayCollapsesToNoOp(t *testing.T) {
	room := waitingRoom(types.GameModeSync, 5)
	now := time.Now()
	if err := applyStart(room, now); err != nil {
		t.Fatalf("applyStart: %v", err)
	}
	if _, err := applyAdvanceDay(room, 5, 0, now); err != nil {
		t.Fatalf("first advance: %v", err)
	}

	outcome, err := applyAdvanceDay(room, 5, 0, now)
	if err != nil {
		t.Fatalf("stale advance: %v", err)
	}
	if outcome.Advanced {
		t.Fatal("expected stale advance to be a no-op")
	}
	if room.CurrentDay != 1 {
		t.Fatalf("expected current_day 1, got %d", room.CurrentDay)
	}
}

func TestSetTimerRejectedOnFinishedRoom(t *testing.T) {
	room := waitingRoom(types.GameModeSyncAuto, 1)
	now := time.Now()
	applyEndGame(room, now)

	err := applySetTimer(room, 30, now)
	if apperr.KindOf(err) != apperr.RoomFinished {
		t.Fatalf("expected RoomFinished, got %v", err)
	}
}

func TestTimerDeadline(t *testing.T) {
	now := time.Now()
	started := now.Add(-10 * time.Second)
	limit := 5

	room := waitingRoom(types.GameModeSyncAuto, 3)
	room.Status = types.RoomStatusInProgress
	room.DayStartedAt = &started
	room.DayTimeLimit = &limit

	if !timerDeadlinePassed(room, now) {
		t.Fatal("expected deadline to have passed")
	}

	fresh := now.Add(-2 * time.Second)
	room.DayStartedAt = &fresh
	if timerDeadlinePassed(room, now) {
		t.Fatal("expected deadline not to have passed")
	}

	room.Mode = types.GameModeSync
	room.DayStartedAt = &started
	if timerDeadlinePassed(room, now) {
		t.Fatal("sync-mode timers are advisory and never fire the driver")
	}
}
