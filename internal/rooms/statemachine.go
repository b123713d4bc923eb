// Package rooms implements the room registry, the session state machine,
// and the auto-timer driver. Locking discipline: the registry's own mutex
// guards only the top-level code/room/player index maps; every mutable
// field on a Room or its Players is guarded by that room's own
// *sync.RWMutex, obtained once per room and held for the duration of a
// mutation.
package rooms

import (
	"time"

	"github.com/classroom-sim/session-coordinator/internal/apperr"
	"github.com/classroom-sim/session-coordinator/pkg/types"
)

// SystemIdentity is the caller identity the Auto-Timer Driver presents when
// it issues advance-day on a room's behalf, bypassing the
// teacher-identity check.
const SystemIdentity = "__system__"

// checkAuthorized enforces the teacher-command identity check: only the
// room's creator (or the system identity) may start, advance, end, or
// re-time a room.
func checkAuthorized(room *types.Room, caller string) error {
	if caller == SystemIdentity {
		return nil
	}
	if caller == "" || caller != room.CreatorName {
		return apperr.New(apperr.NotAuthorized, "%q is not the creator of room %s", caller, room.Code)
	}
	return nil
}

// applyStart transitions a room from waiting to in_progress. Requires
// status == waiting; replaying start on an already-started room is
// rejected.
func applyStart(room *types.Room, now time.Time) error {
	if room.Status != types.RoomStatusWaiting {
		return apperr.New(apperr.InvalidTransition, "cannot start room %s in status %s", room.Code, room.Status)
	}
	room.Status = types.RoomStatusInProgress
	room.CurrentDay = 0
	room.StartedAt = &now
	room.DayStartedAt = &now
	return nil
}

// applyEndGame transitions a room to finished. Idempotent: ending an
// already-finished room is a no-op success.
func applyEndGame(room *types.Room, now time.Time) {
	if room.Status == types.RoomStatusFinished {
		return
	}
	room.Status = types.RoomStatusFinished
	room.EndedAt = &now
}

// applySetTimer updates a room's day time limit and re-anchors
// day_started_at to now.
func applySetTimer(room *types.Room, durationSeconds int, now time.Time) error {
	if room.Status == types.RoomStatusFinished {
		return apperr.New(apperr.RoomFinished, "room %s has finished", room.Code)
	}
	room.DayTimeLimit = &durationSeconds
	room.DayStartedAt = &now
	return nil
}

// advanceOutcome describes what an advance-day call actually did, so the
// registry knows whether to step players and the shared AI shadow.
type advanceOutcome struct {
	Advanced     bool
	JustFinished bool
	PrevDay      int
	NewDay       int
}

// applyAdvanceDay advances a sync or sync_auto room by one day, finishing
// the room when the last day is reached. observedDay is the current_day
// the caller saw before acquiring the lock; if the room
// has already moved past it, this call is a race-loser and collapses to a
// no-op success instead of double-advancing.
func applyAdvanceDay(room *types.Room, numDays, observedDay int, now time.Time) (advanceOutcome, error) {
	if room.Mode == types.GameModeAsync {
		return advanceOutcome{}, apperr.New(apperr.InvalidTransition,
			"advance-day does not apply to async rooms; players self-advance via update-player-state")
	}
	if room.Status == types.RoomStatusFinished {
		return advanceOutcome{Advanced: false}, nil
	}
	if room.Status != types.RoomStatusInProgress {
		return advanceOutcome{}, apperr.New(apperr.InvalidTransition, "cannot advance room %s in status %s", room.Code, room.Status)
	}
	if room.CurrentDay != observedDay {
		return advanceOutcome{Advanced: false}, nil
	}

	prevDay := room.CurrentDay
	if prevDay+1 >= numDays {
		room.Status = types.RoomStatusFinished
		room.CurrentDay = numDays
		room.EndedAt = &now
		return advanceOutcome{Advanced: true, JustFinished: true, PrevDay: prevDay, NewDay: numDays}, nil
	}

	room.CurrentDay = prevDay + 1
	room.DayStartedAt = &now
	return advanceOutcome{Advanced: true, PrevDay: prevDay, NewDay: room.CurrentDay}, nil
}

// timerDeadlinePassed reports whether a sync_auto room's current day has run
// past its configured duration, recomputed from persisted day_started_at so
// an Auto-Timer Driver restart resumes correctly.
func timerDeadlinePassed(room *types.Room, now time.Time) bool {
	if room.Mode != types.GameModeSyncAuto || room.Status != types.RoomStatusInProgress {
		return false
	}
	if room.DayStartedAt == nil || room.DayTimeLimit == nil {
		return false
	}
	deadline := room.DayStartedAt.Add(time.Duration(*room.DayTimeLimit) * time.Second)
	return !now.Before(deadline)
}
