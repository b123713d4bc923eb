package rooms

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/classroom-sim/session-coordinator/internal/apperr"
	"github.com/classroom-sim/session-coordinator/internal/marketdata"
	"github.com/classroom-sim/session-coordinator/internal/simulation"
	"github.com/classroom-sim/session-coordinator/pkg/types"
	"github.com/classroom-sim/session-coordinator/pkg/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdvanceHook is invoked after a start, set-timer, advance-day or end-game
// that changed the room, letting the WebSocket hub mirror the new RoomState without the registry
// depending on the transport package.
type AdvanceHook func(room types.Room)

// Metrics is the narrow counter surface the registry and Auto-Timer Driver
// emit to, satisfied by internal/metrics.Metrics.
type Metrics interface {
	RoomCreated()
	RoomFinished()
	AdvanceDay()
	AutoTimerFire()
}

// roomShadow is the single AI shadow simulation shared by every player in a
// room. It is player-independent: every player sees the same
// recommendations and starts with the same initial cash, so the AI's
// trajectory is a property of the room, not of any one player.
type roomShadow struct {
	state      *simulation.ShadowState
	steppedDay int // recommendations for days [0, steppedDay) have been applied
}

type roomEntry struct {
	room    *types.Room
	players []uuid.UUID
	window  []types.MarketDay
	shadow  *roomShadow
}

// Registry is the process-wide room registry. It uses one lock per room so
// unrelated rooms never contend: registryMu guards only the top-level index
// maps below; every field on a stored Room or Player is guarded by that
// room's own *sync.RWMutex, obtained via lockRoom and held for the duration
// of a read or mutation.
type Registry struct {
	registryMu sync.RWMutex
	logger     *zap.Logger
	market     *marketdata.Store
	metrics    Metrics

	rooms       map[uuid.UUID]*roomEntry
	codeIndex   map[string]uuid.UUID // code -> most recent room ID issued that code
	activeCodes map[string]bool      // codes of rooms not yet finished; guards uniqueness
	players     map[uuid.UUID]*types.Player
	roomLocks   map[uuid.UUID]*sync.RWMutex

	hookMu    sync.RWMutex
	onAdvance AdvanceHook
}

// NewRegistry creates an empty room registry backed by the given market
// data reader.
func NewRegistry(logger *zap.Logger, market *marketdata.Store, metrics Metrics) *Registry {
	return &Registry{
		logger:      logger,
		market:      market,
		metrics:     metrics,
		rooms:       make(map[uuid.UUID]*roomEntry),
		codeIndex:   make(map[string]uuid.UUID),
		activeCodes: make(map[string]bool),
		players:     make(map[uuid.UUID]*types.Player),
		roomLocks:   make(map[uuid.UUID]*sync.RWMutex),
	}
}

// OnAdvance registers a hook invoked, outside any room lock, after every
// successful Start and SetTimer call, and after AdvanceDay and EndGame calls
// that changed the room (a collapsed advance or a replayed end-game does not
// invoke it).
func (r *Registry) OnAdvance(hook AdvanceHook) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.onAdvance = hook
}

func (r *Registry) notify(room types.Room) {
	r.hookMu.RLock()
	hook := r.onAdvance
	r.hookMu.RUnlock()
	if hook != nil {
		hook(room)
	}
}

// releaseCode frees a finished room's code for reuse by future Create
// calls. The code stays in codeIndex so lookups on the finished room keep
// working until the code is actually reissued.
func (r *Registry) releaseCode(code string) {
	r.registryMu.Lock()
	delete(r.activeCodes, code)
	r.registryMu.Unlock()
}

func (r *Registry) lockRoom(id uuid.UUID) *sync.RWMutex {
	r.registryMu.RLock()
	defer r.registryMu.RUnlock()
	return r.roomLocks[id]
}

// entryByCode resolves a room code to its entry under the registry-wide
// read lock only; callers must separately take the room's own lock before
// reading or mutating entry.room / entry.players / entry.shadow.
func (r *Registry) entryByCode(code string) (*roomEntry, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	r.registryMu.RLock()
	defer r.registryMu.RUnlock()
	id, ok := r.codeIndex[code]
	if !ok {
		return nil, apperr.New(apperr.RoomNotFound, "no room with code %s", code)
	}
	entry, ok := r.rooms[id]
	if !ok {
		return nil, apperr.New(apperr.RoomNotFound, "no room with code %s", code)
	}
	return entry, nil
}

func (r *Registry) allEntries() []*roomEntry {
	r.registryMu.RLock()
	defer r.registryMu.RUnlock()
	entries := make([]*roomEntry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	return entries
}

func validateConfig(cfg *types.RoomConfig) error {
	if cfg.InitialCash.IsZero() {
		cfg.InitialCash = types.DefaultInitialCash
	}
	cfg.InitialCash = utils.ClampDecimal(cfg.InitialCash, decimal.NewFromInt(1), decimal.NewFromInt(10_000_000))

	if cfg.NumDays < 1 {
		return apperr.New(apperr.InvalidRequest, "num_days must be >= 1")
	}
	if len(cfg.Tickers) == 0 {
		return apperr.New(apperr.InvalidRequest, "tickers must be non-empty")
	}
	normalized := make([]string, len(cfg.Tickers))
	for i, t := range cfg.Tickers {
		normalized[i] = utils.NormalizeTicker(t)
	}
	cfg.Tickers = normalized

	switch cfg.Difficulty {
	case "":
		cfg.Difficulty = types.DifficultyMedium
	case types.DifficultyEasy, types.DifficultyMedium, types.DifficultyHard:
	default:
		return apperr.New(apperr.InvalidRequest, "unrecognized difficulty %q", cfg.Difficulty)
	}
	return nil
}

// Create allocates a new room: validates its configuration, fetches its
// market data window up front so a bad ticker/date combination fails at
// creation rather than mid-game, and reserves a unique room code.
func (r *Registry) Create(cfg types.RoomConfig, mode types.GameMode, creatorName, roomName string, startDate time.Time, dayDurationSeconds int) (*types.Room, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	switch mode {
	case types.GameModeAsync, types.GameModeSync, types.GameModeSyncAuto:
	default:
		return nil, apperr.New(apperr.InvalidRequest, "unrecognized game_mode %q", mode)
	}
	if mode == types.GameModeSyncAuto && dayDurationSeconds <= 0 {
		return nil, apperr.New(apperr.InvalidRequest, "sync_auto rooms require day_duration_seconds")
	}
	if creatorName == "" {
		return nil, apperr.New(apperr.InvalidRequest, "created_by is required")
	}
	if startDate.IsZero() {
		startDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	endDate := startDate.AddDate(0, 0, cfg.NumDays-1)

	window, err := r.market.GetSessionWindow(cfg.Tickers, startDate, endDate)
	if err != nil {
		return nil, err
	}

	room := &types.Room{
		ID:          uuid.New(),
		CreatorName: creatorName,
		RoomName:    roomName,
		Config:      cfg,
		Mode:        mode,
		Status:      types.RoomStatusWaiting,
		CurrentDay:  0,
		StartDate:   startDate,
		EndDate:     endDate,
		CreatedAt:   time.Now(),
	}
	if dayDurationSeconds > 0 {
		room.DayTimeLimit = &dayDurationSeconds
	}

	r.registryMu.Lock()
	code := ""
	for attempt := 0; attempt < 1000; attempt++ {
		candidate, genErr := generateCode()
		if genErr != nil {
			r.registryMu.Unlock()
			return nil, apperr.New(apperr.Unavailable, "failed to generate room code: %v", genErr)
		}
		if !r.activeCodes[candidate] {
			code = candidate
			break
		}
	}
	if code == "" {
		r.registryMu.Unlock()
		return nil, apperr.New(apperr.Unavailable, "failed to allocate a unique room code")
	}
	room.Code = code
	r.rooms[room.ID] = &roomEntry{
		room:   room,
		window: window,
		shadow: &roomShadow{state: simulation.NewShadowState(cfg.InitialCash)},
	}
	r.codeIndex[code] = room.ID
	r.activeCodes[code] = true
	r.roomLocks[room.ID] = &sync.RWMutex{}
	r.registryMu.Unlock()

	if r.metrics != nil {
		r.metrics.RoomCreated()
	}
	r.logger.Info("room created",
		zap.String("code", code),
		zap.String("mode", string(mode)),
		zap.String("initial_cash", utils.FormatMoney(cfg.InitialCash)),
	)

	cp := *room
	return &cp, nil
}

// Join adds a player to a room by code.
func (r *Registry) Join(code, playerName, playerEmail string) (*types.Player, error) {
	entry, err := r.entryByCode(code)
	if err != nil {
		return nil, err
	}
	if playerName == "" {
		return nil, apperr.New(apperr.InvalidRequest, "player_name is required")
	}
	if playerEmail != "" && !utils.ValidateEmail(playerEmail) {
		return nil, apperr.New(apperr.InvalidRequest, "player_email is not a valid email address")
	}

	lock := r.lockRoom(entry.room.ID)
	lock.Lock()
	defer lock.Unlock()

	if entry.room.Status == types.RoomStatusFinished {
		return nil, apperr.New(apperr.RoomFinished, "room %s has finished", entry.room.Code)
	}
	if entry.room.Mode != types.GameModeAsync && entry.room.Status != types.RoomStatusWaiting {
		return nil, apperr.New(apperr.RoomInProgress, "room %s has already started", entry.room.Code)
	}

	player := &types.Player{
		ID:          uuid.New(),
		RoomID:      entry.room.ID,
		Name:        playerName,
		Email:       playerEmail,
		InitialCash: entry.room.Config.InitialCash,
		Cash:        entry.room.Config.InitialCash,
		Holdings:    make(map[string]types.Holding),
		JoinedAt:    time.Now(),
	}

	r.registryMu.Lock()
	r.players[player.ID] = player
	r.registryMu.Unlock()
	entry.players = append(entry.players, player.ID)

	cp := *player
	return &cp, nil
}

// Get returns a snapshot of a room by code.
func (r *Registry) Get(code string) (*types.Room, error) {
	entry, err := r.entryByCode(code)
	if err != nil {
		return nil, err
	}
	lock := r.lockRoom(entry.room.ID)
	lock.RLock()
	defer lock.RUnlock()
	cp := *entry.room
	return &cp, nil
}

// List returns a summary of every known room, optionally filtered by
// status, ordered by creation time.
func (r *Registry) List(statusFilter types.RoomStatus) []types.RoomSummary {
	entries := r.allEntries()

	summaries := make([]types.RoomSummary, 0, len(entries))
	for _, e := range entries {
		lock := r.lockRoom(e.room.ID)
		lock.RLock()
		if statusFilter == "" || e.room.Status == statusFilter {
			summaries = append(summaries, types.RoomSummary{
				Code:        e.room.Code,
				RoomName:    e.room.RoomName,
				CreatorName: e.room.CreatorName,
				Status:      e.room.Status,
				Mode:        e.room.Mode,
				NumDays:     e.room.Config.NumDays,
				CurrentDay:  e.room.CurrentDay,
				PlayerCount: len(e.players),
				CreatedAt:   e.room.CreatedAt,
			})
		}
		lock.RUnlock()
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].CreatedAt.Before(summaries[j].CreatedAt) })
	return summaries
}

// Start begins a room's session.
func (r *Registry) Start(code, startedBy string) (*types.Room, error) {
	entry, err := r.entryByCode(code)
	if err != nil {
		return nil, err
	}

	lock := r.lockRoom(entry.room.ID)
	lock.Lock()
	opErr := checkAuthorized(entry.room, startedBy)
	if opErr == nil {
		opErr = applyStart(entry.room, time.Now())
	}
	var cp types.Room
	if opErr == nil {
		cp = *entry.room
	}
	lock.Unlock()

	if opErr != nil {
		return nil, opErr
	}
	r.notify(cp)
	return &cp, nil
}

// SetTimer sets or updates a room's per-day time limit and re-anchors the
// current day's start time.
func (r *Registry) SetTimer(code, initiatedBy string, durationSeconds int) (*types.Room, error) {
	entry, err := r.entryByCode(code)
	if err != nil {
		return nil, err
	}

	lock := r.lockRoom(entry.room.ID)
	lock.Lock()
	opErr := checkAuthorized(entry.room, initiatedBy)
	if opErr == nil {
		opErr = applySetTimer(entry.room, durationSeconds, time.Now())
	}
	var cp types.Room
	if opErr == nil {
		cp = *entry.room
	}
	lock.Unlock()

	if opErr != nil {
		return nil, opErr
	}
	r.notify(cp)
	return &cp, nil
}

// EndGame ends a room's session. Idempotent: ending a
// room that already finished succeeds without side effects.
func (r *Registry) EndGame(code, endedBy string) (*types.Room, error) {
	entry, err := r.entryByCode(code)
	if err != nil {
		return nil, err
	}

	lock := r.lockRoom(entry.room.ID)
	lock.Lock()
	if opErr := checkAuthorized(entry.room, endedBy); opErr != nil {
		lock.Unlock()
		return nil, opErr
	}
	wasFinished := entry.room.Status == types.RoomStatusFinished
	applyEndGame(entry.room, time.Now())
	cp := *entry.room
	lock.Unlock()

	if !wasFinished {
		r.releaseCode(cp.Code)
		if r.metrics != nil {
			r.metrics.RoomFinished()
		}
		r.notify(cp)
	}
	return &cp, nil
}

// stepShadowTo advances a room's shared AI shadow through recommendations
// for days [0, targetDay), settling each at the following day's open, and
// returns its current valuation snapshot. Must be called with the room's
// lock held for writing.
func (r *Registry) stepShadowTo(entry *roomEntry, targetDay int) types.AIBenchmarkSnapshot {
	sh := entry.shadow
	window := entry.window

	for sh.steppedDay < targetDay && sh.steppedDay < len(window) {
		day := window[sh.steppedDay]
		var next *types.MarketDay
		if sh.steppedDay+1 < len(window) {
			next = &window[sh.steppedDay+1]
		}
		sh.state.Step(day, next)
		sh.steppedDay++
	}

	valuationIdx := sh.steppedDay - 1
	if valuationIdx < 0 {
		valuationIdx = 0
	}
	if valuationIdx >= len(window) {
		valuationIdx = len(window) - 1
	}
	return sh.state.Snapshot(window[valuationIdx], valuationIdx)
}

// AdvanceDay advances a sync or sync_auto room by one day. observedDay is
// the current_day the caller last saw; a call that arrives after the room
// already moved past it collapses to a no-op success rather than
// double-advancing.
func (r *Registry) AdvanceDay(code, initiatedBy string, observedDay int, dayTimeLimitSeconds *int) (*types.Room, error) {
	entry, err := r.entryByCode(code)
	if err != nil {
		return nil, err
	}

	lock := r.lockRoom(entry.room.ID)
	lock.Lock()

	if opErr := checkAuthorized(entry.room, initiatedBy); opErr != nil {
		lock.Unlock()
		return nil, opErr
	}

	outcome, opErr := applyAdvanceDay(entry.room, entry.room.Config.NumDays, observedDay, time.Now())
	if opErr != nil {
		lock.Unlock()
		return nil, opErr
	}

	if dayTimeLimitSeconds != nil && outcome.Advanced && !outcome.JustFinished {
		entry.room.DayTimeLimit = dayTimeLimitSeconds
	}

	if outcome.Advanced && !outcome.JustFinished {
		ai := r.stepShadowTo(entry, outcome.NewDay)
		entry.room.AIBenchmark = ai

		ids := append([]uuid.UUID(nil), entry.players...)
		r.registryMu.RLock()
		players := make([]*types.Player, 0, len(ids))
		for _, id := range ids {
			if p, ok := r.players[id]; ok {
				players = append(players, p)
			}
		}
		r.registryMu.RUnlock()

		day := entry.window[outcome.PrevDay]
		var nextDay *types.MarketDay
		if outcome.NewDay < len(entry.window) {
			nextDay = &entry.window[outcome.NewDay]
		}

		for _, p := range players {
			ps := playerStateFrom(p)
			ps.CurrentDay = outcome.PrevDay
			simulation.AdvanceDay(ps, day, nextDay)
			simulation.ComputeScore(ps, day, ai.ReturnPct, entry.room.Config.Difficulty)
			applyPlayerState(p, ps)
			p.IsReady = false
			p.LastSyncDay = outcome.NewDay
		}

		if r.metrics != nil {
			r.metrics.AdvanceDay()
			if initiatedBy == SystemIdentity {
				r.metrics.AutoTimerFire()
			}
		}
	} else if outcome.JustFinished {
		if r.metrics != nil {
			r.metrics.RoomFinished()
		}
	}

	cp := *entry.room
	lock.Unlock()
	if outcome.JustFinished {
		r.releaseCode(cp.Code)
	}
	if outcome.Advanced {
		r.notify(cp)
	}
	return &cp, nil
}

// DueForAutoAdvance returns the codes of every sync_auto room currently
// in_progress whose day deadline has passed, for the auto-timer driver.
func (r *Registry) DueForAutoAdvance(now time.Time) []string {
	var due []string
	for _, e := range r.allEntries() {
		lock := r.lockRoom(e.room.ID)
		lock.RLock()
		if timerDeadlinePassed(e.room, now) {
			due = append(due, e.room.Code)
		}
		lock.RUnlock()
	}
	return due
}

// MarkReady flags a player as ready to advance.
func (r *Registry) MarkReady(playerID uuid.UUID) (*types.Player, error) {
	p, entry, err := r.playerAndEntry(playerID)
	if err != nil {
		return nil, err
	}

	lock := r.lockRoom(entry.room.ID)
	lock.Lock()
	p.IsReady = true
	cp := *p
	lock.Unlock()
	return &cp, nil
}

// UpdatePlayerState applies a client-reported post-day state onto the
// stored player record. In async rooms the client is authoritative over
// current_day; in sync/sync_auto rooms the room's own current_day always
// wins, so a stale or eager client write can never move a player ahead of
// or behind the room.
func (r *Registry) UpdatePlayerState(playerID uuid.UUID, update types.PlayerStateUpdate) (*types.Player, error) {
	p, entry, err := r.playerAndEntry(playerID)
	if err != nil {
		return nil, err
	}

	lock := r.lockRoom(entry.room.ID)
	lock.Lock()
	defer lock.Unlock()

	p.Cash = update.Cash
	p.Holdings = update.Holdings
	p.Trades = update.Trades
	p.History = update.History
	p.Score = update.Score
	p.IsFinished = update.IsFinished
	if len(update.History) > 0 {
		p.ReturnPct = update.History[len(update.History)-1].ReturnPct
	}

	if entry.room.Mode == types.GameModeAsync {
		p.CurrentDay = update.CurrentDay
		if update.CurrentDay > entry.shadow.steppedDay {
			entry.room.AIBenchmark = r.stepShadowTo(entry, update.CurrentDay)
		}
	} else {
		p.CurrentDay = entry.room.CurrentDay
	}
	p.LastSyncDay = p.CurrentDay

	if update.IsFinished {
		now := time.Now()
		p.FinishedAt = &now
	}

	cp := *p
	return &cp, nil
}

// RoomState returns the polled snapshot for GET /rooms/{code}/state.
func (r *Registry) RoomState(code string) (*types.RoomState, error) {
	entry, err := r.entryByCode(code)
	if err != nil {
		return nil, err
	}

	lock := r.lockRoom(entry.room.ID)
	lock.RLock()
	defer lock.RUnlock()

	room := entry.room
	readyCount := 0
	r.registryMu.RLock()
	for _, id := range entry.players {
		if p, ok := r.players[id]; ok && p.IsReady {
			readyCount++
		}
	}
	r.registryMu.RUnlock()

	state := &types.RoomState{
		RoomCode:          room.Code,
		Status:            room.Status,
		GameMode:          room.Mode,
		CurrentDay:        room.CurrentDay,
		DayStartedAt:      room.DayStartedAt,
		DayTimeLimit:      room.DayTimeLimit,
		ReadyCount:        readyCount,
		TotalPlayers:      len(entry.players),
		WaitingForTeacher: room.Mode != types.GameModeAsync && room.Status == types.RoomStatusInProgress,
	}

	if room.DayTimeLimit != nil && room.DayStartedAt != nil {
		remaining := *room.DayTimeLimit - int(time.Since(*room.DayStartedAt).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		state.TimeRemaining = &remaining
	}

	return state, nil
}

// Leaderboard ranks a room's players by score, breaking ties by portfolio
// value (Player.PortfolioValue) and then by join order.
func (r *Registry) Leaderboard(code string) ([]types.LeaderboardEntry, error) {
	entry, err := r.entryByCode(code)
	if err != nil {
		return nil, err
	}

	lock := r.lockRoom(entry.room.ID)
	lock.RLock()
	ids := append([]uuid.UUID(nil), entry.players...)
	lock.RUnlock()

	r.registryMu.RLock()
	players := make([]*types.Player, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.players[id]; ok {
			players = append(players, p)
		}
	}
	r.registryMu.RUnlock()

	lock.RLock()
	cps := make([]types.Player, len(players))
	for i, p := range players {
		cps[i] = *p
	}
	lock.RUnlock()

	sort.Slice(cps, func(i, j int) bool {
		if cps[i].Score.Total != cps[j].Score.Total {
			return cps[i].Score.Total > cps[j].Score.Total
		}
		vi, vj := cps[i].PortfolioValue(), cps[j].PortfolioValue()
		if !vi.Equal(vj) {
			return vi.GreaterThan(vj)
		}
		return cps[i].JoinedAt.Before(cps[j].JoinedAt)
	})

	result := make([]types.LeaderboardEntry, len(cps))
	for i, p := range cps {
		result[i] = types.LeaderboardEntry{
			Rank:           i + 1,
			PlayerID:       p.ID,
			PlayerName:     p.Name,
			Score:          p.Score.Total,
			Grade:          p.Score.Grade,
			PortfolioValue: p.PortfolioValue(),
			TotalReturnPct: p.ReturnPct,
			CurrentDay:     p.CurrentDay,
			IsFinished:     p.IsFinished,
		}
	}
	return result, nil
}

func (r *Registry) playerAndEntry(playerID uuid.UUID) (*types.Player, *roomEntry, error) {
	r.registryMu.RLock()
	p, ok := r.players[playerID]
	var entry *roomEntry
	if ok {
		entry = r.rooms[p.RoomID]
	}
	r.registryMu.RUnlock()
	if !ok || entry == nil {
		return nil, nil, apperr.New(apperr.InvalidRequest, "unknown player %s", playerID)
	}
	return p, entry, nil
}

// playerStateFrom adapts a persisted Player into the simulation engine's
// scratchpad shape, so AdvanceDay can reuse the same settlement code path
// already exercised by the simulation package's own tests.
func playerStateFrom(p *types.Player) *simulation.PlayerState {
	holdings := make(map[string]types.Holding, len(p.Holdings))
	for k, v := range p.Holdings {
		holdings[k] = v
	}
	return &simulation.PlayerState{
		InitialCash: p.InitialCash,
		Cash:        p.Cash,
		Holdings:    holdings,
		Trades:      append([]types.Trade(nil), p.Trades...),
		History:     append([]types.PortfolioSnapshot(nil), p.History...),
		CurrentDay:  p.CurrentDay,
		IsFinished:  p.IsFinished,
		ReturnPct:   p.ReturnPct,
		Score:       p.Score,
	}
}

// applyPlayerState writes the simulation scratchpad's result back onto the
// persisted Player record.
func applyPlayerState(p *types.Player, ps *simulation.PlayerState) {
	p.Cash = ps.Cash
	p.Holdings = ps.Holdings
	p.Trades = ps.Trades
	p.History = ps.History
	p.CurrentDay = ps.CurrentDay
	p.IsFinished = ps.IsFinished
	p.ReturnPct = ps.ReturnPct
	p.Score = ps.Score
}
