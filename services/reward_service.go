package services

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/utils"
)

var (
	// ErrRewardUserNotFound is returned when the target user does not exist.
	ErrRewardUserNotFound = errors.New("user not found")
	// ErrAlreadyClaimed is returned when a claim already exists for the
	// user's current cycle, whether caught by the pre-check or by the
	// unique index on the ledger.
	ErrAlreadyClaimed = errors.New("already claimed for this cycle")
)

const cycleKeyLayout = "2006-01-02"

// RewardService implements the daily-reward streak engine: cycle-key
// computation, streak continuation policy, and exactly-once-per-cycle claim
// enforcement backed by the (user_id, cycle_key) unique index.
type RewardService struct {
	db          *gorm.DB
	resetHour   int   // UTC hour at which a new cycle begins
	pointsTable []int // 1-indexed by streak day; its length is the max streak day
	now         func() time.Time
	log         *zap.SugaredLogger
}

// RewardOption customizes a RewardService.
type RewardOption func(*RewardService)

// WithClock injects a deterministic clock. Used by tests.
func WithClock(now func() time.Time) RewardOption {
	return func(s *RewardService) { s.now = now }
}

// WithRewardLogger attaches a logger; the engine is silent without one.
func WithRewardLogger(log *zap.SugaredLogger) RewardOption {
	return func(s *RewardService) { s.log = log }
}

// NewRewardService builds the engine. resetHourUTC must be in [0, 23];
// pointsTable must be non-empty and defines both the escalating schedule and
// the maximum streak day.
func NewRewardService(db *gorm.DB, resetHourUTC int, pointsTable []int, opts ...RewardOption) *RewardService {
	if resetHourUTC < 0 || resetHourUTC > 23 {
		resetHourUTC = 0
	}
	if len(pointsTable) == 0 {
		pointsTable = []int{10, 10, 20, 20, 30, 30, 30}
	}
	s := &RewardService{
		db:          db,
		resetHour:   resetHourUTC,
		pointsTable: pointsTable,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxStreakDay is the highest day number in the schedule; claims wrap back
// to day 1 after it.
func (s *RewardService) MaxStreakDay() int {
	return len(s.pointsTable)
}

// CycleKey maps an instant to its reward cycle. The cycle boundary is the
// configured UTC reset hour, so before that hour the key is still the
// previous UTC calendar date. With resetHour 0 the key is simply the UTC
// date: hour is never < 0 and the shift branch is unreachable, which is the
// intended degenerate behavior.
func (s *RewardService) CycleKey(t time.Time) string {
	t = t.UTC()
	base := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if t.Hour() < s.resetHour {
		base = base.AddDate(0, 0, -1)
	}
	return base.Format(cycleKeyLayout)
}

// CurrentCycleKey returns the cycle key for the present moment on the
// service's clock.
func (s *RewardService) CurrentCycleKey() string {
	return s.CycleKey(s.now())
}

// NextResetAt returns the next instant, strictly after t, at which a new
// cycle begins.
func (s *RewardService) NextResetAt(t time.Time) time.Time {
	t = t.UTC()
	reset := time.Date(t.Year(), t.Month(), t.Day(), s.resetHour, 0, 0, 0, time.UTC)
	if !t.Before(reset) {
		reset = reset.AddDate(0, 0, 1)
	}
	return reset
}

// PreviousCycleKey returns the cycle key one calendar day before key. Cycle
// keys are already normalized dates, so no reset-hour adjustment applies.
func PreviousCycleKey(key string) string {
	t, err := time.Parse(cycleKeyLayout, key)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(cycleKeyLayout)
}

// PointsForDay returns the reward for a streak day, clamped to the table
// bounds.
func (s *RewardService) PointsForDay(day int) int {
	if day < 1 {
		day = 1
	}
	if day > len(s.pointsTable) {
		day = len(s.pointsTable)
	}
	return s.pointsTable[day-1]
}

// dayToClaim decides which streak day the user is about to claim.
// StreakDay is stored as "next day to claim": a claim in the immediately
// previous cycle continues the streak, any other gap resets to day 1. The
// lastCycleKey == currentCycleKey branch is only reachable from the
// read-only status path; Claim blocks on the ledger before getting here.
func (s *RewardService) dayToClaim(state *models.RewardState, currentCycleKey string) int {
	if state.LastCycleKey == "" {
		return 1
	}
	if state.LastCycleKey == PreviousCycleKey(currentCycleKey) {
		return state.StreakDay
	}
	if state.LastCycleKey != currentCycleKey {
		return 1
	}
	return state.StreakDay
}

// ensureState loads the user's reward state, creating the default row on
// first contact.
func (s *RewardService) ensureState(db *gorm.DB, userID uint) (*models.RewardState, error) {
	var state models.RewardState
	err := db.Where("user_id = ?", userID).First(&state).Error
	if err == nil {
		return &state, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load reward state: %w", err)
	}
	state = models.RewardState{UserID: userID, StreakDay: 1}
	if err := db.Create(&state).Error; err != nil {
		// Lost a race against a concurrent first request; reread.
		if utils.IsDuplicateKeyError(err) {
			if err := db.Where("user_id = ?", userID).First(&state).Error; err != nil {
				return nil, fmt.Errorf("reload reward state: %w", err)
			}
			return &state, nil
		}
		return nil, fmt.Errorf("create reward state: %w", err)
	}
	return &state, nil
}

func (s *RewardService) findUser(userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRewardUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// RewardStatus is the read-only snapshot of where a user stands.
type RewardStatus struct {
	PointsBalance    int64      `json:"points_balance"`
	CycleKey         string     `json:"cycle_key"`
	CanClaim         bool       `json:"can_claim"`
	AlreadyClaimed   bool       `json:"already_claimed"`
	StreakDayToClaim int        `json:"streak_day_to_claim"`
	PointsIfClaimNow int        `json:"points_if_claim_now"`
	LastClaimAt      *time.Time `json:"last_claim_at"`
	LastCycleKey     string     `json:"last_cycle_key"`
	NextResetAtUTC   time.Time  `json:"next_reset_at_utc"`
}

// Status reports the user's current cycle, whether they can still claim it,
// and what a claim would credit. It mutates nothing beyond lazily creating
// the state row and healing a NULL balance to zero.
//
// PointsIfClaimNow deliberately shows the value of the streak day even when
// the cycle was already claimed (what the claim credited, not what a new
// claim would yield); clients gate on CanClaim.
func (s *RewardService) Status(userID uint) (*RewardStatus, error) {
	now := s.now()
	cycleKey := s.CycleKey(now)

	user, err := s.findUser(userID)
	if err != nil {
		return nil, err
	}

	state, err := s.ensureState(s.db, userID)
	if err != nil {
		return nil, err
	}

	var claimed int64
	if err := s.db.Model(&models.RewardClaim{}).
		Where("user_id = ? AND cycle_key = ?", userID, cycleKey).
		Count(&claimed).Error; err != nil {
		return nil, fmt.Errorf("check existing claim: %w", err)
	}

	// Heal NULL balances on read so claims that already happened never show
	// as zero for the wrong reason.
	if user.PointsBalance == nil {
		if err := s.db.Model(&models.User{}).Where("id = ?", userID).
			Update("points_balance", 0).Error; err != nil && s.log != nil {
			s.log.Warnw("failed to heal null points balance", "user_id", userID, "err", err)
		}
	}

	day := s.dayToClaim(state, cycleKey)
	var lastCycleKey string
	if state.LastCycleKey != "" {
		lastCycleKey = state.LastCycleKey
	}

	return &RewardStatus{
		PointsBalance:    user.Points(),
		CycleKey:         cycleKey,
		CanClaim:         claimed == 0,
		AlreadyClaimed:   claimed > 0,
		StreakDayToClaim: day,
		PointsIfClaimNow: s.PointsForDay(day),
		LastClaimAt:      state.LastClaimAt,
		LastCycleKey:     lastCycleKey,
		NextResetAtUTC:   s.NextResetAt(now),
	}, nil
}

// ClaimResult describes a successful claim.
type ClaimResult struct {
	Awarded        models.RewardClaim `json:"awarded"`
	PointsBalance  int64              `json:"points_balance"`
	NextDayToClaim int                `json:"next_day_to_claim"`
}

// Claim performs a single claim for the user's current cycle. The ledger
// insert, state update, and balance increment land together or not at all;
// the unique (user_id, cycle_key) index decides the winner under concurrent
// attempts, and only a duplicate-key failure maps to ErrAlreadyClaimed.
func (s *RewardService) Claim(userID uint) (*ClaimResult, error) {
	now := s.now()
	cycleKey := s.CycleKey(now)

	if _, err := s.findUser(userID); err != nil {
		return nil, err
	}

	state, err := s.ensureState(s.db, userID)
	if err != nil {
		return nil, err
	}

	// Pre-check is a fast path only; the unique index is the mechanism of
	// truth under concurrency.
	var claimed int64
	if err := s.db.Model(&models.RewardClaim{}).
		Where("user_id = ? AND cycle_key = ?", userID, cycleKey).
		Count(&claimed).Error; err != nil {
		return nil, fmt.Errorf("check existing claim: %w", err)
	}
	if claimed > 0 {
		return nil, ErrAlreadyClaimed
	}

	day := s.dayToClaim(state, cycleKey)
	points := s.PointsForDay(day)
	nextDay := day + 1
	if day >= s.MaxStreakDay() {
		nextDay = 1
	}

	claim := models.RewardClaim{
		UserID:    userID,
		CycleKey:  cycleKey,
		DayNumber: day,
		Points:    points,
		ClaimedAt: now,
	}

	var balance int64
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&claim).Error; err != nil {
			if utils.IsDuplicateKeyError(err) {
				return ErrAlreadyClaimed
			}
			return fmt.Errorf("insert claim: %w", err)
		}

		if err := tx.Model(&models.RewardState{}).Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"last_claim_at":  now,
				"last_cycle_key": cycleKey,
				"streak_day":     nextDay,
			}).Error; err != nil {
			return fmt.Errorf("update reward state: %w", err)
		}

		// COALESCE is the one place NULL balances are normalized before an
		// increment; call sites never pre-heal.
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("points_balance", gorm.Expr("COALESCE(points_balance, 0) + ?", points)).Error; err != nil {
			return fmt.Errorf("increment balance: %w", err)
		}

		var user models.User
		if err := tx.Select("points_balance").First(&user, userID).Error; err != nil {
			return fmt.Errorf("reload balance: %w", err)
		}
		balance = user.Points()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			return nil, ErrAlreadyClaimed
		}
		if s.log != nil {
			s.log.Errorw("claim transaction failed", "user_id", userID, "cycle_key", cycleKey, "err", err)
		}
		return nil, err
	}

	if s.log != nil {
		s.log.Infow("daily reward claimed",
			"user_id", userID, "cycle_key", cycleKey, "day", day, "points", points, "balance", balance)
	}

	return &ClaimResult{
		Awarded:        claim,
		PointsBalance:  balance,
		NextDayToClaim: nextDay,
	}, nil
}

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 100
)

// History lists the user's past claims, newest first. The limit is clamped
// to [1, 100]; anything non-positive falls back to the default page of 30.
func (s *RewardService) History(userID uint, limit int) ([]models.RewardClaim, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var claims []models.RewardClaim
	if err := s.db.Where("user_id = ?", userID).
		Order("claimed_at DESC").
		Limit(limit).
		Find(&claims).Error; err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return claims, nil
}

// ClearResult reports what an administrative reset removed.
type ClearResult struct {
	DeletedClaimsCount int64 `json:"deleted_claims_count"`
	StateReset         bool  `json:"state_reset"`
	PointsBalance      int64 `json:"points_balance"`
}

// ClearClaims wipes the user's ledger, reward state, and balance back to the
// initial condition in one transaction. Support/testing tool, not part of
// the normal user flow.
func (s *RewardService) ClearClaims(userID uint) (*ClearResult, error) {
	if _, err := s.findUser(userID); err != nil {
		return nil, err
	}

	result := &ClearResult{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ?", userID).Delete(&models.RewardClaim{})
		if res.Error != nil {
			return fmt.Errorf("delete claims: %w", res.Error)
		}
		result.DeletedClaimsCount = res.RowsAffected

		st := tx.Model(&models.RewardState{}).Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"streak_day":     1,
				"last_claim_at":  nil,
				"last_cycle_key": "",
			})
		if st.Error != nil {
			return fmt.Errorf("reset reward state: %w", st.Error)
		}
		result.StateReset = st.RowsAffected > 0

		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("points_balance", 0).Error; err != nil {
			return fmt.Errorf("zero balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.log != nil {
		s.log.Infow("reward claims cleared", "user_id", userID, "deleted", result.DeletedClaimsCount)
	}
	return result, nil
}
