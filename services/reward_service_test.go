package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/emberlabs/emberhub/models"
)

// testClock is a mutable clock injected via WithClock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupRewardDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// A single connection keeps the shared in-memory database alive and
	// serializes concurrent writers the way sqlite expects.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}, &models.RewardState{}, &models.RewardClaim{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := models.User{Username: "tester", Email: "tester@example.com", PasswordHash: "hashed"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return &user
}

func newTestRewardService(t *testing.T, db *gorm.DB, resetHour int, clock *testClock) *RewardService {
	t.Helper()
	return NewRewardService(db, resetHour, []int{10, 10, 20, 20, 30, 30, 30}, WithClock(clock.Now))
}

func TestCycleKey(t *testing.T) {
	db := setupRewardDB(t)

	cases := []struct {
		name      string
		resetHour int
		at        time.Time
		want      string
	}{
		{"midnight reset at midnight", 0, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), "2026-03-10"},
		{"midnight reset late evening", 0, time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC), "2026-03-10"},
		{"hour nine before reset", 9, time.Date(2026, 3, 10, 8, 59, 59, 0, time.UTC), "2026-03-09"},
		{"hour nine at reset", 9, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), "2026-03-10"},
		{"hour nine after reset", 9, time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC), "2026-03-10"},
		{"before reset across month boundary", 9, time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC), "2026-02-28"},
		{"before reset across year boundary", 5, time.Date(2026, 1, 1, 4, 59, 0, 0, time.UTC), "2025-12-31"},
		{"non-utc input normalized", 9, time.Date(2026, 3, 10, 10, 0, 0, 0, time.FixedZone("CET", 3600)), "2026-03-10"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestRewardService(t, db, tc.resetHour, newTestClock(tc.at))
			assert.Equal(t, tc.want, svc.CycleKey(tc.at))
		})
	}
}

func TestNextResetAt(t *testing.T) {
	db := setupRewardDB(t)
	svc := newTestRewardService(t, db, 9, newTestClock(time.Time{}))

	before := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), svc.NextResetAt(before))

	exactly := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), svc.NextResetAt(exactly),
		"reset instant itself must roll to the next day")

	after := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), svc.NextResetAt(after))
}

func TestPreviousCycleKey(t *testing.T) {
	assert.Equal(t, "2026-03-09", PreviousCycleKey("2026-03-10"))
	assert.Equal(t, "2026-02-28", PreviousCycleKey("2026-03-01"))
	assert.Equal(t, "2024-02-29", PreviousCycleKey("2024-03-01"), "leap year")
	assert.Equal(t, "2025-12-31", PreviousCycleKey("2026-01-01"))
	assert.Equal(t, "", PreviousCycleKey("not-a-date"))
}

func TestPointsForDayClamped(t *testing.T) {
	db := setupRewardDB(t)
	svc := newTestRewardService(t, db, 0, newTestClock(time.Time{}))

	assert.Equal(t, 10, svc.PointsForDay(0), "below range clamps to day 1")
	assert.Equal(t, 10, svc.PointsForDay(1))
	assert.Equal(t, 20, svc.PointsForDay(3))
	assert.Equal(t, 30, svc.PointsForDay(7))
	assert.Equal(t, 30, svc.PointsForDay(99), "above range clamps to last day")
	assert.Equal(t, 7, svc.MaxStreakDay())
}

func TestStatusBeforeFirstClaim(t *testing.T) {
	db := setupRewardDB(t)
	user := seedUser(t, db)
	clock := newTestClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestRewardService(t, db, 0, clock)

	status, err := svc.Status(user.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(0), status.PointsBalance)
	assert.Equal(t, "2026-03-10", status.CycleKey)
	assert.True(t, status.CanClaim)
	assert.False(t, status.AlreadyClaimed)
	assert.Equal(t, 1, status.StreakDayToClaim)
	assert.Equal(t, 10, status.PointsIfClaimNow)
	assert.Nil(t, status.LastClaimAt)
	assert.Empty(t, status.LastCycleKey)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), status.NextResetAtUTC)

	// Status lazily creates the state row but never advances it.
	var state models.RewardState
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&state).Error)
	assert.Equal(t, 1, state.StreakDay)
	assert.Empty(t, state.LastCycleKey)
}

func TestStatusUnknownUser(t *testing.T) {
	db := setupRewardDB(t)
	svc := newTestRewardService(t, db, 0, newTestClock(time.Now()))

	_, err := svc.Status(4242)
	assert.ErrorIs(t, err, ErrRewardUserNotFound)

	_, err = svc.Claim(4242)
	assert.ErrorIs(t, err, ErrRewardUserNotFound)
}

func TestClaimSevenDayStreakTotals(t *testing.T) {
	db := setupRewardDB(t)
	user := seedUser(t, db)
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestRewardService(t, db, 0, clock)

	wantPoints := []int{10, 10, 20, 20, 30, 30, 30}
	var balance int64
	for day := 1; day <= 7; day++ {
		result, err := svc.Claim(user.ID)
		require.NoError(t, err, "day %d", day)

		assert.Equal(t, day, result.Awarded.DayNumber)
		assert.Equal(t, wantPoints[day-1], result.Awarded.Points)
		balance += int64(wantPoints[day-1])
		assert.Equal(t, balance, result.PointsBalance)

		if day < 7 {
			assert.Equal(t, day+1, result.NextDayToClaim)
		} else {
			assert.Equal(t, 1, result.NextDayToClaim, "streak wraps after the last day")
		}
		clock.Advance(24 * time.Hour)
	}

	assert.Equal(t, int64(150), balance, "a full seven-day streak is worth 150 points")

	// Day 8 wraps back to day 1.
	result, err := svc.Claim(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Awarded.DayNumber)
	assert.Equal(t, 10, result.Awarded.Points)
	assert.Equal(t, int64(160), result.PointsBalance)
}

func TestClaimTwiceSameCycle(t *testing.T) {
	db := setupRewardDB(t)
	user := seedUser(t, db)
	clock := newTestClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestRewardService(t, db, 0, clock)

	first, err := svc.Claim(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Awarded.DayNumber)

	_, err = svc.Claim(user.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	// Same cycle even hours later.
	clock.Advance(6 * time.Hour)
	_, err = svc.Claim(user.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	var count int64
	require.NoError(t, db.Model(&models.RewardClaim{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var u models.User
	require.NoError(t, db.First(&u, user.ID).Error)
	assert.Equal(t, int64(10), u.Points(), "failed re-claims must not touch the balance")
}

func TestConcurrentClaimsExactlyOneWins(t *testing.T) {
	db := setupRewardDB(t)
	user := seedUser(t, db)
	clock := newTestClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestRewardService(t, db, 0, clock)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Claim(user.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case err == ErrAlreadyClaimed || (err != nil && err.Error() == ErrAlreadyClaimed.Error()):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent claim may win")
	assert.Equal(t, attempts-1, conflicted)

	var claims int64
	require.NoError(t, db.Model(&models.RewardClaim{}).Where("user_id = ?", user.ID).Count(&claims).Error)
	assert.Equal(t, int64(1), claims)

	var u models.User
	require.NoError(t, db.First(&u, user.ID).Error)
	assert.Equal(t, int64(10), u.Points(), "balance incremented exactly once")
}

func TestStreakResetsAfterGap(t *testing.T) {
	db := setupRewardDB(t)
	user := seedUser(t, db)
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestRewardService(t, db, 0, clock)

	for day := 1; day <= 3; day++ {
		result, err := svc.Claim(user.ID)
		require.NoError(t, err)
		assert.Equal(t, day, result.Awarded.DayNumber)
		clock.Advance(24 * time.Hour)
	}

	// Skip a day; the streak is broken.
	clock.Advance(24 * time.Hour)

	status, err := svc.Status(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.StreakDayToClaim)
	assert.Equal(t, 10, status.PointsIfClaimNow)

	result, err := svc.Claim(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Awarded.DayNumber)
	assert.Equal(t, 10, result.Awarded.Points)
}

func TestStreakContinuesAcrossResetHour(t *testing.T) {
	db := setupRewardDB(t)
	user := seedUser(t, db)
	// Reset at 09:00 UTC; 08:59 still belongs to the previous cycle.
	clock := newTestClock(time.Date(2026, 3, 10, 8, 59, 0, 0, time.UTC))
	svc := newTestRewardService(t, db, 9, clock)

	result, err := svc.Claim(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-09", result.Awarded.CycleKey)

	// Two minutes later a new cycle has begun and the streak continues.
	clock.Set(time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC))
	status, err := svc.Status(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", status.CycleKey)
	assert.True(t, status.CanClaim)
	assert.Equal(t, 2, status.StreakDayToClaim)

	result, err = svc.Claim(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Awarded.DayNumber)
	assert.Equal(t, "2026-03-10", result.Awarded.CycleKey)
}

func TestStatusAfterClaimSameCycle(t *testing.T) {
	db := setupRewardDB(t)
	user := seedUser(t, db)
	clock := newTestClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestRewardService(t, db, 0, clock)

	_, err := svc.Claim(user.ID)
	require.NoError(t, err)

	status, err := svc.Status(user.ID)
	require.NoError(t, err)
	assert.False(t, status.CanClaim)
	assert.True(t, status.AlreadyClaimed)
	assert.Equal(t, "2026-03-10", status.LastCycleKey)
	require.NotNil(t, status.LastClaimAt)
	// PointsIfClaimNow reports the value of the day already claimed within
	// this cycle, not a hypothetical next day.
	assert.Equal(t, 1, status.StreakDayToClaim)
	assert.Equal(t, 10, status.PointsIfClaimNow)
	assert.Equal(t, int64(10), status.PointsBalance)
}

func TestNullBalanceHealing(t *testing.T) {
	db := setupRewardDB(t)
	user := seedUser(t, db)
	clock := newTestClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestRewardService(t, db, 0, clock)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("points_balance", gorm.Expr("NULL")).Error)

	status, err := svc.Status(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.PointsBalance, "null balance reads as zero")

	var healed models.User
	require.NoError(t, db.First(&healed, user.ID).Error)
	require.NotNil(t, healed.PointsBalance, "status heals the null to a stored zero")
	assert.Equal(t, int64(0), *healed.PointsBalance)

	// A claim on a still-null balance normalizes before incrementing.
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("points_balance", gorm.Expr("NULL")).Error)
	result, err := svc.Claim(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.PointsBalance)
}

func TestHistoryOrderAndClamp(t *testing.T) {
	db := setupRewardDB(t)
	user := seedUser(t, db)
	clock := newTestClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestRewardService(t, db, 0, clock)

	for i := 0; i < 40; i++ {
		_, err := svc.Claim(user.ID)
		require.NoError(t, err)
		clock.Advance(24 * time.Hour)
	}

	claims, err := svc.History(user.ID, 5)
	require.NoError(t, err)
	require.Len(t, claims, 5)
	for i := 1; i < len(claims); i++ {
		assert.True(t, !claims[i].ClaimedAt.After(claims[i-1].ClaimedAt), "newest first")
	}

	claims, err = svc.History(user.ID, 0)
	require.NoError(t, err)
	assert.Len(t, claims, 30, "non-positive limit falls back to the default")

	claims, err = svc.History(user.ID, -3)
	require.NoError(t, err)
	assert.Len(t, claims, 30)

	claims, err = svc.History(user.ID, 1000)
	require.NoError(t, err)
	assert.Len(t, claims, 40, "limit clamps to 100, fewer rows exist")
}

func TestClearClaimsResetsEverything(t *testing.T) {
	db := setupRewardDB(t)
	user := seedUser(t, db)
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestRewardService(t, db, 0, clock)

	for i := 0; i < 3; i++ {
		_, err := svc.Claim(user.ID)
		require.NoError(t, err)
		clock.Advance(24 * time.Hour)
	}

	result, err := svc.ClearClaims(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.DeletedClaimsCount)
	assert.True(t, result.StateReset)
	assert.Equal(t, int64(0), result.PointsBalance)

	// Status afterwards reports the pristine initial state.
	status, err := svc.Status(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.PointsBalance)
	assert.True(t, status.CanClaim)
	assert.Equal(t, 1, status.StreakDayToClaim)
	assert.Nil(t, status.LastClaimAt)
	assert.Empty(t, status.LastCycleKey)

	history, err := svc.History(user.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	// The engine is immediately usable again.
	claim, err := svc.Claim(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, claim.Awarded.DayNumber)
}

func TestClearClaimsUnknownUser(t *testing.T) {
	db := setupRewardDB(t)
	svc := newTestRewardService(t, db, 0, newTestClock(time.Now()))

	_, err := svc.ClearClaims(999)
	assert.ErrorIs(t, err, ErrRewardUserNotFound)
}

func TestRewardServiceDefaults(t *testing.T) {
	db := setupRewardDB(t)

	svc := NewRewardService(db, -1, nil)
	assert.Equal(t, 7, svc.MaxStreakDay(), "empty table falls back to the default schedule")
	assert.Equal(t, "2026-03-10", svc.CycleKey(time.Date(2026, 3, 10, 0, 30, 0, 0, time.UTC)),
		"out-of-range reset hour falls back to midnight")

	svc = NewRewardService(db, 24, nil)
	assert.Equal(t, "2026-03-10", svc.CycleKey(time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)))
}
