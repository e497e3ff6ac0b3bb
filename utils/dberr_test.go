package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", gorm.ErrDuplicatedKey, true},
		{"wrapped gorm translated", fmt.Errorf("insert claim: %w", gorm.ErrDuplicatedKey), true},
		{"mysql 1062", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-2026-03-10' for key 'idx_reward_claim_cycle'"}, true},
		{"wrapped mysql 1062", fmt.Errorf("tx: %w", &mysql.MySQLError{Number: 1062}), true},
		{"other mysql error", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, false},
		{"sqlite message", errors.New("UNIQUE constraint failed: reward_claims.user_id, reward_claims.cycle_key"), true},
		{"mysql message without type", errors.New("Error 1062: Duplicate entry"), true},
		{"unrelated error", errors.New("connection refused"), false},
		{"record not found", gorm.ErrRecordNotFound, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyError(tc.err); got != tc.want {
				t.Errorf("IsDuplicateKeyError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
