package app_test

import (
	"testing"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
)

func TestNextDay(t *testing.T) {
	defs := []domain.TestDefinition{
		{ID: "d1", Kind: domain.DailyTest, DayNumber: 1},
		{ID: "d2", Kind: domain.DailyTest, DayNumber: 2},
		{ID: "d3", Kind: domain.DailyTest, DayNumber: 3},
	}
	scored := func(testID string, pct float64) domain.Attempt {
		return domain.Attempt{TestDefinitionID: testID, Status: domain.StatusCompleted, Percentage: pct}
	}

	tests := []struct {
		name    string
		history []domain.Attempt
		want    int
	}{
		{name: "no history", want: 1},
		{name: "below threshold", history: []domain.Attempt{scored("d1", 89.99)}, want: 1},
		{name: "exactly threshold", history: []domain.Attempt{scored("d1", 90)}, want: 2},
		{name: "best attempt counts", history: []domain.Attempt{scored("d1", 40), scored("d1", 95), scored("d1", 10)}, want: 2},
		{name: "gap stops the scan", history: []domain.Attempt{scored("d1", 60), scored("d2", 100)}, want: 1},
		{name: "consecutive days", history: []domain.Attempt{scored("d1", 100), scored("d2", 92)}, want: 3},
		{name: "all passed", history: []domain.Attempt{scored("d1", 100), scored("d2", 100), scored("d3", 100)}, want: 4},
		{
			name: "unscored attempts ignored",
			history: []domain.Attempt{
				{TestDefinitionID: "d1", Status: domain.StatusAbandoned, Percentage: 100},
				{TestDefinitionID: "d1", Status: domain.StatusInProgress, Percentage: 100},
			},
			want: 1,
		},
		{
			name:    "auto-submitted attempts count",
			history: []domain.Attempt{{TestDefinitionID: "d1", Status: domain.StatusSubmitted, Percentage: 90}},
			want:    2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := app.NextDay(defs, tt.history, 90); got != tt.want {
				t.Fatalf("NextDay() = %d, want %d", got, tt.want)
			}
		})
	}
}
