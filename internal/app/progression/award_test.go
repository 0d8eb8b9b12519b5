package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whispie/whispie/internal/domain"
)

func TestXPFromScore_Brackets(t *testing.T) {
	tests := []struct {
		score int
		want  int64
	}{
		{0, 10}, {49, 10},
		{50, 20}, {69, 20},
		{70, 30}, {79, 30},
		{80, 40}, {89, 40},
		{90, 50}, {100, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, XPFromScore(tt.score), "score %d", tt.score)
	}
}

func TestStreakMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, StreakMultiplier(-2))
	assert.Equal(t, 1.0, StreakMultiplier(0))
	assert.InDelta(t, 1.05, StreakMultiplier(1), 1e-9)
	assert.InDelta(t, 1.35, StreakMultiplier(7), 1e-9)
	assert.Equal(t, 1.5, StreakMultiplier(10))
	assert.Equal(t, 1.5, StreakMultiplier(365))
}

func TestDifficultyMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, DifficultyMultiplier(domain.DifficultyEasy))
	assert.Equal(t, 1.25, DifficultyMultiplier(domain.DifficultyMedium))
	assert.Equal(t, 1.5, DifficultyMultiplier(domain.DifficultyHard))
}

func TestCalculateSessionAward(t *testing.T) {
	tests := []struct {
		name  string
		score int
		opts  AwardOptions
		want  int64
	}{
		{
			name:  "first conversation with long streak on hard",
			score: 95,
			opts:  AwardOptions{IsFirstConversation: true, CurrentStreakDays: 10, Difficulty: domain.DifficultyHard},
			want:  168,
		},
		{
			name:  "cold start easy",
			score: 45,
			opts:  AwardOptions{IsFirstConversation: true, Difficulty: domain.DifficultyEasy},
			want:  35,
		},
		{
			name:  "short streak medium",
			score: 80,
			opts:  AwardOptions{CurrentStreakDays: 3, Difficulty: domain.DifficultyMedium},
			want:  57,
		},
		{
			name:  "floor after streak",
			score: 70,
			opts:  AwardOptions{CurrentStreakDays: 1, Difficulty: domain.DifficultyEasy},
			want:  31,
		},
		{
			name:  "week streak hard",
			score: 90,
			opts:  AwardOptions{CurrentStreakDays: 7, Difficulty: domain.DifficultyHard},
			want:  100,
		},
		{
			name:  "streak bonus capped",
			score: 100,
			opts:  AwardOptions{CurrentStreakDays: 20, Difficulty: domain.DifficultyHard},
			want:  112,
		},
		{
			name:  "floor after both multipliers",
			score: 30,
			opts:  AwardOptions{CurrentStreakDays: 9, Difficulty: domain.DifficultyMedium},
			want:  17,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateSessionAward(tt.score, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBreakdownSessionAward_Stages(t *testing.T) {
	b, err := BreakdownSessionAward(95, AwardOptions{
		IsFirstConversation: true,
		CurrentStreakDays:   10,
		Difficulty:          domain.DifficultyHard,
	})
	require.NoError(t, err)
	assert.Equal(t, AwardBreakdown{Base: 50, FirstBonus: 25, AfterStreak: 112, AfterDifficulty: 168}, b)
	assert.Equal(t, int64(168), b.Total())
}

func TestCalculateSessionAward_Bounds(t *testing.T) {
	difficulties := []domain.Difficulty{domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard}
	for score := 0; score <= 100; score += 5 {
		for streak := 0; streak <= 15; streak++ {
			for _, d := range difficulties {
				for _, first := range []bool{false, true} {
					got, err := CalculateSessionAward(score, AwardOptions{
						IsFirstConversation: first,
						CurrentStreakDays:   streak,
						Difficulty:          d,
					})
					require.NoError(t, err)
					require.GreaterOrEqual(t, got, int64(10))
					require.LessOrEqual(t, got, int64(168))
				}
			}
		}
	}
}

func TestCalculateSessionAward_RejectsInvalidInput(t *testing.T) {
	_, err := CalculateSessionAward(101, AwardOptions{Difficulty: domain.DifficultyEasy})
	assert.ErrorIs(t, err, domain.ErrInvalidScore)

	_, err = CalculateSessionAward(-1, AwardOptions{Difficulty: domain.DifficultyEasy})
	assert.ErrorIs(t, err, domain.ErrInvalidScore)

	_, err = CalculateSessionAward(50, AwardOptions{Difficulty: "extreme"})
	assert.ErrorIs(t, err, domain.ErrInvalidDifficulty)

	_, err = CalculateSessionAward(50, AwardOptions{CurrentStreakDays: -1, Difficulty: domain.DifficultyEasy})
	assert.ErrorIs(t, err, domain.ErrInvalidStreak)
}
