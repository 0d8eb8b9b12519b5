package progression

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/whispie/whispie/internal/domain"
)

// catalogFile is the on-disk shape of a catalog YAML file.
type catalogFile struct {
	Achievements []catalogEntry `yaml:"achievements"`
}

// catalogEntry mirrors AchievementDefinition with an optional is_active.
type catalogEntry struct {
	Key              string                     `yaml:"key"`
	Name             string                     `yaml:"name"`
	Description      string                     `yaml:"description"`
	Icon             string                     `yaml:"icon"`
	XPReward         int64                      `yaml:"xp_reward"`
	Category         domain.AchievementCategory `yaml:"category"`
	RequirementValue *int                       `yaml:"requirement_value,omitempty"`
	IsActive         *bool                      `yaml:"is_active,omitempty"`
}

// LoadCatalog reads and validates an achievement catalog from a YAML file.
// Entries without an explicit is_active are active.
func LoadCatalog(path string) ([]domain.AchievementDefinition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(b)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(b []byte) ([]domain.AchievementDefinition, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCatalog, err)
	}

	defs := make([]domain.AchievementDefinition, 0, len(f.Achievements))
	for _, e := range f.Achievements {
		defs = append(defs, domain.AchievementDefinition{
			Key:              e.Key,
			Name:             e.Name,
			Description:      e.Description,
			Icon:             e.Icon,
			XPReward:         e.XPReward,
			Category:         e.Category,
			RequirementValue: e.RequirementValue,
			IsActive:         e.IsActive == nil || *e.IsActive,
		})
	}
	if err := ValidateCatalog(defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// MarshalCatalog encodes a catalog in the LoadCatalog format.
func MarshalCatalog(defs []domain.AchievementDefinition) ([]byte, error) {
	f := catalogFile{Achievements: make([]catalogEntry, 0, len(defs))}
	for _, d := range defs {
		active := d.IsActive
		f.Achievements = append(f.Achievements, catalogEntry{
			Key:              d.Key,
			Name:             d.Name,
			Description:      d.Description,
			Icon:             d.Icon,
			XPReward:         d.XPReward,
			Category:         d.Category,
			RequirementValue: d.RequirementValue,
			IsActive:         &active,
		})
	}
	return yaml.Marshal(f)
}

// ValidateCatalog checks keys are present and unique, categories are known
// and rewards are not negative.
func ValidateCatalog(defs []domain.AchievementDefinition) error {
	seen := make(KeySet, len(defs))
	for i, def := range defs {
		if def.Key == "" {
			return fmt.Errorf("%w: entry %d has no key", domain.ErrInvalidCatalog, i)
		}
		if seen.Has(def.Key) {
			return fmt.Errorf("%w: duplicate key %q", domain.ErrInvalidCatalog, def.Key)
		}
		seen[def.Key] = struct{}{}

		if !def.Category.Valid() {
			return fmt.Errorf("%w: %s has unknown category %q", domain.ErrInvalidCatalog, def.Key, def.Category)
		}
		if def.XPReward < 0 {
			return fmt.Errorf("%w: %s has negative xp_reward", domain.ErrInvalidCatalog, def.Key)
		}
	}
	return nil
}

// UnmappedKeys returns catalog keys that have no unlock rule.
func UnmappedKeys(defs []domain.AchievementDefinition) []string {
	var keys []string
	for _, def := range defs {
		if _, ok := RuleFor(def.Key); !ok {
			keys = append(keys, def.Key)
		}
	}
	return keys
}

// ─── Default Catalog ────────────────────────────────────────────────────────
// 15 achievements across 4 categories, one per rule in the rule table.

func req(n int) *int { return &n }

// DefaultCatalog returns the built-in achievement catalog.
func DefaultCatalog() []domain.AchievementDefinition {
	return []domain.AchievementDefinition{
		// ── Milestones (5) ─────────────────────────────────────────────
		{
			Key: "first_conversation", Name: "First Words", Category: domain.CatMilestone,
			Description: "Complete your first practice conversation",
			Icon:        "🎯", XPReward: 10, RequirementValue: req(1), IsActive: true,
		},
		{
			Key: "conversations_5", Name: "Warming Up", Category: domain.CatMilestone,
			Description: "Complete 5 practice conversations",
			Icon:        "💬", XPReward: 25, RequirementValue: req(5), IsActive: true,
		},
		{
			Key: "conversations_10", Name: "Regular", Category: domain.CatMilestone,
			Description: "Complete 10 practice conversations",
			Icon:        "🗣️", XPReward: 50, RequirementValue: req(10), IsActive: true,
		},
		{
			Key: "conversations_25", Name: "Conversationalist", Category: domain.CatMilestone,
			Description: "Complete 25 practice conversations",
			Icon:        "🎙️", XPReward: 100, RequirementValue: req(25), IsActive: true,
		},
		{
			Key: "conversations_50", Name: "Seasoned Speaker", Category: domain.CatMilestone,
			Description: "Complete 50 practice conversations",
			Icon:        "🏆", XPReward: 250, RequirementValue: req(50), IsActive: true,
		},

		// ── Streaks (4) ────────────────────────────────────────────────
		{
			Key: "streak_3", Name: "Getting Consistent", Category: domain.CatStreak,
			Description: "Practice 3 days in a row",
			Icon:        "🔥", XPReward: 20, RequirementValue: req(3), IsActive: true,
		},
		{
			Key: "streak_7", Name: "Week Warrior", Category: domain.CatStreak,
			Description: "Practice 7 days in a row",
			Icon:        "📅", XPReward: 50, RequirementValue: req(7), IsActive: true,
		},
		{
			Key: "streak_14", Name: "Fortnight Focus", Category: domain.CatStreak,
			Description: "Practice 14 days in a row",
			Icon:        "💪", XPReward: 100, RequirementValue: req(14), IsActive: true,
		},
		{
			Key: "streak_30", Name: "Monthly Master", Category: domain.CatStreak,
			Description: "Practice 30 days in a row",
			Icon:        "⭐", XPReward: 300, RequirementValue: req(30), IsActive: true,
		},

		// ── Skill (3) ──────────────────────────────────────────────────
		{
			Key: "score_80", Name: "Strong Performer", Category: domain.CatSkill,
			Description: "Score 80 or higher in a conversation",
			Icon:        "📈", XPReward: 25, RequirementValue: req(80), IsActive: true,
		},
		{
			Key: "score_90", Name: "Excellent Communicator", Category: domain.CatSkill,
			Description: "Score 90 or higher in a conversation",
			Icon:        "🌟", XPReward: 50, RequirementValue: req(90), IsActive: true,
		},
		{
			Key: "score_100", Name: "Flawless", Category: domain.CatSkill,
			Description: "Score a perfect 100",
			Icon:        "💎", XPReward: 150, RequirementValue: req(100), IsActive: true,
		},

		// ── Special (3) ────────────────────────────────────────────────
		{
			Key: "night_owl", Name: "Night Owl", Category: domain.CatSpecial,
			Description: "Practice after 10 PM",
			Icon:        "🦉", XPReward: 15, IsActive: true,
		},
		{
			Key: "early_bird", Name: "Early Bird", Category: domain.CatSpecial,
			Description: "Practice before 7 AM",
			Icon:        "🐦", XPReward: 15, IsActive: true,
		},
		{
			Key: "weekend_warrior", Name: "Weekend Warrior", Category: domain.CatSpecial,
			Description: "Practice on a Saturday or Sunday",
			Icon:        "🎉", XPReward: 15, IsActive: true,
		},
	}
}
