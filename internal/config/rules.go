package config

import (
	"fmt"
	"strconv"

	"github.com/spf13/viper"
)

// SemesterRules are the externally supplied eligibility bounds for one semester.
type SemesterRules struct {
	MinMembers     int `mapstructure:"min_members"`
	MaxMembers     int `mapstructure:"max_members"`
	MinPreferences int `mapstructure:"min_preferences"`
	MaxPreferences int `mapstructure:"max_preferences"`
}

// Validate checks that the bounds are usable.
func (r SemesterRules) Validate() error {
	if r.MinMembers < 1 {
		return fmt.Errorf("min_members must be at least 1, got %d", r.MinMembers)
	}
	if r.MaxMembers < r.MinMembers {
		return fmt.Errorf("max_members (%d) must be >= min_members (%d)", r.MaxMembers, r.MinMembers)
	}
	if r.MinPreferences < 1 {
		return fmt.Errorf("min_preferences must be at least 1, got %d", r.MinPreferences)
	}
	if r.MaxPreferences < r.MinPreferences {
		return fmt.Errorf("max_preferences (%d) must be >= min_preferences (%d)", r.MaxPreferences, r.MinPreferences)
	}
	return nil
}

// merge fills zero fields of r from base.
func (r SemesterRules) merge(base SemesterRules) SemesterRules {
	if r.MinMembers == 0 {
		r.MinMembers = base.MinMembers
	}
	if r.MaxMembers == 0 {
		r.MaxMembers = base.MaxMembers
	}
	if r.MinPreferences == 0 {
		r.MinPreferences = base.MinPreferences
	}
	if r.MaxPreferences == 0 {
		r.MaxPreferences = base.MaxPreferences
	}
	return r
}

// Rules holds the default bounds plus per-semester overrides.
type Rules struct {
	Default   SemesterRules
	Semesters map[int]SemesterRules
}

// ForSemester returns the effective rules for a semester.
func (r Rules) ForSemester(semester int) SemesterRules {
	if override, ok := r.Semesters[semester]; ok {
		return override.merge(r.Default)
	}
	return r.Default
}

type rulesFile struct {
	Default   SemesterRules            `mapstructure:"default"`
	Semesters map[string]SemesterRules `mapstructure:"semesters"`
}

// LoadRulesFile reads per-semester overrides from a YAML/JSON/TOML file.
// Fields missing from the file keep the values already present in base.
//
//	default:
//	  max_members: 5
//	semesters:
//	  "7":
//	    min_members: 4
func LoadRulesFile(path string, base Rules) (Rules, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Rules{}, fmt.Errorf("failed to read semester rules: %w", err)
	}

	var file rulesFile
	if err := v.Unmarshal(&file); err != nil {
		return Rules{}, fmt.Errorf("failed to decode semester rules: %w", err)
	}

	rules := Rules{
		Default:   file.Default.merge(base.Default),
		Semesters: make(map[int]SemesterRules, len(file.Semesters)),
	}
	if err := rules.Default.Validate(); err != nil {
		return Rules{}, fmt.Errorf("default rules: %w", err)
	}

	for key, override := range file.Semesters {
		semester, err := strconv.Atoi(key)
		if err != nil {
			return Rules{}, fmt.Errorf("invalid semester key %q: %w", key, err)
		}
		effective := override.merge(rules.Default)
		if err := effective.Validate(); err != nil {
			return Rules{}, fmt.Errorf("semester %d: %w", semester, err)
		}
		rules.Semesters[semester] = override
	}

	return rules, nil
}
