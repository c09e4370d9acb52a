package shared

import (
	"context"
	"math"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID represents a unique user identifier.
// Accepts UUIDs as well as external ids (document store object ids, slugs).
type UserID string

// Regular expression for a valid user identifier.
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.:-]{0,63}$`)

// IsValid checks if the user ID is valid.
func (u UserID) IsValid() bool {
	return userIDRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", ErrInvalidUserID
	}
	return uid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Skill Value Object
// ═══════════════════════════════════════════════════════════════════════════

// SkillKey returns the comparison key for a skill name.
// Skill names are compared case-insensitively with surrounding whitespace ignored.
func SkillKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// NormalizeSkillSet trims names, drops empties and removes duplicates by SkillKey,
// keeping the first spelling and the original order.
func NormalizeSkillSet(names []string) []string {
	if len(names) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.Join(strings.Fields(n), " ")
		if n == "" {
			continue
		}
		k := SkillKey(n)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// Rating Value Object (session feedback / reputation)
// ═══════════════════════════════════════════════════════════════════════════

// Rating is a session rating or reputation on the 0-5 scale.
type Rating float64

const (
	MinRating Rating = 0
	MaxRating Rating = 5
)

// IsValid checks if the rating is within valid range.
func (r Rating) IsValid() bool {
	return !math.IsNaN(float64(r)) && r >= MinRating && r <= MaxRating
}

// Float returns the underlying value.
func (r Rating) Float() float64 {
	return float64(r)
}

// NewRating creates a new Rating with validation.
func NewRating(value float64) (Rating, error) {
	r := Rating(value)
	if !r.IsValid() {
		return 0, ErrInvalidRating
	}
	return r, nil
}

// RollingAverage folds one more rating into an average built from count ratings.
func RollingAverage(avg float64, count int, next Rating) float64 {
	if count <= 0 {
		return float64(next)
	}
	v := (avg*float64(count) + float64(next)) / float64(count+1)
	return math.Round(v*100) / 100
}

// ═══════════════════════════════════════════════════════════════════════════
// Per-user serialization
// ═══════════════════════════════════════════════════════════════════════════

// UserLocker serializes mutations for a single user.
// Lock blocks until the user is free or ctx is done; the returned func releases it.
type UserLocker interface {
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}
