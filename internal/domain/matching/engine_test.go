package matching

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

func newUser(id string, offered, wanted []string) *user.User {
	return &user.User{
		ID:           id,
		Skills:       user.Skills{Offered: offered, Wanted: wanted},
		Availability: user.Availability{Status: user.StatusOffline},
		LastActiveAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// isolated returns a user that shares no compatibility factor with newUser defaults
// when the subject is at level 0 with reputation 0.
func isolated(id string, offered, wanted []string) *user.User {
	u := newUser(id, offered, wanted)
	u.Level = 10
	u.Reputation = 5
	return u
}

func TestEngine_Score_MutualExchange(t *testing.T) {
	e := NewEngine()
	subject := newUser("a", []string{"Go", "SQL"}, []string{"Design"})
	cand := isolated("b", []string{"design"}, []string{"go"})

	r := e.Score(subject, cand)

	// |A| = 1 (Design), |B| = 1 (Go): 25 × 2
	assert.Equal(t, 50, r.Score)
	assert.Equal(t, "Mutual skill exchange (2 skills)", r.Reasons[0])
	assert.Contains(t, r.Reasons, "Can teach you: Design")
	assert.Contains(t, r.Reasons, "Wants to learn from you: go")
}

func TestEngine_Score_OneDirectional(t *testing.T) {
	e := NewEngine()
	subject := newUser("a", nil, []string{"Go", "Rust", "Piano"})
	cand := isolated("b", []string{"Go", "Piano"}, nil)

	r := e.Score(subject, cand)

	assert.Equal(t, 30, r.Score)
	assert.Equal(t, []string{"Can teach you: Go, Piano"}, r.Reasons)
}

func TestEngine_Score_Compatibility(t *testing.T) {
	e := NewEngine()
	subject := newUser("a", nil, nil)
	subject.Reputation = 4.0
	subject.Level = 3
	subject.SessionsCompleted = 6
	subject.IsVerified = true
	subject.Availability.Status = user.StatusAvailable

	cand := newUser("b", nil, nil)
	cand.Reputation = 3.5
	cand.Level = 5
	cand.SessionsCompleted = 7
	cand.IsVerified = true
	cand.Availability.Status = user.StatusAvailable

	r := e.Score(subject, cand)

	assert.Equal(t, 10+8+5+5+10, r.Score)
	assert.Len(t, r.Reasons, 5)
}

func TestEngine_Score_Location(t *testing.T) {
	e := NewEngine()
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"exact case-insensitive", "Berlin", " berlin ", 15},
		{"substring", "Berlin", "Berlin, Germany", 8},
		{"reverse substring", "New York City", "york", 8},
		{"different", "Paris", "Rome", 0},
		{"unset", "", "Rome", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject := newUser("a", nil, nil)
			subject.Location = tt.a
			cand := isolated("b", nil, nil)
			cand.Location = tt.b

			assert.Equal(t, tt.want, e.Score(subject, cand).Score)
		})
	}
}

func TestEngine_ComputeMatches_ExcludesZeroAndSubject(t *testing.T) {
	e := NewEngine()
	subject := newUser("a", []string{"Go"}, []string{"Design"})
	pool := []*user.User{
		subject,
		isolated("zero", []string{"Cooking"}, nil),
		isolated("match", []string{"Design"}, nil),
		nil,
	}

	res := e.ComputeMatches(subject, pool, 10)

	require.Len(t, res, 1)
	assert.Equal(t, "match", res[0].User.ID)
	assert.Equal(t, 1, res[0].Rank)
	assert.False(t, res[0].Fallback)
}

func TestEngine_ComputeMatches_TieBreakByUserID(t *testing.T) {
	e := NewEngine()
	subject := newUser("s", nil, []string{"Go"})
	pool := []*user.User{
		isolated("u3", []string{"Go"}, nil),
		isolated("u1", []string{"Go"}, nil),
		isolated("u2", []string{"Go"}, nil),
	}

	res := e.ComputeMatches(subject, pool, 10)

	assert.Equal(t, []string{"u1", "u2", "u3"}, res.UserIDs())
}

func TestEngine_ComputeMatches_Deterministic(t *testing.T) {
	e := NewEngine(WithParallelism(4, 8))
	subject := newUser("s", []string{"Go", "SQL"}, []string{"Design", "Piano"})
	subject.Availability.Status = user.StatusAvailable

	var pool []*user.User
	for i := 0; i < 200; i++ {
		offered := []string{"Design"}
		if i%3 == 0 {
			offered = append(offered, "Piano")
		}
		c := newUser(fmt.Sprintf("u%03d", i), offered, []string{"Go"})
		c.Level = i % 7
		c.Reputation = float64(i%5) + 0.5
		if i%2 == 0 {
			c.Availability.Status = user.StatusAvailable
		}
		pool = append(pool, c)
	}

	first := e.ComputeMatches(subject, pool, 25)
	for i := 0; i < 20; i++ {
		again := e.ComputeMatches(subject, pool, 25)
		require.Equal(t, first.UserIDs(), again.UserIDs())
	}
	sequential := NewEngine(WithParallelism(0, 0)).ComputeMatches(subject, pool, 25)
	assert.Equal(t, first.UserIDs(), sequential.UserIDs())

	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i-1].Score, first[i].Score)
	}
}

func TestEngine_ComputeMatches_Fallback(t *testing.T) {
	e := NewEngine()
	subject := newUser("s", []string{"Go"}, []string{"Design"})
	now := time.Now()

	pool := []*user.User{
		isolated("old", nil, nil),
		isolated("new", nil, nil),
		isolated("mid", nil, nil),
		isolated("new", nil, nil), // duplicate
		subject,
	}
	pool[0].LastActiveAt = now.Add(-72 * time.Hour)
	pool[1].LastActiveAt = now
	pool[2].LastActiveAt = now.Add(-time.Hour)

	res := e.ComputeMatches(subject, pool, 2)

	require.Len(t, res, 2)
	assert.Equal(t, []string{"new", "mid"}, res.UserIDs())
	for _, r := range res {
		assert.True(t, r.Fallback)
		assert.True(t, r.IsExplore())
		assert.Equal(t, 10, r.Score)
		assert.True(t, strings.HasPrefix(r.Reasons[0], ExploreMarker))
	}
}

func TestEngine_ComputeMatches_EmptyPool(t *testing.T) {
	e := NewEngine()
	subject := newUser("s", []string{"Go"}, nil)

	assert.NotPanics(t, func() {
		res := e.ComputeMatches(subject, nil, 5)
		assert.Empty(t, res)
	})
}

func TestEngine_ComputeMatches_DefaultLimit(t *testing.T) {
	e := NewEngine()
	subject := newUser("s", nil, []string{"Go"})
	var pool []*user.User
	for i := 0; i < 30; i++ {
		pool = append(pool, isolated(fmt.Sprintf("u%02d", i), []string{"Go"}, nil))
	}

	assert.Len(t, e.ComputeMatches(subject, pool, 0), DefaultLimit)
}

func TestEngine_ComputeSOSMatches(t *testing.T) {
	e := NewEngine()
	mk := func(id string, rep float64, verified, available bool, offered ...string) *user.User {
		u := newUser(id, offered, nil)
		u.Reputation = rep
		u.IsVerified = verified
		if available {
			u.Availability.Status = user.StatusAvailable
		}
		return u
	}

	pool := []*user.User{
		mk("a", 4.0, false, true, "Go"),
		mk("b", 3.5, true, true, "go"),
		mk("c", 5.0, true, false, "Go"), // busy
		mk("d", 4.8, false, true, "Rust"),
		mk("req", 5.0, true, true, "Go"),
	}

	res := e.ComputeSOSMatches("Go", pool, "req")

	require.Len(t, res, 2)
	assert.Equal(t, []string{"b", "a"}, res.UserIDs())
	assert.Equal(t, 55, res[0].Score)
	assert.Equal(t, 40, res[1].Score)
	assert.False(t, res.HasFallback())
}

func TestEngine_ComputeSOSMatches_Fallback(t *testing.T) {
	e := NewEngine()
	var pool []*user.User
	for i, rep := range []float64{4.0, 4.1, 4.9, 4.5, 4.7, 4.3, 4.6} {
		u := newUser(fmt.Sprintf("u%d", i), []string{"Cooking"}, nil)
		u.Reputation = rep
		u.Availability.Status = user.StatusAvailable
		pool = append(pool, u)
	}

	res := e.ComputeSOSMatches("Go", pool, "")

	require.Len(t, res, SOSLimit)
	assert.True(t, res.HasFallback())
	assert.Equal(t, []string{"u2", "u4", "u6", "u3", "u5"}, res.UserIDs())
	assert.Equal(t, 49, res[0].Score)
	for _, r := range res {
		assert.Greater(t, r.User.Reputation, 4.0)
	}
}

func TestIntersect(t *testing.T) {
	assert.Equal(t, []string{"Go", "SQL"}, Intersect([]string{"Go", "SQL", "go", "Rust"}, []string{"sql", "GO"}))
	assert.Nil(t, Intersect(nil, []string{"Go"}))
}
