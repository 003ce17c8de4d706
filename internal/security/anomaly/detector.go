// Package anomaly maintains a per-user risk score over recent actions.
// The score is a heuristic signal, not a certainty: callers decide the
// blocking threshold (the guard blocks above 70).
package anomaly

import (
	"strings"
	"sync"
	"time"

	"batisecure/internal/platform/metrics"
	platformsync "batisecure/pkg/platform/sync"
)

// Activity tags recorded on profiles when a rule fires.
const (
	TagBulkDataAccess       = "BULK_DATA_ACCESS"
	TagMultipleFailedLogins = "MULTIPLE_FAILED_LOGINS"
	TagUnusualTimeAccess    = "UNUSUAL_TIME_ACCESS"
)

// Score deltas per rule.
const (
	deltaBulkAccess   = 30
	deltaFailedLogins = 50
	deltaUnusualTime  = 20

	// MaxScore caps the risk score.
	MaxScore = 100
	// maxActivities bounds the per-profile activity history.
	maxActivities = 10
)

// Metadata carries request context consulted by the scoring rules.
type Metadata struct {
	FailedLogins int
}

// Profile is the per-user detection state. Scores never decrease within a
// process lifetime; only a restart clears them. A decay policy is a known
// open point, deliberately not invented here.
type Profile struct {
	UserID     string
	Activities []string
	Score      int
	LastSeen   time.Time
}

// Detector holds process-local profiles keyed by user ID.
type Detector struct {
	mu       sync.RWMutex // guards the map itself
	keys     *platformsync.ShardedMutex
	profiles map[string]*Profile
	now      func() time.Time
	metrics  *metrics.Metrics
}

// Option configures the Detector.
type Option func(*Detector)

// WithClock overrides the time source used for the unusual-hour rule.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// WithMetrics enables the score histogram.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

// NewDetector constructs an empty Detector.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		keys:     platformsync.NewShardedMutex(),
		profiles: make(map[string]*Profile),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Observe scores one action for the user and returns the updated cumulative
// risk score in [0,100]. Rules are additive per call:
//   - action contains BULK or EXPORT: +30
//   - more than 3 failed logins: +50
//   - server-local hour before 6 or after 22: +20
func (d *Detector) Observe(userID, action string, meta Metadata) int {
	d.keys.Lock(userID)
	defer d.keys.Unlock(userID)

	d.mu.RLock()
	profile, ok := d.profiles[userID]
	d.mu.RUnlock()
	if !ok {
		profile = &Profile{UserID: userID}
		d.mu.Lock()
		d.profiles[userID] = profile
		d.mu.Unlock()
	}

	now := d.now()
	delta := 0

	upper := strings.ToUpper(action)
	if strings.Contains(upper, "BULK") || strings.Contains(upper, "EXPORT") {
		delta += deltaBulkAccess
		profile.record(TagBulkDataAccess)
	}
	if meta.FailedLogins > 3 {
		delta += deltaFailedLogins
		profile.record(TagMultipleFailedLogins)
	}
	if hour := now.Hour(); hour < 6 || hour > 22 {
		delta += deltaUnusualTime
		profile.record(TagUnusualTimeAccess)
	}

	profile.Score = min(profile.Score+delta, MaxScore)
	profile.LastSeen = now

	if d.metrics != nil {
		d.metrics.ObserveAnomalyScore(profile.Score)
	}
	return profile.Score
}

// Profile returns a copy of the user's detection state, or nil if the user
// has never been observed. Admin surface.
func (d *Detector) Profile(userID string) *Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	profile, ok := d.profiles[userID]
	if !ok {
		return nil
	}
	copyProfile := *profile
	copyProfile.Activities = append([]string{}, profile.Activities...)
	return &copyProfile
}

// record appends an activity tag, keeping only the most recent entries.
func (p *Profile) record(tag string) {
	p.Activities = append(p.Activities, tag)
	if len(p.Activities) > maxActivities {
		p.Activities = p.Activities[len(p.Activities)-maxActivities:]
	}
}
