package event

import (
	"collab-engine/internal/errors"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RoleChecker answers whether a user currently holds one of the given roles
// among a session's active participants. Implemented by the session store.
type RoleChecker interface {
	HasActiveRole(ctx context.Context, sessionID uint64, userID uint64, roles ...string) (bool, error)
}

// Record is the append input; SessionID is set per target during fan-out.
type Record struct {
	SessionID  uint64
	Type       string
	Payload    Payload
	ActorID    uint64
	DocumentID *uint64
	DocVersion *int
	Position   *string
}

type Service interface {
	Append(ctx context.Context, rec Record) (*Event, error)
	FanOut(ctx context.Context, sessionIDs []uint64, rec Record)
	Query(ctx context.Context, f Filter, page, pageSize int) ([]Event, Meta, error)
	DeleteEvents(ctx context.Context, sessionID uint64, olderThan *time.Time, requestingUserID uint64) (int64, error)
	Summarize(ctx context.Context, sessionID uint64, window string) (*Summary, error)
	Metrics(ctx context.Context, sessionID uint64, start, end time.Time) (*MetricsReport, error)
}

type DefaultService struct {
	repository Repository
	roles      RoleChecker
	log        zerolog.Logger
}

func NewService(repository Repository, roles RoleChecker, log zerolog.Logger) Service {
	return &DefaultService{
		repository: repository,
		roles:      roles,
		log:        log,
	}
}

func (s *DefaultService) Append(ctx context.Context, rec Record) (*Event, error) {
	if rec.SessionID == 0 {
		return nil, errors.BadRequest("Event session is required", nil)
	}
	if rec.Type == "" {
		return nil, errors.BadRequest("Event type is required", nil)
	}
	if rec.ActorID == 0 {
		return nil, errors.BadRequest("Event actor is required", nil)
	}

	e := &Event{
		SessionID:  rec.SessionID,
		Type:       rec.Type,
		Payload:    rec.Payload,
		ActorID:    rec.ActorID,
		DocumentID: rec.DocumentID,
		DocVersion: rec.DocVersion,
		Position:   rec.Position,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repository.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// FanOut appends one event per target session. The log is diagnostic, not
// the system of record, so a failed append is logged and the loop continues.
func (s *DefaultService) FanOut(ctx context.Context, sessionIDs []uint64, rec Record) {
	for _, sessionID := range sessionIDs {
		rec.SessionID = sessionID
		if _, err := s.Append(ctx, rec); err != nil {
			s.log.Warn().Err(err).
				Uint64("session_id", sessionID).
				Str("type", rec.Type).
				Msg("event fan-out append failed")
		}
	}
}

func (s *DefaultService) Query(ctx context.Context, f Filter, page, pageSize int) ([]Event, Meta, error) {
	if f.SessionID == 0 {
		return nil, Meta{}, errors.BadRequest("Session id is required", nil)
	}
	return s.repository.List(ctx, f, page, pageSize)
}

func (s *DefaultService) DeleteEvents(ctx context.Context, sessionID uint64, olderThan *time.Time, requestingUserID uint64) (int64, error) {
	ok, err := s.roles.HasActiveRole(ctx, sessionID, requestingUserID, "owner", "admin")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.Forbidden("Only session owner or admin can delete events", nil)
	}

	return s.repository.DeleteBySession(ctx, sessionID, olderThan)
}

type Summary struct {
	SessionID       uint64           `json:"session_id"`
	Window          string           `json:"window"`
	TotalEvents     int              `json:"total_events"`
	ActiveUsers     int              `json:"active_users"`
	DocumentChanges int              `json:"document_changes"`
	CommentActivity int              `json:"comment_activity"`
	Conflicts       int              `json:"conflicts"`
	ByType          map[string]int   `json:"by_type"`
	ByActor         map[uint64]int   `json:"by_actor"`
	HourlyTimeline  []TimelineBucket `json:"hourly_timeline"`
}

type TimelineBucket struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}

func windowDuration(window string) (time.Duration, error) {
	switch window {
	case "hour":
		return time.Hour, nil
	case "day":
		return 24 * time.Hour, nil
	case "week":
		return 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown window %q", window)
	}
}

func (s *DefaultService) Summarize(ctx context.Context, sessionID uint64, window string) (*Summary, error) {
	d, err := windowDuration(window)
	if err != nil {
		return nil, errors.BadRequest("Window must be hour, day or week", err)
	}

	since := time.Now().UTC().Add(-d)
	events, err := s.repository.ListSince(ctx, sessionID, since)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		SessionID: sessionID,
		Window:    window,
		ByType:    map[string]int{},
		ByActor:   map[uint64]int{},
	}

	timeline := map[time.Time]int{}
	actors := map[uint64]struct{}{}

	for _, e := range events {
		summary.TotalEvents++
		summary.ByType[e.Type]++
		summary.ByActor[e.ActorID]++
		actors[e.ActorID] = struct{}{}

		switch {
		case e.Type == TypeDocumentChange:
			summary.DocumentChanges++
		case e.Type == TypeConflictDetected:
			summary.Conflicts++
		}
		if strings.Contains(e.Type, "comment") {
			summary.CommentActivity++
		}

		timeline[e.CreatedAt.Truncate(time.Hour)]++
	}
	summary.ActiveUsers = len(actors)

	hours := make([]time.Time, 0, len(timeline))
	for h := range timeline {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })
	for _, h := range hours {
		summary.HourlyTimeline = append(summary.HourlyTimeline, TimelineBucket{Hour: h, Count: timeline[h]})
	}

	return summary, nil
}

type MetricsReport struct {
	SessionID      uint64         `json:"session_id"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	TotalEvents    int            `json:"total_events"`
	DistinctActors int            `json:"distinct_actors"`
	AvgPerActor    float64        `json:"avg_events_per_actor"`
	ByType         map[string]int `json:"by_type"`
	ByHourOfDay    map[int]int    `json:"by_hour_of_day"`
	ByDay          map[string]int `json:"by_day"`
	PeakHour       int            `json:"peak_hour"`
	PeakDay        string         `json:"peak_day"`
}

func (s *DefaultService) Metrics(ctx context.Context, sessionID uint64, start, end time.Time) (*MetricsReport, error) {
	if !end.After(start) {
		return nil, errors.BadRequest("End must be after start", nil)
	}

	events, err := s.repository.ListBetween(ctx, sessionID, start, end)
	if err != nil {
		return nil, err
	}

	report := &MetricsReport{
		SessionID:   sessionID,
		Start:       start,
		End:         end,
		ByType:      map[string]int{},
		ByHourOfDay: map[int]int{},
		ByDay:       map[string]int{},
	}

	actors := map[uint64]struct{}{}
	for _, e := range events {
		report.TotalEvents++
		report.ByType[e.Type]++
		report.ByHourOfDay[e.CreatedAt.UTC().Hour()]++
		report.ByDay[e.CreatedAt.UTC().Format("2006-01-02")]++
		actors[e.ActorID] = struct{}{}
	}
	report.DistinctActors = len(actors)
	if report.DistinctActors > 0 {
		report.AvgPerActor = float64(report.TotalEvents) / float64(report.DistinctActors)
	}

	// Ties resolve to the earliest bucket, so results are deterministic
	// instead of depending on map iteration.
	report.PeakHour = peakHour(report.ByHourOfDay)
	report.PeakDay = peakDay(report.ByDay)

	return report, nil
}

func peakHour(buckets map[int]int) int {
	peak, best := 0, -1
	for hour := 0; hour < 24; hour++ {
		if count, ok := buckets[hour]; ok && count > best {
			peak, best = hour, count
		}
	}
	return peak
}

func peakDay(buckets map[string]int) string {
	days := make([]string, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Strings(days)

	peak, best := "", -1
	for _, day := range days {
		if buckets[day] > best {
			peak, best = day, buckets[day]
		}
	}
	return peak
}
