package monitoring

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"heartify/db"
)

// ErrInvalidReading rejects a reading with a missing or zero value.
var ErrInvalidReading = errors.New("invalid heart-rate reading")

const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

// Operation values carried by heartRateUpdate events.
const (
	OpInsert = "insert"
	OpLatest = "latest"
)

// ReadingInput is the payload a monitor posts after each measurement.
type ReadingInput struct {
	MaxBPM     *float64 `json:"maxbpm"`
	AvgBPM     *float64 `json:"av6"`
	MinBPM     *float64 `json:"minbpm"`
	HeartifyID string   `json:"heartifyID,omitempty"`
}

func (in ReadingInput) reading() (*db.Reading, error) {
	values := []*float64{in.MaxBPM, in.AvgBPM, in.MinBPM}
	for _, v := range values {
		if v == nil || *v == 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
			return nil, ErrInvalidReading
		}
	}
	return &db.Reading{
		MaxBPM:     *in.MaxBPM,
		AvgBPM:     *in.AvgBPM,
		MinBPM:     *in.MinBPM,
		HeartifyID: strings.TrimSpace(in.HeartifyID),
	}, nil
}

// Update is the data of a heartRateUpdate event.
type Update struct {
	MaxBPM    float64   `json:"maxBPM"`
	AvgBPM    float64   `json:"avgBPM"`
	MinBPM    float64   `json:"minBPM"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
}

// HeartRateService stores readings, serves summaries and notifies
// websocket clients of new readings.
type HeartRateService struct {
	hub     *WebSocketHub
	alerts  *AlertManager
	latest  *lru.Cache[string, db.Reading]
	logger  *zap.Logger
	metrics *Metrics
	loc     *time.Location
	now     func() time.Time
}

// NewHeartRateService keeps the latest reading of up to cacheSize devices
// in memory. Day boundaries are computed in loc.
func NewHeartRateService(hub *WebSocketHub, cacheSize int, loc *time.Location, logger *zap.Logger, metrics *Metrics) (*HeartRateService, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[string, db.Reading](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create latest-reading cache: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeartRateService{
		hub:     hub,
		latest:  cache,
		logger:  logger,
		metrics: metrics,
		loc:     loc,
		now:     time.Now,
	}, nil
}

// SetAlerts checks every stored reading against the manager's bounds.
func (s *HeartRateService) SetAlerts(alerts *AlertManager) {
	s.alerts = alerts
}

// Ingest validates and stores a reading, then broadcasts it.
func (s *HeartRateService) Ingest(in ReadingInput, source string) (*db.Reading, error) {
	r, err := in.reading()
	if err != nil {
		s.metrics.readingRejected(source)
		return nil, err
	}
	r.CreatedAt = s.now()
	if err := db.InsertReading(r); err != nil {
		return nil, fmt.Errorf("store reading: %w", err)
	}
	s.metrics.readingStored(source)

	s.latest.Add("", *r)
	if r.HeartifyID != "" {
		s.latest.Add(r.HeartifyID, *r)
	}

	s.publish(*r, OpInsert)
	s.alerts.Check(*r)
	s.logger.Debug("heart-rate reading stored",
		zap.String("source", source),
		zap.String("heartify_id", r.HeartifyID),
		zap.Float64("max_bpm", r.MaxBPM),
	)
	return r, nil
}

// Latest returns the newest reading, optionally for one device. It
// returns db.ErrNotFound when there is none.
func (s *HeartRateService) Latest(heartifyID string) (*db.Reading, error) {
	if r, ok := s.latest.Get(heartifyID); ok {
		s.metrics.cacheLookup(true)
		return &r, nil
	}
	s.metrics.cacheLookup(false)

	r, err := db.LatestReading(heartifyID)
	if err != nil {
		return nil, err
	}
	s.latest.Add(heartifyID, *r)
	return r, nil
}

// Daily returns today's readings, oldest first.
func (s *HeartRateService) Daily() ([]db.Reading, error) {
	today := startOfDay(s.now().In(s.loc))
	readings, err := db.ReadingsBetween(today, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	for i := range readings {
		readings[i].CreatedAt = readings[i].CreatedAt.In(s.loc)
	}
	return readings, nil
}

// Weekly summarizes the last seven days and today, one entry per day.
func (s *HeartRateService) Weekly() ([]DaySummary, error) {
	today := startOfDay(s.now().In(s.loc))
	readings, err := db.ReadingsBetween(today.AddDate(0, 0, -7), today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return DailyBuckets(readings, s.loc), nil
}

// Monthly summarizes the last month, one entry per week of month.
func (s *HeartRateService) Monthly() ([]WeekSummary, error) {
	today := startOfDay(s.now().In(s.loc))
	readings, err := db.ReadingsBetween(today.AddDate(0, -1, 0), today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return WeeklyBuckets(readings, s.loc), nil
}

// Prune deletes readings older than the retention window and broadcasts
// the newest remaining reading.
func (s *HeartRateService) Prune(retention time.Duration) (int64, error) {
	deleted, err := db.DeleteReadingsBefore(s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, nil
	}
	s.metrics.readingsPruned(deleted)
	s.latest.Purge()

	latest, err := s.Latest("")
	switch {
	case errors.Is(err, db.ErrNotFound):
	case err != nil:
		return deleted, err
	default:
		s.publish(*latest, OpLatest)
	}
	s.logger.Info("pruned heart-rate readings", zap.Int64("deleted", deleted))
	return deleted, nil
}

func (s *HeartRateService) publish(r db.Reading, op string) {
	if s.hub == nil {
		return
	}
	err := s.hub.Publish(Message{
		Type: HeartRateUpdate,
		Data: Update{
			MaxBPM:    r.MaxBPM,
			AvgBPM:    r.AvgBPM,
			MinBPM:    r.MinBPM,
			Timestamp: r.CreatedAt,
			Operation: op,
		},
	})
	if err != nil {
		s.logger.Warn("heart-rate broadcast failed", zap.Error(err))
	}
}
