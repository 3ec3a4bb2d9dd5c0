package health

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Service tracks the health of external dependencies.
type Service struct {
	mu     sync.RWMutex
	items  map[string]HealthItem
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a new health service.
func NewService(logger zerolog.Logger) *Service {
	return &Service{
		items:  make(map[string]HealthItem),
		now:    time.Now,
		logger: logger.With().Str("component", "health").Logger(),
	}
}

// Register adds an item in OK state if it is not tracked yet.
func (s *Service) Register(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		s.items[id] = HealthItem{ID: id, Name: name, Status: StatusOK}
	}
}

// SetOK marks an item healthy.
func (s *Service) SetOK(id, name string) {
	s.set(id, name, StatusOK, "")
}

// SetWarning marks an item degraded.
func (s *Service) SetWarning(id, name, message string) {
	s.set(id, name, StatusWarning, message)
}

// SetError marks an item failing.
func (s *Service) SetError(id, name, message string) {
	s.set(id, name, StatusError, message)
}

func (s *Service) set(id, name string, status HealthStatus, message string) {
	now := s.now()

	s.mu.Lock()
	prev, existed := s.items[id]
	s.items[id] = HealthItem{ID: id, Name: name, Status: status, Message: message, Timestamp: &now}
	s.mu.Unlock()

	if existed && prev.Status != status {
		s.logger.Info().
			Str("id", id).
			Str("from", string(prev.Status)).
			Str("to", string(status)).
			Msg("Health status changed")
	}
}

// Get returns the item for id.
func (s *Service) Get(id string) (HealthItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Report returns all items, ordered by ID, with the worst status overall.
func (s *Service) Report() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := Report{Status: StatusOK, Items: make([]HealthItem, 0, len(s.items))}
	for _, item := range s.items {
		report.Items = append(report.Items, item)
		switch {
		case item.Status == StatusError:
			report.Status = StatusError
		case item.Status == StatusWarning && report.Status == StatusOK:
			report.Status = StatusWarning
		}
	}
	sort.Slice(report.Items, func(i, j int) bool { return report.Items[i].ID < report.Items[j].ID })
	return report
}
