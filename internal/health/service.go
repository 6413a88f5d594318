package health

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

const (
	defaultFailureThreshold = 3
	defaultCheckTimeout     = 2 * time.Second
)

// Service tracks the health of registered dependencies. A dependency turns
// unhealthy after failureThreshold consecutive failed checks and healthy
// again on the first success.
type Service struct {
	mu               sync.RWMutex
	components       map[string]*Component
	checks           map[string]CheckFunc
	failureThreshold int
	checkTimeout     time.Duration
	nowFn            func() time.Time
}

// NewService creates a new health service
func NewService(failureThreshold int, checkTimeout time.Duration) *Service {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if checkTimeout <= 0 {
		checkTimeout = defaultCheckTimeout
	}

	return &Service{
		components:       make(map[string]*Component),
		checks:           make(map[string]CheckFunc),
		failureThreshold: failureThreshold,
		checkTimeout:     checkTimeout,
		nowFn:            time.Now,
	}
}

// Register adds a dependency and its check
func (s *Service) Register(name string, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.components[name]; !exists {
		s.components[name] = &Component{Name: name, Status: StatusUnknown}
		log.Printf("[HEALTH] Registered dependency %s", name)
	}
	s.checks[name] = check
}

// CheckAll runs every registered check concurrently and records the outcome
func (s *Service) CheckAll(ctx context.Context) {
	s.mu.RLock()
	checks := make(map[string]CheckFunc, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
			defer cancel()

			start := time.Now()
			err := check(checkCtx)
			latency := time.Since(start).Milliseconds()
			if err != nil {
				s.MarkUnhealthy(name, err.Error(), latency)
				return
			}
			s.MarkHealthy(name, latency)
		}(name, check)
	}
	wg.Wait()
}

// MarkHealthy records a successful check
func (s *Service) MarkHealthy(name string, latencyMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.components[name]
	if !exists {
		return
	}

	wasUnhealthy := c.Status == StatusUnhealthy
	now := s.nowFn()
	c.Status = StatusHealthy
	c.FailureCount = 0
	c.LastError = ""
	c.LastSuccessAt = now
	c.LastChecked = now
	c.LatencyMs = latencyMs

	if wasUnhealthy {
		log.Printf("[HEALTH] %s recovered - now healthy", name)
	}
}

// MarkUnhealthy records a failure. After reaching the threshold, the
// dependency is marked unhealthy.
func (s *Service) MarkUnhealthy(name string, errMsg string, latencyMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.components[name]
	if !exists {
		return
	}

	c.FailureCount++
	c.LastError = errMsg
	c.LastChecked = s.nowFn()
	c.LatencyMs = latencyMs

	if c.FailureCount >= s.failureThreshold {
		if c.Status != StatusUnhealthy {
			log.Printf("[HEALTH] %s marked UNHEALTHY after %d failures: %s",
				name, c.FailureCount, truncateStr(errMsg, 200))
		}
		c.Status = StatusUnhealthy
	} else {
		log.Printf("[HEALTH] %s failure %d/%d: %s",
			name, c.FailureCount, s.failureThreshold, truncateStr(errMsg, 200))
	}
}

// Healthy reports whether no registered dependency is unhealthy
func (s *Service) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.components {
		if c.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}

// Components returns a snapshot of every dependency, sorted by name
func (s *Service) Components() []Component {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Component, 0, len(s.components))
	for _, c := range s.components {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
