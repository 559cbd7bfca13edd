// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worker

import (
	"context"
	"time"
)

// StartReaper collects idle sessions in the background until ctx is
// cancelled. A session is idle when no client activity arrived within
// the configured TTL; clients that vanished without teardown are
// collected here rather than leaking state. No-op when SessionTTL is 0.
func (rt *Runtime) StartReaper(ctx context.Context) {
	if rt.cfg.SessionTTL <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(rt.cfg.ReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rt.reapIdle(time.Now())
			}
		}
	}()
}

// reapIdle removes sessions whose last activity predates the TTL
// cutoff. Exposed to tests through the injected now.
func (rt *Runtime) reapIdle(now time.Time) int {
	cutoff := now.Add(-rt.cfg.SessionTTL)

	rt.mu.Lock()
	var expired []*Session
	for _, s := range rt.sessions {
		if s.LastSeen().Before(cutoff) {
			expired = append(expired, s)
		}
	}
	for _, s := range expired {
		delete(rt.sessions, s.ID)
	}
	activeSessions.Set(float64(len(rt.sessions)))
	rt.mu.Unlock()

	for _, s := range expired {
		reapedSessionsTotal.Inc()
		rt.logger.Info("reaped idle session",
			"session_id", s.ID,
			"idle", now.Sub(s.LastSeen()).Round(time.Second))
	}
	return len(expired)
}
