package terminal

import (
	"context"
	"fmt"
	"strings"
	"time"

	robcron "github.com/robfig/cron/v3"
)

// requestGitRefresh dispatches one guarded branch/status read for a session.
// A refresh already in flight suppresses the new one entirely; a refresh
// that resolves after a newer dispatch is discarded by the sequence check.
func (t *Tracker) requestGitRefresh(sessionID string) {
	if t == nil || t.git == nil {
		return
	}
	t.mu.Lock()
	r := t.rows[strings.TrimSpace(sessionID)]
	if r == nil || r.workingDir == "" || r.gitInFlight {
		t.mu.Unlock()
		return
	}
	t.gitSeqGen++
	r.gitSeq = t.gitSeqGen
	seq := r.gitSeq
	r.gitInFlight = true
	id := r.sessionID
	path := r.workingDir
	t.mu.Unlock()

	go t.runGitRefresh(id, path, seq)
}

func (t *Tracker) runGitRefresh(sessionID string, path string, seq uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	branch, status, err := t.git.Status(ctx, path)

	t.mu.Lock()
	r := t.rows[sessionID]
	if r != nil && r.gitInFlight && r.gitSeq == seq {
		r.gitInFlight = false
	}
	stale := r == nil || r.gitSeq != seq
	t.mu.Unlock()

	if stale {
		return
	}
	if err != nil {
		// Enrichment only; the command that triggered this already settled.
		t.logf("debug: git status for %s: %v", path, err)
		return
	}
	t.engine.SetGitState(sessionID, branch, status)
}

// StartGitPoller begins the periodic background refresh that keeps branch
// and status current even when no branch-mutating command runs. The returned
// stop function halts the schedule and waits for a running job to finish.
func (t *Tracker) StartGitPoller(every time.Duration) (stop func(), err error) {
	if t == nil || t.git == nil {
		return func() {}, nil
	}
	if every <= 0 {
		every = 30 * time.Second
	}
	c := robcron.New()
	_, err = c.AddFunc(fmt.Sprintf("@every %s", every), func() {
		t.mu.Lock()
		ids := make([]string, 0, len(t.rows))
		for id, r := range t.rows {
			if r.workingDir != "" {
				ids = append(ids, id)
			}
		}
		t.mu.Unlock()
		for _, id := range ids {
			t.requestGitRefresh(id)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return func() {
		<-c.Stop().Done()
	}, nil
}
