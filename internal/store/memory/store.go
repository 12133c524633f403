// Package memory is a mutex-guarded, in-process implementation of every
// lifecycle store interface. Conditional writes compare against the current
// value under the lock, which is all the compare-and-swap contract needs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"stagegate/internal/lifecycle"
	"stagegate/pkg/platform/sentinel"
)

type Store struct {
	mu            sync.RWMutex
	bots          map[string]lifecycle.Bot
	runners       map[string]lifecycle.Runner
	candidates    map[string]lifecycle.Candidate
	verifications map[string]lifecycle.Verification
}

func New() *Store {
	return &Store{
		bots:          make(map[string]lifecycle.Bot),
		runners:       make(map[string]lifecycle.Runner),
		candidates:    make(map[string]lifecycle.Candidate),
		verifications: make(map[string]lifecycle.Verification),
	}
}

// checkCtx maps an expired context onto the store sentinels.
func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", sentinel.ErrTimeout, err)
		}
		return err
	}
	return nil
}

// Bots

func (s *Store) SaveBot(ctx context.Context, bot lifecycle.Bot) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[bot.ID] = bot
	return nil
}

func (s *Store) FindBot(ctx context.Context, id string) (*lifecycle.Bot, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	bot, ok := s.bots[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &bot, nil
}

func (s *Store) CompareAndSwapStage(ctx context.Context, id string, expected, next lifecycle.Stage, at time.Time) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bot, ok := s.bots[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if bot.Stage != expected {
		return sentinel.ErrConflict
	}
	bot.Stage = next
	bot.StageUpdatedAt = at
	s.bots[id] = bot
	return nil
}

func (s *Store) SaveRunner(ctx context.Context, runner lifecycle.Runner) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners[runner.ID] = runner
	return nil
}

// ListBotsWithRunners joins bots with their primary runner, ordered by bot
// ID and starting after afterID. The primary runner is the most recently
// updated active one, else the most recently updated inactive one.
func (s *Store) ListBotsWithRunners(ctx context.Context, afterID string, limit int) ([]lifecycle.BotRunner, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	primary := make(map[string]lifecycle.Runner)
	for _, r := range s.runners {
		cur, ok := primary[r.BotID]
		if !ok || betterRunner(r, cur) {
			primary[r.BotID] = r
		}
	}

	out := make([]lifecycle.BotRunner, 0, len(s.bots))
	for _, b := range s.bots {
		if b.ID <= afterID {
			continue
		}
		br := lifecycle.BotRunner{Bot: b}
		if r, ok := primary[b.ID]; ok {
			br.Runner = &r
		}
		out = append(out, br)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bot.ID < out[j].Bot.ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func betterRunner(a, b lifecycle.Runner) bool {
	if a.Active != b.Active {
		return a.Active
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

// Candidates

func (s *Store) SaveCandidate(ctx context.Context, c lifecycle.Candidate) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.ID] = c
	return nil
}

func (s *Store) FindCandidate(ctx context.Context, id string) (*lifecycle.Candidate, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CompareAndSwapDisposition(ctx context.Context, id string, expected, next lifecycle.Disposition, at time.Time) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.Disposition != expected {
		return sentinel.ErrConflict
	}
	c.Disposition = next
	c.UpdatedAt = at
	s.candidates[id] = c
	return nil
}

// ListCandidatesInDisposition returns candidates in d last updated before
// updatedBefore, oldest first.
func (s *Store) ListCandidatesInDisposition(ctx context.Context, d lifecycle.Disposition, updatedBefore time.Time, limit int) ([]lifecycle.Candidate, error) {
	return s.ListCandidatesInDispositionAfter(ctx, d, updatedBefore, lifecycle.CandidateKey{}, limit)
}

// ListCandidatesInDispositionAfter is ListCandidatesInDisposition resumed
// after the given key.
func (s *Store) ListCandidatesInDispositionAfter(ctx context.Context, d lifecycle.Disposition, updatedBefore time.Time, after lifecycle.CandidateKey, limit int) ([]lifecycle.Candidate, error) {
	return s.listCandidates(ctx, limit, func(c lifecycle.Candidate) bool {
		return c.Disposition == d && c.UpdatedAt.Before(updatedBefore) && after.Precedes(c)
	})
}

// ListCandidatesWithoutBot is ListCandidatesInDisposition restricted to
// candidates with no CreatedBotID.
func (s *Store) ListCandidatesWithoutBot(ctx context.Context, d lifecycle.Disposition, updatedBefore time.Time, limit int) ([]lifecycle.Candidate, error) {
	return s.listCandidates(ctx, limit, func(c lifecycle.Candidate) bool {
		return c.Disposition == d && c.UpdatedAt.Before(updatedBefore) && c.CreatedBotID == ""
	})
}

func (s *Store) listCandidates(ctx context.Context, limit int, keep func(lifecycle.Candidate) bool) ([]lifecycle.Candidate, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []lifecycle.Candidate
	for _, c := range s.candidates {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Verifications

func (s *Store) SaveVerification(ctx context.Context, v lifecycle.Verification) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifications[v.ID] = v
	return nil
}

func (s *Store) UpdateVerificationStatus(ctx context.Context, id string, status lifecycle.VerificationStatus, passed bool, at time.Time) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	v.Status = status
	v.Passed = passed
	v.UpdatedAt = at
	s.verifications[id] = v
	return nil
}

// ListQueuedVerifications returns QUEUED verifications whose candidate is in
// one of dispositions.
func (s *Store) ListQueuedVerifications(ctx context.Context, dispositions []lifecycle.Disposition, limit int) ([]lifecycle.CandidateVerification, error) {
	return s.joinVerifications(ctx, limit, func(c lifecycle.Candidate, v lifecycle.Verification) bool {
		return v.Status == lifecycle.VerificationQueued && inSet(c.Disposition, dispositions)
	})
}

// ListVerifiedNotAdvanced returns passed, completed verifications whose
// candidate is still in one of dispositions and has no CreatedBotID.
func (s *Store) ListVerifiedNotAdvanced(ctx context.Context, dispositions []lifecycle.Disposition, limit int) ([]lifecycle.CandidateVerification, error) {
	return s.joinVerifications(ctx, limit, func(c lifecycle.Candidate, v lifecycle.Verification) bool {
		return v.Status == lifecycle.VerificationCompleted && v.Passed &&
			c.CreatedBotID == "" && inSet(c.Disposition, dispositions)
	})
}

func (s *Store) joinVerifications(ctx context.Context, limit int, keep func(lifecycle.Candidate, lifecycle.Verification) bool) ([]lifecycle.CandidateVerification, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []lifecycle.CandidateVerification
	for _, v := range s.verifications {
		c, ok := s.candidates[v.CandidateID]
		if !ok || !keep(c, v) {
			continue
		}
		out = append(out, lifecycle.CandidateVerification{Candidate: c, Verification: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Candidate.ID == out[j].Candidate.ID {
			return out[i].Verification.ID < out[j].Verification.ID
		}
		return out[i].Candidate.ID < out[j].Candidate.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func inSet(d lifecycle.Disposition, set []lifecycle.Disposition) bool {
	for _, x := range set {
		if x == d {
			return true
		}
	}
	return false
}
