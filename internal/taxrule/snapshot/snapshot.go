package snapshot

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/smallbiznis/airtax/internal/clock"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Snapshot is an immutable, ordered view of the rule table.
type Snapshot struct {
	loadedAt time.Time
	rules    []domain.TaxRuleRecord
	byNation map[string][]int
}

// New orders rules by nation, code and sequence number.
func New(rules []domain.TaxRuleRecord, loadedAt time.Time) *Snapshot {
	owned := make([]domain.TaxRuleRecord, len(rules))
	copy(owned, rules)
	sort.SliceStable(owned, func(i, j int) bool {
		a, b := owned[i], owned[j]
		if a.Nation != b.Nation {
			return a.Nation < b.Nation
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.SeqNo < b.SeqNo
	})

	byNation := make(map[string][]int)
	for i := range owned {
		n := strings.ToUpper(owned[i].Nation)
		byNation[n] = append(byNation[n], i)
	}
	return &Snapshot{loadedAt: loadedAt, rules: owned, byNation: byNation}
}

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

func (s *Snapshot) Len() int { return len(s.rules) }

// RulesFor returns the rules of the given nations, nation blocks in the
// order given. The returned records are shared and must not be mutated.
func (s *Snapshot) RulesFor(nations []string) []*domain.TaxRuleRecord {
	seen := make(map[string]struct{}, len(nations))
	var out []*domain.TaxRuleRecord
	for _, n := range nations {
		n = strings.ToUpper(n)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		for _, idx := range s.byNation[n] {
			out = append(out, &s.rules[idx])
		}
	}
	return out
}

type Params struct {
	fx.In

	Reader domain.Reader
	Clock  clock.Clock
	Log    *zap.Logger
}

// Store publishes the current snapshot. Readers never observe a partial refresh.
type Store struct {
	reader  domain.Reader
	clock   clock.Clock
	log     *zap.Logger
	current atomic.Pointer[Snapshot]
}

func NewStore(p Params) *Store {
	s := &Store{
		reader: p.Reader,
		clock:  p.Clock,
		log:    p.Log.Named("taxrule.snapshot"),
	}
	s.current.Store(New(nil, time.Time{}))
	return s
}

// NewStatic builds a store around a fixed rule set.
func NewStatic(rules []domain.TaxRuleRecord) *Store {
	s := &Store{log: zap.NewNop()}
	s.current.Store(New(rules, time.Now().UTC()))
	return s
}

func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Refresh reloads every rule and swaps the snapshot; the old one stays on error.
func (s *Store) Refresh(ctx context.Context) (int, error) {
	if s.reader == nil {
		return s.Current().Len(), nil
	}
	rules, err := s.reader.ListAll(ctx)
	if err != nil {
		s.log.Warn("rule snapshot refresh failed", zap.Error(err))
		return 0, err
	}

	now := time.Now().UTC()
	if s.clock != nil {
		now = s.clock.Now()
	}
	next := New(rules, now)
	s.current.Store(next)
	s.log.Debug("rule snapshot refreshed", zap.Int("rules", next.Len()))
	return next.Len(), nil
}
