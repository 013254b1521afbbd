package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/airtax/internal/clock"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) ListAll(ctx context.Context) ([]domain.TaxRuleRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TaxRuleRecord), args.Error(1)
}

func rule(id int64, nation, code string, seq int) domain.TaxRuleRecord {
	return domain.TaxRuleRecord{ID: snowflake.ID(id), Nation: nation, Code: code, SeqNo: seq}
}

func TestSnapshot_RulesForOrdersByVisit(t *testing.T) {
	snap := New([]domain.TaxRuleRecord{
		rule(1, "US", "US1", 200),
		rule(2, "CA", "CA1", 100),
		rule(3, "US", "AY", 100),
		rule(4, "US", "US1", 100),
		rule(5, "GB", "GB", 100),
	}, time.Now())

	got := snap.RulesFor([]string{"ca", "US", "CA"})
	require.Len(t, got, 4)
	assert.Equal(t, "CA1", got[0].Code)
	assert.Equal(t, "AY", got[1].Code)
	assert.Equal(t, "US1", got[2].Code)
	assert.Equal(t, 100, got[2].SeqNo)
	assert.Equal(t, 200, got[3].SeqNo)

	assert.Empty(t, snap.RulesFor([]string{"JP"}))
}

func TestStore_RefreshSwapsAndKeepsOldOnError(t *testing.T) {
	reader := &mockReader{}
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	store := NewStore(Params{Reader: reader, Clock: fake, Log: zap.NewNop()})
	assert.Zero(t, store.Current().Len())

	reader.On("ListAll", mock.Anything).Return([]domain.TaxRuleRecord{rule(1, "US", "US1", 100)}, nil).Once()
	n, err := store.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, fake.Now(), store.Current().LoadedAt())

	before := store.Current()
	reader.On("ListAll", mock.Anything).Return(nil, errors.New("db down")).Once()
	_, err = store.Refresh(context.Background())
	require.Error(t, err)
	assert.Same(t, before, store.Current())

	reader.AssertExpectations(t)
}
