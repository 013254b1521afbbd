package seed

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEnsureSampleRules_Idempotent(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:seed_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := conn.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&domain.TaxRuleRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	inserted, err := EnsureSampleRules(conn, node)
	require.NoError(t, err)
	assert.Equal(t, len(SampleRules()), inserted)

	inserted, err = EnsureSampleRules(conn, node)
	require.NoError(t, err)
	assert.Zero(t, inserted)

	var count int64
	require.NoError(t, conn.Model(&domain.TaxRuleRecord{}).Count(&count).Error)
	assert.Equal(t, int64(len(SampleRules())), count)
}

func TestSampleRules_AreValid(t *testing.T) {
	for _, rule := range SampleRules() {
		r := rule
		assert.NoError(t, r.Validate(), r.Code)
	}
}
