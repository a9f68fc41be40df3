package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.CandidateChunkSize)
	assert.InDelta(t, 0.90, cfg.AutoApplyThreshold, 1e-9)
	assert.Equal(t, 3, cfg.CommonNameThreshold)
	assert.Equal(t, 60*time.Second, cfg.SummaryCacheTTL)
	assert.Equal(t, "db/pg", cfg.DatabaseMigrationFolderPath)
	assert.Equal(t, "source.synced", cfg.SourceSyncTopic)
	assert.Equal(t, 5, cfg.KafkaHandlerAttempts)
	assert.Equal(t, models.Sources, cfg.Priority())
	assert.Equal(t, map[models.Source]string{
		models.SourceCRM:     "contacts",
		models.SourceEcom:    "customers",
		models.SourceMailing: "subscribers",
	}, cfg.Tables())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("CANDIDATE_CHUNK_SIZE", "50")
	t.Setenv("AUTO_APPLY_THRESHOLD", "0.95")
	t.Setenv("SOURCE_PRIORITY", "mailing_subscribers,crm_contacts")
	t.Setenv("SOURCE_TABLES", "crm_contacts:crm.people,ecom_customers:shop_customers")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LOCK_WAIT", "2s")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.CandidateChunkSize)
	assert.InDelta(t, 0.95, cfg.AutoApplyThreshold, 1e-9)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Second, cfg.LockWait)
	assert.Equal(t, []models.Source{models.SourceMailing, models.SourceCRM, models.SourceEcom}, cfg.Priority())
	assert.Equal(t, map[models.Source]string{
		models.SourceCRM:  "crm.people",
		models.SourceEcom: "shop_customers",
	}, cfg.Tables())
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("COMMON_NAME_THRESHOLD=7\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("COMMON_NAME_THRESHOLD") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.CommonNameThreshold)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "zero chunk size", key: "CANDIDATE_CHUNK_SIZE", val: "0"},
		{name: "threshold above one", key: "AUTO_APPLY_THRESHOLD", val: "1.5"},
		{name: "unknown priority source", key: "SOURCE_PRIORITY", val: "crm_contacts,erp_accounts"},
		{name: "unknown table source", key: "SOURCE_TABLES", val: "erp_accounts:accounts"},
		{name: "auth without issuer", key: "AUTH_ENABLED", val: "true"},
		{name: "zero handler attempts", key: "KAFKA_HANDLER_ATTEMPTS", val: "0"},
		{name: "bad protocol", key: "OTEL_EXPORTER_OTLP_PROTOCOL", val: "udp"},
		{name: "unparseable int", key: "PORT", val: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
