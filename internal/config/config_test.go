package config

import (
	"testing"
	"time"

	"github.com/reelworks/reelpress/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/reelpress")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoad_Defaults(t *testing.T) {
	baseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendLocal, cfg.StorageBackend)
	assert.Equal(t, "videos:process", cfg.QueueStream)
	assert.Equal(t, 60*time.Second, cfg.LeaseTimeout)
	assert.Equal(t, 20*time.Second, cfg.PollWait)
	assert.Equal(t, float64(30), cfg.MaxClipSeconds)
	assert.Equal(t, 2.5, cfg.IntroSeconds)
	assert.Equal(t, 2.5, cfg.OutroSeconds)
	assert.Equal(t, 720, cfg.TargetHeight)
	assert.Equal(t, int64(1000), cfg.MinOutputBytes)
	assert.Equal(t, "resources/logo720.png", cfg.BrandingKey)
	assert.True(t, cfg.BrandingRequired)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConfig))
}

func TestLoad_MinIORequiresBucketAndCredentials(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing endpoint",
			env:     map[string]string{},
			wantErr: "MINIO_ENDPOINT",
		},
		{
			name: "missing credentials",
			env: map[string]string{
				"MINIO_ENDPOINT": "localhost:9000",
			},
			wantErr: "MINIO_ACCESS_KEY",
		},
		{
			name: "missing bucket",
			env: map[string]string{
				"MINIO_ENDPOINT":   "localhost:9000",
				"MINIO_ACCESS_KEY": "minio",
				"MINIO_SECRET_KEY": "minio123",
				"MINIO_BUCKET":     "",
			},
			wantErr: "MINIO_BUCKET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseEnv(t)
			t.Setenv("STORAGE_BACKEND", "minio")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.KindConfig))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	baseEnv(t)
	t.Setenv("STORAGE_BACKEND", "s4")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConfig))
}

func TestValidate_TargetHeightMustBeEven(t *testing.T) {
	baseEnv(t)
	t.Setenv("TARGET_HEIGHT", "721")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target height")
}
