package initializer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	logger "moviebatch/pkg/batch/util/logger"
)

const testJSL = `
id: noopJob
flow:
  start-element: noop
  elements:
    noop:
      tasklet:
        ref: noopTasklet
`

func TestInitialize_Memory(t *testing.T) {
	t.Cleanup(func() { logger.SetLogLevel("INFO") })

	bi := NewBatchInitializer(&config.Config{EmbeddedConfig: []byte("database:\n  type: memory\nsystem:\n  logging:\n    level: WARN\n")}, []byte(testJSL))
	bi.LogLevel = "ERROR"

	op, jf, err := bi.Initialize(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, bi.Close()) })

	assert.NotNil(t, op)
	assert.Same(t, jf, bi.JobFactory)
	assert.Equal(t, []string{"noopJob"}, jf.JobNames())
	assert.Equal(t, logger.LevelError, logger.GetLogLevel())
	assert.Equal(t, "ERROR", bi.Config.System.Logging.Level)

	names, err := op.GetJobNames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestInitialize_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.db")
	yaml := "database:\n  type: sqlite\n  path: " + path + "\n"

	bi := NewBatchInitializer(&config.Config{EmbeddedConfig: []byte(yaml)}, []byte(testJSL))
	_, _, err := bi.Initialize(context.Background())
	require.NoError(t, err)
	defer bi.Close()

	ji, err := core.NewJobInstance("noopJob", core.NewJobParameters())
	require.NoError(t, err)
	require.NoError(t, bi.JobRepository.SaveJobInstance(context.Background(), ji))
	found, err := bi.JobRepository.FindJobInstanceByID(context.Background(), ji.ID)
	require.NoError(t, err)
	assert.Equal(t, "noopJob", found.JobName)
}

func TestInitialize_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  string
		jsl  string
	}{
		{"invalid config", "database: [", testJSL},
		{"unsupported database", "database:\n  type: oracle\n", testJSL},
		{"invalid jsl", "database:\n  type: memory\n", "id: broken\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bi := NewBatchInitializer(&config.Config{EmbeddedConfig: []byte(tt.cfg)}, []byte(tt.jsl))
			_, _, err := bi.Initialize(context.Background())
			assert.Error(t, err)
			assert.NoError(t, bi.Close())
		})
	}
}
