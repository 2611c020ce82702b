package component

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"
)

func TestRegistry_ComponentBuilder(t *testing.T) {
	r := NewRegistry()
	_, ok := r.ComponentBuilder("movieJsonItemReader")
	assert.False(t, ok)

	r.RegisterComponentBuilder("movieJsonItemReader", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return properties["apiEndpoint"], nil
	})
	b, ok := r.ComponentBuilder("movieJsonItemReader")
	require.True(t, ok)
	got, err := b(nil, nil, map[string]string{"apiEndpoint": "http://example.invalid"})
	require.NoError(t, err)
	assert.Equal(t, "http://example.invalid", got)
}

func TestRegistry_KindsAreSeparate(t *testing.T) {
	r := NewRegistry()
	r.RegisterStepExecutionListenerBuilder("logging", func(cfg *config.Config) (core.StepExecutionListener, error) {
		return core.StepExecutionListenerFuncs{}, nil
	})

	_, ok := r.StepExecutionListenerBuilder("logging")
	assert.True(t, ok)
	_, ok = r.ChunkListenerBuilder("logging")
	assert.False(t, ok)
	_, ok = r.JobListenerBuilder("logging")
	assert.False(t, ok)
	_, ok = r.ComponentBuilder("logging")
	assert.False(t, ok)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.RegisterJobParametersIncrementerBuilder("runIdIncrementer", func(cfg *config.Config, properties map[string]string) (core.JobParametersIncrementer, error) {
				return nil, nil
			})
		}()
		go func() {
			defer wg.Done()
			r.JobParametersIncrementerBuilder("runIdIncrementer")
		}()
	}
	wg.Wait()
	_, ok := r.JobParametersIncrementerBuilder("runIdIncrementer")
	assert.True(t, ok)
}
