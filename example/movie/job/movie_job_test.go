package job

import (
	"testing"

	"github.com/stretchr/testify/assert"

	config "moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/memory"
)

func TestMovieJob_ValidateParameters(t *testing.T) {
	flow := core.NewFlowDefinition("movieStep")
	assert.NoError(t, flow.AddElement("movieStep", core.NewConditionalDecision("movieStep")))

	tests := []struct {
		name     string
		endpoint string
		output   string
		wantErr  bool
	}{
		{"valid", "https://example.com/movies.json", "out/movies.csv", false},
		{"http is allowed", "http://localhost:8080/movies.json", "out/movies.csv", false},
		{"empty endpoint", "", "out/movies.csv", true},
		{"non http scheme", "file:///tmp/movies.json", "out/movies.csv", true},
		{"missing host", "https://", "out/movies.csv", true},
		{"empty output", "https://example.com/movies.json", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.Batch.APIEndpoint = tt.endpoint
			cfg.Batch.OutputPath = tt.output
			j := NewMovieJob(memory.NewInMemoryJobRepository(), cfg, nil, flow)
			err := j.ValidateParameters(core.NewJobParameters())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, JobName, j.JobName())
		})
	}
}

func TestMovieJob_ValidateParameters_BrokenFlow(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Batch.APIEndpoint = "https://example.com/movies.json"
	j := NewMovieJob(memory.NewInMemoryJobRepository(), cfg, nil, core.NewFlowDefinition("missing"))
	assert.Error(t, j.ValidateParameters(core.NewJobParameters()))
}
