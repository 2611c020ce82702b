package jsl_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "moviebatch/pkg/batch/config"
	component "moviebatch/pkg/batch/job/component"
	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/job/jsl"
	"moviebatch/pkg/batch/repository/job"
	"moviebatch/pkg/batch/repository/memory"
)

type emptyReader struct{}

func (emptyReader) Open(ctx context.Context, ec core.ExecutionContext) error { return nil }
func (emptyReader) Read(ctx context.Context) (any, error)                    { return nil, io.EOF }
func (emptyReader) Close(ctx context.Context) error                          { return nil }
func (emptyReader) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return core.NewExecutionContext(), nil
}

type discardWriter struct{}

func (discardWriter) Open(ctx context.Context, ec core.ExecutionContext) error { return nil }
func (discardWriter) Write(ctx context.Context, items []any) error             { return nil }
func (discardWriter) Close(ctx context.Context) error                          { return nil }
func (discardWriter) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return core.NewExecutionContext(), nil
}

type noopTasklet struct{}

func (noopTasklet) Execute(ctx context.Context, se *core.StepExecution) (core.ExitStatus, error) {
	return core.ExitStatusCompleted, nil
}
func (noopTasklet) Close(ctx context.Context) error { return nil }

func newRegistry() *component.Registry {
	r := component.NewRegistry()
	r.RegisterComponentBuilder("reader", func(cfg *config.Config, repo job.JobRepository, p map[string]string) (any, error) {
		return emptyReader{}, nil
	})
	r.RegisterComponentBuilder("writer", func(cfg *config.Config, repo job.JobRepository, p map[string]string) (any, error) {
		return discardWriter{}, nil
	})
	r.RegisterComponentBuilder("tasklet", func(cfg *config.Config, repo job.JobRepository, p map[string]string) (any, error) {
		return noopTasklet{}, nil
	})
	return r
}

func convert(t *testing.T, yamlDef string) (*core.FlowDefinition, error) {
	t.Helper()
	def, err := jsl.ParseJobDefinition([]byte(yamlDef))
	require.NoError(t, err)
	return jsl.ConvertJSLToCoreFlow(def.Flow, newRegistry(), memory.NewInMemoryJobRepository(), config.NewConfig())
}

func TestParseJobDefinition_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"invalid yaml", "id: [unclosed"},
		{"missing id", "flow:\n  start-element: a\n  elements:\n    a:\n      tasklet: {ref: tasklet}\n"},
		{"missing start element", "id: j\nflow:\n  elements:\n    a:\n      tasklet: {ref: tasklet}\n"},
		{"no elements", "id: j\nflow:\n  start-element: a\n"},
		{"unknown start element", "id: j\nflow:\n  start-element: b\n  elements:\n    a:\n      tasklet: {ref: tasklet}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jsl.ParseJobDefinition([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseJobDefinition_NameDefaultsToID(t *testing.T) {
	def, err := jsl.ParseJobDefinition([]byte("id: movieJob\nflow:\n  start-element: a\n  elements:\n    a:\n      tasklet: {ref: tasklet}\n"))
	require.NoError(t, err)
	assert.Equal(t, "movieJob", def.Name)
}

func TestDefinitions_DuplicateID(t *testing.T) {
	data := []byte("id: movieJob\nflow:\n  start-element: a\n  elements:\n    a:\n      tasklet: {ref: tasklet}\n")
	defs := make(jsl.Definitions)
	require.NoError(t, defs.LoadFromBytes(data))
	assert.Error(t, defs.LoadFromBytes(data))
	_, ok := defs.Get("movieJob")
	assert.True(t, ok)
}

func TestConvertJSLToCoreFlow(t *testing.T) {
	flow, err := convert(t, `
id: movieJob
flow:
  start-element: movieStep
  elements:
    movieStep:
      reader: {ref: reader}
      writer: {ref: writer}
      chunk: {item-count: 10}
      transitions:
        - {on: COMPLETED, to: check}
        - {on: "*", fail: true}
    check:
      type: decision
      properties: {conditionKey: ready, expectedValue: "true"}
      transitions:
        - {on: COMPLETED, to: parallel}
        - {on: FAILED, end: true}
    parallel:
      steps:
        - {id: a, tasklet: {ref: tasklet}}
        - {id: b, tasklet: {ref: tasklet}}
      transitions:
        - {on: COMPLETED, to: listStep}
    listStep:
      tasklet: {ref: tasklet}
      transitions:
        - {on: COMPLETED, end: true}
`)
	require.NoError(t, err)
	assert.Equal(t, "movieStep", flow.StartElement)

	e, ok := flow.GetElement("movieStep")
	require.True(t, ok)
	assert.Implements(t, (*core.Step)(nil), e)

	e, _ = flow.GetElement("check")
	assert.Implements(t, (*core.Decision)(nil), e)

	e, _ = flow.GetElement("parallel")
	split, ok := e.(core.Split)
	require.True(t, ok)
	assert.Len(t, split.Steps(), 2)

	tr, ok := flow.FindTransition("movieStep", core.ExitStatusCompleted, false)
	require.True(t, ok)
	assert.Equal(t, "check", tr.To)
	assert.Len(t, flow.TransitionRules, 6)
}

func TestConvertJSLToCoreFlow_ChunkSizeFallsBackToConfig(t *testing.T) {
	_, err := convert(t, "id: j\nflow:\n  start-element: s\n  elements:\n    s:\n      reader: {ref: reader}\n      writer: {ref: writer}\n")
	assert.NoError(t, err)

	def, err := jsl.ParseJobDefinition([]byte("id: j\nflow:\n  start-element: s\n  elements:\n    s:\n      reader: {ref: reader}\n      writer: {ref: writer}\n"))
	require.NoError(t, err)
	cfg := config.NewConfig()
	cfg.Batch.ChunkSize = 0
	_, err = jsl.ConvertJSLToCoreFlow(def.Flow, newRegistry(), memory.NewInMemoryJobRepository(), cfg)
	assert.Error(t, err)
}

func TestConvertJSLToCoreFlow_Errors(t *testing.T) {
	tests := []struct {
		name     string
		elements string
	}{
		{"unknown component", "    s:\n      tasklet: {ref: missing}\n"},
		{"chunk and tasklet", "    s:\n      reader: {ref: reader}\n      writer: {ref: writer}\n      tasklet: {ref: tasklet}\n"},
		{"missing writer", "    s:\n      reader: {ref: reader}\n"},
		{"wrong component type", "    s:\n      reader: {ref: tasklet}\n      writer: {ref: writer}\n"},
		{"unknown listener", "    s:\n      tasklet: {ref: tasklet}\n      listeners: [{ref: missing}]\n"},
		{"transition without on", "    s:\n      tasklet: {ref: tasklet}\n      transitions: [{end: true}]\n"},
		{"transition without target", "    s:\n      tasklet: {ref: tasklet}\n      transitions: [{on: COMPLETED}]\n"},
		{"transition with two targets", "    s:\n      tasklet: {ref: tasklet}\n      transitions: [{on: COMPLETED, end: true, fail: true}]\n"},
		{"unknown transition target", "    s:\n      tasklet: {ref: tasklet}\n      transitions: [{on: COMPLETED, to: nowhere}]\n"},
		{"decision without transitions", "    s:\n      type: decision\n"},
		{"unknown element type", "    s:\n      type: loop\n"},
		{"duplicate split step", "    s:\n      steps:\n        - {id: a, tasklet: {ref: tasklet}}\n        - {id: a, tasklet: {ref: tasklet}}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := convert(t, "id: j\nflow:\n  start-element: s\n  elements:\n"+tt.elements)
			assert.Error(t, err)
		})
	}
}
