package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexaric/portal/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestInitTracer_disabled(t *testing.T) {
	shutdown, err := InitTracer(&core.Config{}, nopLogger{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestExporterOptions(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{raw: "", want: 3},
		{raw: "http://collector:4318/v1/traces", want: 3},
		{raw: "https://collector.example.com/otlp/traces", want: 2},
		{raw: "collector:4318", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Len(t, exporterOptions(tt.raw), tt.want)
		})
	}
}
