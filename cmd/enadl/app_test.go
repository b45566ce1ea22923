package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/enadl/internal/config"
	"github.com/italolelis/enadl/internal/downloader/progress"
	"github.com/italolelis/enadl/internal/logctx"
	"github.com/italolelis/enadl/internal/storage"
	"github.com/italolelis/enadl/internal/transfer"
)

func TestProgressSink(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		noBar   bool
		wantBar bool
	}{
		{name: "disabled by config", enabled: false},
		{name: "disabled by flag", enabled: true, noBar: true},
		{name: "enabled", enabled: true, wantBar: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer

			a := &app{cfg: &config.Config{ProgressEnabled: tt.enabled}, stderr: &stderr, noBar: tt.noBar}

			sink, bar := a.progressSink(context.Background(), 2)

			if !tt.wantBar {
				assert.Nil(t, bar)
				assert.Equal(t, progress.Nop{}, sink)

				return
			}

			require.NotNil(t, bar)
			assert.IsType(t, progress.Multi{}, sink)
			bar.Finish()
		})
	}
}

func TestOnRunComplete_LogsEachRun(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := logctx.WithLogger(context.Background(), logger)

	onRun := onRunComplete(ctx, nil)
	onRun("SRR7", []storage.Row{
		{LocalPath: "a", Status: transfer.StatusOK},
		{LocalPath: "b", Status: transfer.StatusError},
	})

	assert.Contains(t, buf.String(), `msg="run finished" run_id=SRR7 files=2 failed=1`)
}
