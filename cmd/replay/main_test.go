package main

import (
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-intent/pkg/alert"
	"github.com/teslashibe/go-intent/pkg/perimeter"
	"github.com/teslashibe/go-intent/pkg/pipeline"
	"github.com/teslashibe/go-intent/pkg/risk"
)

func TestDescribe(t *testing.T) {
	at := time.Date(2026, 3, 1, 22, 0, 5, 0, time.UTC)

	tests := []struct {
		name string
		r    pipeline.Result
		want []string
	}{
		{
			"status",
			pipeline.Result{Timestamp: at, Risk: 42, Level: risk.Medium, Zone: perimeter.Warning},
			[]string{"22:00:05.000", "risk= 42", "MEDIUM", "zone=WARNING"},
		},
		{
			"entered",
			pipeline.Result{Timestamp: at, Zone: perimeter.Danger, Event: &alert.Event{Kind: alert.Entered, Count: 2, Risk: 81, ID: "abc"}},
			[]string{"ALERT #2", "risk=81", "id=abc"},
		},
		{
			"exited",
			pipeline.Result{Timestamp: at, Event: &alert.Event{Kind: alert.Exited, Risk: 55, PeakRisk: 93, Duration: 4 * time.Second}},
			[]string{"CLEAR", "peak=93", "after 4s"},
		},
	}

	for _, tt := range tests {
		got := describe(tt.r)
		for _, w := range tt.want {
			if !strings.Contains(got, w) {
				t.Errorf("%s: %q missing %q", tt.name, got, w)
			}
		}
	}
}
