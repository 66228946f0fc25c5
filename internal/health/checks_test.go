package health_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/hush/internal/health"
	"github.com/MrWong99/hush/pkg/denoise"
	"github.com/MrWong99/hush/pkg/provider/ns/mock"
)

func TestPipelineCheck_Healthy(t *testing.T) {
	eng := &mock.Engine{Score: 0.2}
	c := health.PipelineCheck(func() (*denoise.Denoiser, error) {
		return denoise.New(denoise.Config{Channels: 2}, denoise.WithEngine(eng))
	})
	if c.Name != "pipeline" {
		t.Errorf("Name = %q, want pipeline", c.Name)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	sessions := eng.SessionList()
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	for i, s := range sessions {
		if s.FrameCount() != 1 {
			t.Errorf("session %d processed %d frames, want 1", i, s.FrameCount())
		}
		if !s.Closed() {
			t.Errorf("session %d not closed after check", i)
		}
	}
}

func TestPipelineCheck_OpenFails(t *testing.T) {
	eng := &mock.Engine{LoadModelErr: errors.New("corrupt weights")}
	c := health.PipelineCheck(func() (*denoise.Denoiser, error) {
		return denoise.New(denoise.Config{Channels: 1}, denoise.WithEngine(eng))
	})
	err := c.Check(context.Background())
	if !errors.Is(err, denoise.ErrModel) {
		t.Errorf("Check error = %v, want ErrModel", err)
	}
}

func TestPipelineCheck_FrameFails(t *testing.T) {
	eng := &mock.Engine{ScoreFunc: func(int, []float32) float32 { return 2 }}
	c := health.PipelineCheck(func() (*denoise.Denoiser, error) {
		return denoise.New(denoise.Config{Channels: 1}, denoise.WithEngine(eng))
	})
	if err := c.Check(context.Background()); !errors.Is(err, denoise.ErrExternalEngine) {
		t.Errorf("Check error = %v, want ErrExternalEngine", err)
	}
}

func TestCapacityCheck(t *testing.T) {
	tests := []struct {
		name    string
		inUse   int
		limit   int
		wantErr bool
	}{
		{"idle", 0, 4, false},
		{"below limit", 3, 4, false},
		{"at limit", 4, 4, true},
		{"unlimited", 100, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := health.CapacityCheck(func() int { return tt.inUse }, tt.limit)
			err := c.Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "sessions in use") {
				t.Errorf("error = %q, want mention of sessions in use", err)
			}
		})
	}
}
