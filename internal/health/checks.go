package health

import (
	"context"
	"fmt"

	"github.com/MrWong99/hush/pkg/denoise"
)

// PipelineCheck returns a [Checker] named "pipeline" that builds a denoiser
// with open, pushes one frame of silence through it and closes it again. It
// fails when the engine, model or rate bridge of the current pipeline cannot
// be brought up.
func PipelineCheck(open func() (*denoise.Denoiser, error)) Checker {
	return Checker{
		Name: "pipeline",
		Check: func(ctx context.Context) error {
			d, err := open()
			if err != nil {
				return err
			}
			defer d.Close()

			in := make([]int16, d.FrameLen())
			out := make([]int16, d.FrameLen())
			if _, err := d.Process(in, out); err != nil {
				return err
			}
			return ctx.Err()
		},
	}
}

// CapacityCheck returns a [Checker] named "capacity" that fails once inUse
// reports limit or more open sessions. A limit of zero or less never fails.
func CapacityCheck(inUse func() int, limit int) Checker {
	return Checker{
		Name: "capacity",
		Check: func(context.Context) error {
			if limit <= 0 {
				return nil
			}
			if n := inUse(); n >= limit {
				return fmt.Errorf("%d of %d sessions in use", n, limit)
			}
			return nil
		},
	}
}
