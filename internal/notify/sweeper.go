package notify

import (
	"fmt"
	"io"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Sweeper runs the retention sweep on a cron schedule. It is started by the
// serve command, not by request handling.
type Sweeper struct {
	cron *cron.Cron
}

// sweepParser accepts standard 5-field cron expressions
// (minute, hour, dom, month, dow), with an optional leading seconds field.
var sweepParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// StartSweeper schedules SweepExpired on the given cron expression and
// starts the scheduler.
func StartSweeper(gdb *gorm.DB, spec string, out io.Writer) (*Sweeper, error) {
	c := cron.New(cron.WithParser(sweepParser))
	_, err := c.AddFunc(spec, func() {
		removed, err := SweepExpired(gdb)
		if out == nil {
			return
		}
		if err != nil {
			fmt.Fprintf(out, "notify: sweep failed: %v\n", err)
			return
		}
		if removed > 0 {
			fmt.Fprintf(out, "notify: sweep removed %d expired notifications\n", removed)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("notify: schedule sweep %q: %w", spec, err)
	}
	c.Start()
	return &Sweeper{cron: c}, nil
}

// Stop halts the scheduler; a sweep already running finishes.
func (s *Sweeper) Stop() {
	if s != nil && s.cron != nil {
		s.cron.Stop()
	}
}
