package scheduler

import (
	"fmt"
	"strings"
	"time"

	cron "github.com/netresearch/go-cron"
)

// cronParser accepts five-field expressions, descriptors like @daily and an
// optional CRON_TZ=Area/City prefix.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronExpr is a parsed schedule entry expression.
type CronExpr struct {
	raw      string
	schedule cron.Schedule
}

// ParseCron parses expr. "@every" is rejected: fixed periods use the
// interval trigger instead.
func ParseCron(expr string) (*CronExpr, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "@every") {
		return nil, fmt.Errorf("parse cron %q: use interval for fixed periods", expr)
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return &CronExpr{raw: expr, schedule: schedule}, nil
}

// Next returns the first activation after t.
func (c *CronExpr) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

// Matches reports whether an activation falls in the minute containing t.
// The scheduler ticks once a minute, so this is the firing test.
func (c *CronExpr) Matches(t time.Time) bool {
	minute := t.Truncate(time.Minute)
	return c.schedule.Next(minute.Add(-time.Second)).Equal(minute)
}

func (c *CronExpr) String() string {
	return c.raw
}
