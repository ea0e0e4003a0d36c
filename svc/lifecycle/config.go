package lifecycle

import "time"

// Config controls the tick interval and the reminder windows.
type Config struct {
	Interval                 time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1h"`
	RenewalReminderLookahead time.Duration `env:"RENEWAL_REMINDER_LOOKAHEAD" envDefault:"168h"`
	MoveInReminderLookahead  time.Duration `env:"MOVE_IN_REMINDER_LOOKAHEAD" envDefault:"72h"`
	LockTTL                  time.Duration `env:"SCHEDULER_LOCK_TTL" envDefault:"30s"`
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.RenewalReminderLookahead <= 0 {
		c.RenewalReminderLookahead = 7 * 24 * time.Hour
	}
	if c.MoveInReminderLookahead <= 0 {
		c.MoveInReminderLookahead = 3 * 24 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	return c
}
