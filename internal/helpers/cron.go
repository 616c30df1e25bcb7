package helpers

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// CronParser accepts standard five-field expressions and descriptors like @daily
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func ValidateCron(c string) error {
	if _, err := CronParser.Parse(c); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", c, err)
	}
	return nil
}
