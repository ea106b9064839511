package schedule

import (
	"fmt"
	"time"

	"github.com/aquarius1905/care-support/pkg/models"
)

type schedulePage struct {
	Results []scheduleRecord `json:"results"`
}

type scheduleRecord struct {
	ID       int64  `json:"id"`
	UserName string `json:"user_name"`
	Datetime string `json:"scheduled_transport_datetime"`
}

type patchBody struct {
	Time models.ClockTime `json:"time"`
}

// Layouts accepted for scheduled_transport_datetime, most specific first
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseScheduledTime extracts hour and minute from a backend timestamp as
// written. The backend sends local wall-clock time of the serving timezone,
// so no conversion is applied.
func ParseScheduledTime(s string) (models.ClockTime, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.ClockTimeOf(t), nil
		}
	}
	return models.ClockTime{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (r scheduleRecord) toEntry() (models.ScheduleEntry, error) {
	ct, err := ParseScheduledTime(r.Datetime)
	if err != nil {
		return models.ScheduleEntry{}, err
	}
	return models.ScheduleEntry{ID: r.ID, SubjectName: r.UserName, ScheduledTime: ct}, nil
}
