// Package reminder predicts refill due dates from order history and
// dispatches reminder messages on a schedule.
package reminder

import (
	"regexp"
	"strconv"
	"strings"
)

// ScheduleType classifies a dosage instruction.
type ScheduleType string

const (
	ScheduleRegular  ScheduleType = "regular"
	ScheduleAsNeeded ScheduleType = "as_needed"
)

// DailyDose is the normalized form of a free-text dosage instruction.
// As-needed schedules have a zero dose and produce no refill prediction.
type DailyDose struct {
	UnitsPerDay float64
	Schedule    ScheduleType
}

var asNeededRes = []*regexp.Regexp{
	regexp.MustCompile(`\bas needed\b`),
	regexp.MustCompile(`\bif needed\b`),
	regexp.MustCompile(`\bwhen needed\b`),
	regexp.MustCompile(`\bprn\b`),
	regexp.MustCompile(`\bsos\b`),
}

var unitsRe = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:tab(?:let)?s?|cap(?:sule)?s?|pill(?:s)?|ml|drop(?:s)?)\b`)

var frequencyPatterns = []struct {
	re     *regexp.Regexp
	perDay float64
}{
	{regexp.MustCompile(`\b(twice daily|2x daily|bid|bd)\b`), 2},
	{regexp.MustCompile(`\b(thrice daily|three times daily|3x daily|tid|tds)\b`), 3},
	{regexp.MustCompile(`\b(four times daily|4x daily|qid)\b`), 4},
	{regexp.MustCompile(`\bevery\s*12\s*hours?\b`), 2},
	{regexp.MustCompile(`\bevery\s*8\s*hours?\b`), 3},
	{regexp.MustCompile(`\bevery\s*6\s*hours?\b`), 4},
	{regexp.MustCompile(`\b(once daily|od)\b`), 1},
	{regexp.MustCompile(`\bdaily\b`), 1},
}

// NormalizeDosage converts a dosage string like "1 tablet twice daily" into a
// daily dose. Unrecognized text defaults to one unit once daily, which keeps
// refill prediction conservative rather than silent.
func NormalizeDosage(text string) DailyDose {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, re := range asNeededRes {
		if re.MatchString(t) {
			return DailyDose{UnitsPerDay: 0, Schedule: ScheduleAsNeeded}
		}
	}

	unitsPerAdministration := 1.0
	if m := unitsRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			unitsPerAdministration = v
		}
	}

	frequencyPerDay := 1.0
	for _, fp := range frequencyPatterns {
		if fp.re.MatchString(t) {
			frequencyPerDay = fp.perDay
			break
		}
	}

	return DailyDose{
		UnitsPerDay: unitsPerAdministration * frequencyPerDay,
		Schedule:    ScheduleRegular,
	}
}
