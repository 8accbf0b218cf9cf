package tools

import (
	"context"
	"fmt"
	"time"
)

// DateTimeToolName is the name the model uses to request the time.
const DateTimeToolName = "get_current_datetime"

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// SpanishDate formats t as a Spanish long-form date such as
// "18 de octubre de 2026".
func SpanishDate(t time.Time) string {
	return fmt.Sprintf("%02d de %s de %d", t.Day(), spanishMonths[t.Month()-1], t.Year())
}

// CurrentDateTime reports the time from clock in several pre-formatted
// representations. It never fails: if the clock panics or returns the
// zero time, the result carries an "error" field and N/A placeholders.
func CurrentDateTime(clock func() time.Time) (result map[string]string) {
	defer func() {
		if r := recover(); r != nil {
			result = dateTimeFailure(fmt.Sprint(r))
		}
	}()

	if clock == nil {
		clock = time.Now
	}
	now := clock()
	if now.IsZero() {
		return dateTimeFailure("clock returned no time")
	}

	zone, _ := now.Zone()
	return map[string]string{
		"current_date":     now.Format("2006-01-02"),
		"current_time":     now.Format("15:04:05"),
		"current_datetime": now.Format("2006-01-02 15:04:05"),
		"day_of_week":      now.Weekday().String(),
		"month":            now.Month().String(),
		"year":             fmt.Sprintf("%d", now.Year()),
		"formatted_date":   SpanishDate(now),
		"formatted_time":   now.Format("15:04"),
		"timezone_info":    fmt.Sprintf("%s (assuming the system time zone)", zone),
	}
}

func dateTimeFailure(reason string) map[string]string {
	return map[string]string{
		"error":        "could not read the current date/time: " + reason,
		"current_date": "N/A",
		"current_time": "N/A",
	}
}

// NewDateTimeTool builds the get_current_datetime tool. A nil clock
// means time.Now.
func NewDateTimeTool(clock func() time.Time) *Tool {
	return &Tool{
		Name: DateTimeToolName,
		Description: "Gets the current date and time in several formats. " +
			"Useful for seasonal animal behaviour, migration and breeding periods, and other time-sensitive questions.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(_ context.Context, _ map[string]any) (string, error) {
			return renderJSON(CurrentDateTime(clock))
		},
	}
}
