//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// LoggerErrorField flags stringified errors passed as log fields.
func LoggerErrorField(m dsl.Matcher) {
	m.Import("github.com/yardwatch/yardwatch/internal/logger")

	m.Match(`logger.String("error", $err.Error())`).
		Report("use logger.Error($err)").
		Suggest("logger.Error($err)")
}

// NoPrintInInternal keeps fmt printing out of library packages; they log
// through the injected logger.
func NoPrintInInternal(m dsl.Matcher) {
	m.Match(`fmt.Println($*_)`, `fmt.Printf($*_)`, `fmt.Print($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("internal packages log through logger.Logger, not fmt")
}

// NoSleepInRunner keeps the detection loop interruptible; it waits through
// its injected Sleeper.
func NoSleepInRunner(m dsl.Matcher) {
	m.Match(`time.Sleep($_)`).
		Where(m.File().PkgPath.Matches(`/internal/runner$`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("runner waits must honour cancellation; use the Sleeper")
}

// StdErrorsInInternal flags the standard errors package in internal code,
// which uses internal/errors for categories and telemetry.
func StdErrorsInInternal(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m.File().PkgPath.Matches(`/internal/`) &&
			!m.File().PkgPath.Matches(`/internal/errors$`) &&
			m.File().Imports("errors")).
		Report("use the internal errors package: errors.NewStd($msg) or the errors.New(err) builder")
}

// IncidentTimestampUTC flags persisted timestamps taken without UTC.
func IncidentTimestampUTC(m dsl.Matcher) {
	m.Match(`Timestamp: time.Now()`).
		Report("incident timestamps are stored in UTC; use time.Now().UTC()").
		Suggest("Timestamp: time.Now().UTC()")
}
