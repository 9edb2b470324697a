package internal

import "expvar"

var (
	requestsTotal = expvar.NewMap("deployhook_requests_total")
	parseErrors   = expvar.NewMap("deployhook_parse_errors_total")
	publishErrors = expvar.NewMap("deployhook_publish_errors_total")
	syncOutcomes  = expvar.NewMap("deployhook_sync_total")
)

func IncRequest(provider string) {
	requestsTotal.Add(provider, 1)
}

func IncParseError(provider string) {
	parseErrors.Add(provider, 1)
}

func IncPublishError(driver string) {
	publishErrors.Add(driver, 1)
}

func IncSyncOutcome(outcome string) {
	syncOutcomes.Add(outcome, 1)
}
