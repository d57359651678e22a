package dispatch

// Summary aggregates one batch run. Counters belong exclusively to the run
// that produced them; they are never shared or persisted.
//
// Accounting is deliberately two-bucket: "no text to send", "recipient not
// registered" and "transport fault" all land in Failed. The distinction is
// visible in the logs but not in the counters.
type Summary struct {
	Total  int
	Sent   int
	Failed int
}
