package runner

// Timer buckets in seconds. Single statements range from milliseconds to the length of a large COPY,
// a whole run can take hours.
var customBuckets = map[string][]float64{
	"sf_migrate_query_duration": {
		0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900, 1800, 3600,
	},
	"sf_migrate_state_duration": {
		0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800, 3600, 7200,
	},
	"sf_migrate_run_duration": {
		60, 300, 900, 1800, 3600, 7200, 14400, 28800, 86400, // 1 minute to 1 day
	},
}
