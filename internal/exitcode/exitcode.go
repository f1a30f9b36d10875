package exitcode

const (
	Success       = 0
	UsageError    = 1
	ConfigError   = 2
	DBConnError   = 3
	LoadError     = 4
	PipelineError = 5
	BillFailed    = 6
	ServerError   = 7
)
