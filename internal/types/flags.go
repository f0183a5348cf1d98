package types

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// GlobalFlags holds the flags shared by every command.
type GlobalFlags struct {
	Profile      string
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	Config       string
	LogFile      string
	DryRun       bool
	JSON         bool
}

// RequestType categorizes an API operation for logging.
type RequestType string

const (
	RequestTypeListOrSearch RequestType = "listOrSearch"
	RequestTypeContent      RequestType = "content"
	RequestTypeMetadata     RequestType = "metadata"
)

// RequestContext carries per-request trace information through the API layer.
type RequestContext struct {
	Profile         string      `json:"profile"`
	InvolvedItemIDs []string    `json:"involvedItemIds"`
	RequestType     RequestType `json:"requestType"`
	TraceID         string      `json:"traceId"`
}
