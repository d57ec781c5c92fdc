package events

// ResultMessageKind tags analysis-result events on the export topic.
const (
	ResultMessageKind string = "attribution.events.result"
	defaultTopic      string = "attribution.events"
)

// ResultEvent is the exported record of one completed analysis.
type ResultEvent struct {
	LogPath     string   `json:"log_path"`
	User        string   `json:"user"`
	JobID       string   `json:"job_id,omitempty"`
	ResultID    string   `json:"result_id"`
	Module      string   `json:"module"`
	State       string   `json:"state"`
	Attribution []string `json:"result,omitempty"`
}
