package models

import (
	"fmt"
	"sort"
)

// Outcome is the final state of one work item.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// FetchResult is produced by exactly one worker for exactly one work item.
type FetchResult struct {
	RemotePath   string  `json:"remote_path"`
	RemoteURL    string  `json:"remote_url"`
	Outcome      Outcome `json:"outcome"`
	BytesWritten int64   `json:"bytes_written,omitempty"`
	Attempts     int     `json:"attempts"`
	Reason       string  `json:"reason,omitempty"`
}

type FailedItem struct {
	RemotePath string `json:"remote_path"`
	Reason     string `json:"reason"`
}

// RunSummary aggregates every FetchResult of one run, sorted by path.
type RunSummary struct {
	Attempted      int           `json:"attempted"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	Cancelled      int           `json:"cancelled"`
	AlreadyPresent int           `json:"already_present"`
	TotalAttempts  int           `json:"total_attempts"`
	TotalBytes     int64         `json:"total_bytes"`
	TotalSizeHuman string        `json:"total_size_human,omitempty"`
	Failures       []FailedItem  `json:"failures,omitempty"`
	Results        []FetchResult `json:"-"`
	OperationTime  string        `json:"operation_time,omitempty"`
	Duration       string        `json:"duration,omitempty"`
}

// Summarize folds per-item results into a RunSummary. It is called once, by the
// coordinator, after every worker has returned.
func Summarize(results []FetchResult) RunSummary {
	sorted := make([]FetchResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RemotePath < sorted[j].RemotePath })

	s := RunSummary{Results: sorted}
	for _, r := range sorted {
		s.TotalAttempts += r.Attempts
		switch r.Outcome {
		case OutcomeSucceeded:
			s.Attempted++
			s.Succeeded++
			s.TotalBytes += r.BytesWritten
		case OutcomeFailed:
			s.Attempted++
			s.Failed++
			s.Failures = append(s.Failures, FailedItem{RemotePath: r.RemotePath, Reason: r.Reason})
		case OutcomeCancelled:
			s.Cancelled++
		}
	}
	return s
}

// OK reports whether every planned item was written.
func (s RunSummary) OK() bool {
	return s.Failed == 0 && s.Cancelled == 0
}

func (s RunSummary) String() string {
	line := fmt.Sprintf("%d succeeded, %d failed", s.Succeeded, s.Failed)
	if s.AlreadyPresent > 0 {
		line += fmt.Sprintf(", %d already present", s.AlreadyPresent)
	}
	if s.Cancelled > 0 {
		line += fmt.Sprintf(", %d cancelled", s.Cancelled)
	}
	return line
}

type PublishResult struct {
	BucketName     string       `json:"bucket_name"`
	Prefix         string       `json:"prefix"`
	Source         string       `json:"source"`
	LocalFiles     int          `json:"local_files"`
	RemoteObjects  int          `json:"remote_objects"`
	Pending        int          `json:"pending"`
	Uploaded       int          `json:"uploaded"`
	Failed         int          `json:"failed"`
	Failures       []FailedItem `json:"failures,omitempty"`
	TotalSizeBytes int64        `json:"total_size_bytes"`
	TotalSizeHuman string       `json:"total_size_human"`
	OperationTime  string       `json:"operation_time"`
	UploadDuration string       `json:"upload_duration"`
}
