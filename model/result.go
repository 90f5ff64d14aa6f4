/*
Copyright 2025 Zipsea Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import "time"

// OutcomeKind classifies one cruise's download attempt.
type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeCorrupted         OutcomeKind = "corrupted"
	OutcomeNotFound          OutcomeKind = "file_not_found"
	OutcomeConnectionFailure OutcomeKind = "connection_failure"
)

// DownloadOutcome is the tagged per-cruise result. Payload is set only for
// OutcomeSuccess.
type DownloadOutcome struct {
	CruiseID int              `json:"cruise_id"`
	Kind     OutcomeKind      `json:"kind"`
	Reason   string           `json:"reason,omitempty"`
	Path     string           `json:"path,omitempty"`
	Payload  *PricingDocument `json:"-"`
}

// CruiseError is one bounded per-cruise error summary carried in reports.
type CruiseError struct {
	CruiseID int    `json:"cruiseId"`
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
}

// BulkDownloadResult aggregates one downloader invocation. Every cruise in
// the input appears in exactly one outcome bucket:
// Successful + Corrupted + NotFound + ConnectionFailures == TotalAttempted,
// and len(DownloadedData) == Successful.
type BulkDownloadResult struct {
	LineID             int                      `json:"line_id"`
	TotalAttempted     int                      `json:"total_attempted"`
	Successful         int                      `json:"successful"`
	Corrupted          int                      `json:"corrupted"`
	NotFound           int                      `json:"not_found"`
	ConnectionFailures int                      `json:"connection_failures"`
	Duration           time.Duration            `json:"duration"`
	Outcomes           map[int]DownloadOutcome  `json:"outcomes"`
	DownloadedData     map[int]*PricingDocument `json:"-"`
	Errors             []CruiseError            `json:"errors,omitempty"`
}

// IngestionResult counts one processor invocation. ActuallyUpdated counts
// updates whose price materially changed; Updated includes no-op refreshes.
type IngestionResult struct {
	Created              int           `json:"created"`
	Updated              int           `json:"updated"`
	ActuallyUpdated      int           `json:"actually_updated"`
	Failed               int           `json:"failed"`
	ConstraintViolations int           `json:"constraint_violations"`
	PricingRowsInserted  int           `json:"pricing_rows_inserted"`
	Errors               []CruiseError `json:"errors,omitempty"`
}

// Merge folds another batch's counts into this result.
func (r *IngestionResult) Merge(other IngestionResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.ActuallyUpdated += other.ActuallyUpdated
	r.Failed += other.Failed
	r.ConstraintViolations += other.ConstraintViolations
	r.PricingRowsInserted += other.PricingRowsInserted
	r.Errors = append(r.Errors, other.Errors...)
}

// Report status values, in state-machine order.
const (
	ReportStatusDuplicate = "duplicate"
	ReportStatusNoCruises = "no_cruises"
	ReportStatusCompleted = "completed"
	ReportStatusFailed    = "failed"
)

// Qualitative run outcomes, derived from actually-updated versus
// connection-failure counts.
const (
	QualityAllSucceeded = "all_succeeded"
	QualityPartial      = "partial"
	QualityMostlyFailed = "mostly_failed"
)

// OrchestrationReport is the single structured outcome of one webhook run.
// It is the report payload, never persisted as an entity.
type OrchestrationReport struct {
	RunID              string         `json:"run_id"`
	ExternalLineID     int            `json:"external_line_id"`
	LineID             int            `json:"line_id"`
	Status             string         `json:"status"`
	Quality            string         `json:"quality,omitempty"`
	TotalCruises       int            `json:"totalCruises"`
	Batches            int            `json:"batches"`
	Successful         int            `json:"successful"`
	Failed             int            `json:"failed"`
	Created            int            `json:"created"`
	Updated            int            `json:"updated"`
	ActuallyUpdated    int            `json:"actuallyUpdated"`
	NotFound           int            `json:"not_found"`
	Corrupted          int            `json:"corrupted"`
	ConnectionFailures int            `json:"connection_failures"`
	ErrorBreakdown     map[string]int `json:"error_breakdown,omitempty"`
	Errors             []CruiseError  `json:"errors,omitempty"`
	StartedAt          time.Time      `json:"started_at"`
	Elapsed            time.Duration  `json:"elapsed"`
	Message            string         `json:"message,omitempty"`
}

// WebhookEvent is the inbound line-level "pricing changed" notification.
// Only LineID and Event matter to the pipeline; everything else is opaque
// context owned by the notification layer.
type WebhookEvent struct {
	Event      string                 `json:"event"`
	LineID     int                    `json:"lineid"`
	Timestamp  string                 `json:"timestamp,omitempty"`
	Extra      map[string]interface{} `json:"-"`
	ReceivedAt time.Time              `json:"-"`
}
