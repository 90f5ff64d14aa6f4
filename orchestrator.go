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

package zipsea

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heyitswin/zipsea-sub001/config"
	"github.com/heyitswin/zipsea-sub001/database"
	"github.com/heyitswin/zipsea-sub001/internal/notification"
	"github.com/heyitswin/zipsea-sub001/model"
	"github.com/sirupsen/logrus"
)

// externalLineMapping translates the supplier's webhook line ids to ours
// where they diverge. Lines absent from the map use the id as-is.
var externalLineMapping = map[int]int{
	5:   3,
	46:  643,
	123: 643,
	24:  22,
}

// ResolveLineID maps a webhook's external line id to the internal one.
func ResolveLineID(external int) int {
	if internal, ok := externalLineMapping[external]; ok {
		return internal
	}
	return external
}

// DedupeCache suppresses repeat webhook events for the same line inside
// a sliding window. Entries expire lazily; the map stays bounded by the
// number of distinct lines, which is small.
type DedupeCache struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[int]time.Time
	now    func() time.Time
}

func NewDedupeCache(window time.Duration) *DedupeCache {
	return &DedupeCache{
		window: window,
		seen:   make(map[int]time.Time),
		now:    time.Now,
	}
}

// MarkIfFresh records the event and reports whether it should be
// processed. A second call inside the window returns false.
func (d *DedupeCache) MarkIfFresh(lineID int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.now()
	for id, at := range d.seen {
		if current.Sub(at) >= d.window {
			delete(d.seen, id)
		}
	}
	if at, ok := d.seen[lineID]; ok && current.Sub(at) < d.window {
		return false
	}
	d.seen[lineID] = current
	return true
}

// Orchestrator drives one webhook event end to end: dedup, candidate
// selection, batched download, ingestion, and the final report.
type Orchestrator struct {
	ds         database.IDataSource
	downloader *BulkDownloader
	processor  *IngestionProcessor
	dedupe     *DedupeCache

	megaBatchSize int
	runTimeout    time.Duration
	horizonDays   int
}

func NewOrchestrator(ds database.IDataSource, downloader *BulkDownloader, processor *IngestionProcessor, cnf config.WebhookConfig) *Orchestrator {
	return &Orchestrator{
		ds:            ds,
		downloader:    downloader,
		processor:     processor,
		dedupe:        NewDedupeCache(time.Duration(cnf.DedupWindowSec) * time.Second),
		megaBatchSize: cnf.MegaBatchSize,
		runTimeout:    time.Duration(cnf.RunTimeoutSec) * time.Second,
		horizonDays:   cnf.HorizonDays,
	}
}

// Handle processes one webhook event. The returned report always
// describes what happened; err is non-nil only for run-level failures
// (unreachable server, open breaker, candidate query failure).
func (o *Orchestrator) Handle(ctx context.Context, event model.WebhookEvent) (*model.OrchestrationReport, error) {
	report := &model.OrchestrationReport{
		RunID:          model.GenerateUUIDWithSuffix("run"),
		ExternalLineID: event.LineID,
		LineID:         ResolveLineID(event.LineID),
		StartedAt:      time.Now(),
	}
	log := logrus.WithFields(logrus.Fields{"run_id": report.RunID, "line_id": report.LineID})

	if !o.dedupe.MarkIfFresh(report.LineID) {
		report.Status = model.ReportStatusDuplicate
		report.Message = "event ignored, same line processed moments ago"
		report.Elapsed = time.Since(report.StartedAt)
		log.Info("duplicate webhook ignored")
		return report, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	horizon := time.Now().AddDate(0, 0, o.horizonDays)
	cruises, err := o.ds.GetActiveCruisesByLine(ctx, report.LineID, horizon)
	if err != nil {
		report.Status = model.ReportStatusFailed
		report.Message = err.Error()
		report.Elapsed = time.Since(report.StartedAt)
		notification.NotifyError(fmt.Errorf("candidate query for line %d: %w", report.LineID, err))
		return report, err
	}
	report.TotalCruises = len(cruises)

	if len(cruises) == 0 {
		report.Status = model.ReportStatusNoCruises
		report.Message = "no active future sailings for this line"
		report.Elapsed = time.Since(report.StartedAt)
		o.notify(report)
		return report, nil
	}

	refs := o.buildFileReferences(ctx, cruises)
	batches := splitBatches(refs, o.megaBatchSize)
	report.Batches = len(batches)
	notification.NotifyReport(notification.Report{
		Title:   "Pricing update started",
		Message: fmt.Sprintf("Line %d: refreshing %d future sailings.", report.LineID, len(refs)),
		Details: map[string]interface{}{"run_id": report.RunID},
	})
	if len(batches) > 1 {
		notification.NotifyReport(notification.Report{
			Title:   "Large pricing update started",
			Message: fmt.Sprintf("Line %d: %d cruises split into %d batches.", report.LineID, len(refs), len(batches)),
			Details: map[string]interface{}{"run_id": report.RunID},
		})
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ingestion model.IngestionResult
		runErr    error
	)
	for _, batch := range batches {
		wg.Add(1)
		go func(batch []model.CruiseFileReference) {
			defer wg.Done()
			downloaded, err := o.downloader.DownloadLineUpdates(ctx, report.LineID, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Breaker-open and unreachable-server are run-level
				// conditions; the whole batch failed to even start.
				if runErr == nil {
					runErr = err
				}
				report.ConnectionFailures += len(batch)
				return
			}
			report.Successful += downloaded.Successful
			report.Corrupted += downloaded.Corrupted
			report.NotFound += downloaded.NotFound
			report.ConnectionFailures += downloaded.ConnectionFailures
			report.Errors = append(report.Errors, downloaded.Errors...)

			applied := o.processor.Apply(ctx, report.LineID, downloaded.DownloadedData)
			ingestion.Merge(applied)
		}(batch)
	}
	wg.Wait()

	report.Created = ingestion.Created
	report.Updated = ingestion.Updated
	report.ActuallyUpdated = ingestion.ActuallyUpdated
	report.Failed = report.Corrupted + report.NotFound + report.ConnectionFailures + ingestion.Failed
	report.Errors = append(report.Errors, ingestion.Errors...)
	report.ErrorBreakdown = breakdownErrors(report.Errors)
	report.Elapsed = time.Since(report.StartedAt)

	if runErr != nil && report.Successful == 0 {
		report.Status = model.ReportStatusFailed
		report.Message = runErr.Error()
		notification.NotifyError(fmt.Errorf("webhook run %s failed: %w", report.RunID, runErr))
		return report, runErr
	}

	report.Status = model.ReportStatusCompleted
	switch {
	case report.Failed == 0:
		report.Quality = model.QualityAllSucceeded
	case report.ActuallyUpdated >= report.ConnectionFailures:
		report.Quality = model.QualityPartial
	default:
		report.Quality = model.QualityMostlyFailed
	}
	log.WithFields(logrus.Fields{
		"status":           report.Status,
		"quality":          report.Quality,
		"total":            report.TotalCruises,
		"actually_updated": report.ActuallyUpdated,
		"elapsed":          report.Elapsed.Round(time.Millisecond),
	}).Info("webhook run finished")

	o.notify(report)
	return report, nil
}

// buildFileReferences decorates candidate cruises with the ship names the
// downloader needs for directory fallbacks. A missing ship record only
// costs the fallback path, not the cruise.
func (o *Orchestrator) buildFileReferences(ctx context.Context, cruises []model.Cruise) []model.CruiseFileReference {
	shipNames := make(map[int]string)
	refs := make([]model.CruiseFileReference, 0, len(cruises))
	for _, cruise := range cruises {
		name, ok := shipNames[cruise.ShipID]
		if !ok {
			if ship, err := o.ds.GetShipByID(ctx, cruise.ShipID); err == nil {
				name = ship.Name
			}
			shipNames[cruise.ShipID] = name
		}
		refs = append(refs, model.CruiseFileReference{
			CruiseID:      cruise.ID,
			LineID:        cruise.LineID,
			ShipID:        cruise.ShipID,
			ShipName:      name,
			AlternateCode: cruise.AlternateCode,
			SailingDate:   cruise.SailingDate,
		})
	}
	return refs
}

func splitBatches(refs []model.CruiseFileReference, size int) [][]model.CruiseFileReference {
	if size < 1 {
		size = 1
	}
	var batches [][]model.CruiseFileReference
	for start := 0; start < len(refs); start += size {
		end := start + size
		if end > len(refs) {
			end = len(refs)
		}
		batches = append(batches, refs[start:end])
	}
	return batches
}

func breakdownErrors(errs []model.CruiseError) map[string]int {
	if len(errs) == 0 {
		return nil
	}
	breakdown := make(map[string]int)
	for _, e := range errs {
		breakdown[e.Type]++
	}
	return breakdown
}

func (o *Orchestrator) notify(report *model.OrchestrationReport) {
	details := map[string]interface{}{
		"run_id":              report.RunID,
		"line_id":             report.LineID,
		"total_cruises":       report.TotalCruises,
		"successful":          report.Successful,
		"created":             report.Created,
		"updated":             report.Updated,
		"actually_updated":    report.ActuallyUpdated,
		"not_found":           report.NotFound,
		"corrupted":           report.Corrupted,
		"connection_failures": report.ConnectionFailures,
		"elapsed":             report.Elapsed.Round(time.Second).String(),
	}
	title := "Pricing update completed"
	message := fmt.Sprintf("Line %d: %d of %d cruises refreshed (%s).",
		report.LineID, report.Successful, report.TotalCruises, report.Quality)
	if report.Status == model.ReportStatusNoCruises {
		title = "Pricing update skipped"
		message = fmt.Sprintf("Line %d has no active future sailings.", report.LineID)
	}
	notification.NotifyReport(notification.Report{Title: title, Message: message, Details: details})
}
