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
	"encoding/json"
	"errors"
	"fmt"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/heyitswin/zipsea-sub001/model"
	"github.com/sirupsen/logrus"
)

// corruptedRetries is how many extra reads a corrupted-looking file gets
// before it is counted as corrupted for real.
const corruptedRetries = 2

var corruptedRetryInterval = 500 * time.Millisecond

// Pacing between reads spreads load on the supplier instead of hammering
// one directory as fast as the link allows.
var (
	perFileDelay   = 100 * time.Millisecond
	interShipDelay = 1 * time.Second
)

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// BulkDownloader drains one batch of cruise pricing files from the
// supplier FTP, classifying every cruise into exactly one outcome
// bucket. It never fails the whole batch for a per-cruise problem; the
// only call-level errors are an open circuit breaker and a completely
// unreachable server.
type BulkDownloader struct {
	pool    *FTPPool
	breaker *CircuitBreaker
}

func NewBulkDownloader(pool *FTPPool, breaker *CircuitBreaker) *BulkDownloader {
	return &BulkDownloader{pool: pool, breaker: breaker}
}

// candidatePaths lists the remote locations a cruise's file may live at,
// in the order the supplier is known to publish them: numeric ship
// directory first, sanitized ship name second, each with the primary id
// filename and then the alternate code filename.
func candidatePaths(ref model.CruiseFileReference) []string {
	year := ref.SailingDate.Year()
	month := int(ref.SailingDate.Month())

	dirs := []string{strconv.Itoa(ref.ShipID)}
	if name := ref.SanitizedShipName(); name != "" && name != dirs[0] {
		dirs = append(dirs, name)
	}
	files := []string{fmt.Sprintf("%d.json", ref.CruiseID)}
	if ref.AlternateCode != "" && ref.AlternateCode != strconv.Itoa(ref.CruiseID) {
		files = append(files, fmt.Sprintf("%s.json", ref.AlternateCode))
	}

	var paths []string
	for _, file := range files {
		for _, dir := range dirs {
			paths = append(paths, fmt.Sprintf("%d/%02d/%d/%s/%s", year, month, ref.LineID, dir, file))
		}
	}
	return paths
}

// isNotFoundErr recognizes the server's missing-file replies.
func isNotFoundErr(err error) bool {
	var pErr *textproto.Error
	if errors.As(err, &pErr) {
		return pErr.Code == 550
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "550") || strings.Contains(msg, "no such file")
}

// DownloadLineUpdates fetches pricing files for every cruise in refs.
// Cruises are grouped by ship so one connection walks one remote
// directory at a time; a broken connection is discarded and replaced
// mid-batch.
func (d *BulkDownloader) DownloadLineUpdates(ctx context.Context, lineID int, refs []model.CruiseFileReference) (*model.BulkDownloadResult, error) {
	if err := d.breaker.Allow(); err != nil {
		return nil, err
	}

	started := time.Now()
	result := &model.BulkDownloadResult{
		LineID:         lineID,
		TotalAttempted: len(refs),
		Outcomes:       make(map[int]model.DownloadOutcome, len(refs)),
		DownloadedData: make(map[int]*model.PricingDocument),
	}
	if len(refs) == 0 {
		result.Duration = time.Since(started)
		return result, nil
	}

	byShip := make(map[int][]model.CruiseFileReference)
	for _, ref := range refs {
		byShip[ref.ShipID] = append(byShip[ref.ShipID], ref)
	}
	shipIDs := make([]int, 0, len(byShip))
	for id := range byShip {
		shipIDs = append(shipIDs, id)
	}
	sort.Ints(shipIDs)

	if ctx.Err() != nil {
		for _, ref := range refs {
			d.record(result, model.DownloadOutcome{
				CruiseID: ref.CruiseID,
				Kind:     model.OutcomeConnectionFailure,
				Reason:   "run timed out before download",
			})
		}
		result.Duration = time.Since(started)
		return result, nil
	}

	// One up-front acquire proves the server is reachable at all; total
	// unreachability is a call-level error, not N connection failures.
	probe, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("ftp server unreachable: %w", err)
	}

	conn := probe
	for si, shipID := range shipIDs {
		if si > 0 {
			pause(ctx, interShipDelay)
		}
		for ri, ref := range byShip[shipID] {
			if ri > 0 {
				pause(ctx, perFileDelay)
			}
			if ctx.Err() != nil {
				d.record(result, model.DownloadOutcome{
					CruiseID: ref.CruiseID,
					Kind:     model.OutcomeConnectionFailure,
					Reason:   "run timed out before download",
				})
				continue
			}

			if conn == nil {
				conn, err = d.pool.Acquire(ctx)
				if err != nil {
					d.record(result, model.DownloadOutcome{
						CruiseID: ref.CruiseID,
						Kind:     model.OutcomeConnectionFailure,
						Reason:   fmt.Sprintf("reconnect failed: %v", err),
					})
					continue
				}
			}

			outcome, broken := d.downloadCruise(ctx, conn, ref)
			if broken {
				d.pool.Discard(conn)
				conn = nil
			}
			d.record(result, outcome)
		}
	}
	if conn != nil {
		d.pool.Release(conn)
	}

	result.Duration = time.Since(started)
	d.breaker.RecordRun(result.Corrupted+result.ConnectionFailures, result.TotalAttempted)

	logrus.WithFields(logrus.Fields{
		"line_id":             lineID,
		"attempted":           result.TotalAttempted,
		"successful":          result.Successful,
		"corrupted":           result.Corrupted,
		"not_found":           result.NotFound,
		"connection_failures": result.ConnectionFailures,
		"duration":            result.Duration.Round(time.Millisecond),
	}).Info("bulk download finished")
	return result, nil
}

// downloadCruise walks the cruise's candidate paths. broken reports that
// the connection itself failed and must be discarded.
func (d *BulkDownloader) downloadCruise(ctx context.Context, conn FTPConnection, ref model.CruiseFileReference) (model.DownloadOutcome, bool) {
	contextID := strconv.Itoa(ref.CruiseID)
	var lastValidation *ValidationError

	for _, path := range candidatePaths(ref) {
		var cleaned string
		var vErr *ValidationError

		attempt := func() error {
			raw, err := conn.Download(ctx, path)
			if err != nil {
				return backoff.Permanent(err)
			}
			cleaned, vErr = ValidatePricingJSON(raw, contextID)
			if vErr != nil && !vErr.IsNotFoundLike() {
				// Corrupted reads are sometimes transient mid-upload
				// snapshots, worth a couple of re-reads.
				return vErr
			}
			return nil
		}
		err := backoff.Retry(attempt, backoff.WithMaxRetries(
			backoff.NewConstantBackOff(corruptedRetryInterval), corruptedRetries))

		if err != nil {
			var permanent *ValidationError
			if errors.As(err, &permanent) {
				lastValidation = permanent
				continue
			}
			if isNotFoundErr(err) {
				continue
			}
			return model.DownloadOutcome{
				CruiseID: ref.CruiseID,
				Kind:     model.OutcomeConnectionFailure,
				Reason:   err.Error(),
				Path:     path,
			}, true
		}
		if vErr != nil {
			// Disguised 404, try the next location.
			continue
		}

		var doc model.PricingDocument
		if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
			return model.DownloadOutcome{
				CruiseID: ref.CruiseID,
				Kind:     model.OutcomeCorrupted,
				Reason:   fmt.Sprintf("document shape: %v", err),
				Path:     path,
			}, false
		}
		return model.DownloadOutcome{
			CruiseID: ref.CruiseID,
			Kind:     model.OutcomeSuccess,
			Path:     path,
			Payload:  &doc,
		}, false
	}

	if lastValidation != nil {
		return model.DownloadOutcome{
			CruiseID: ref.CruiseID,
			Kind:     model.OutcomeCorrupted,
			Reason:   lastValidation.Error(),
		}, false
	}
	return model.DownloadOutcome{
		CruiseID: ref.CruiseID,
		Kind:     model.OutcomeNotFound,
		Reason:   "no candidate path had the file",
	}, false
}

func (d *BulkDownloader) record(result *model.BulkDownloadResult, outcome model.DownloadOutcome) {
	result.Outcomes[outcome.CruiseID] = outcome
	switch outcome.Kind {
	case model.OutcomeSuccess:
		result.Successful++
		result.DownloadedData[outcome.CruiseID] = outcome.Payload
	case model.OutcomeCorrupted:
		result.Corrupted++
		result.Errors = append(result.Errors, model.CruiseError{
			CruiseID: outcome.CruiseID, Type: string(outcome.Kind), Message: outcome.Reason,
		})
	case model.OutcomeNotFound:
		result.NotFound++
		result.Errors = append(result.Errors, model.CruiseError{
			CruiseID: outcome.CruiseID, Type: string(outcome.Kind), Message: outcome.Reason,
		})
	case model.OutcomeConnectionFailure:
		result.ConnectionFailures++
		result.Errors = append(result.Errors, model.CruiseError{
			CruiseID: outcome.CruiseID, Type: string(outcome.Kind), Message: outcome.Reason,
		})
	}
}
