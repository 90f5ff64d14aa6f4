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
	"testing"
	"time"

	"github.com/heyitswin/zipsea-sub001/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	corruptedRetryInterval = time.Millisecond
	perFileDelay = 0
	interShipDelay = 0
}

func testRef(cruiseID int) model.CruiseFileReference {
	return model.CruiseFileReference{
		CruiseID:    cruiseID,
		LineID:      22,
		ShipID:      4439,
		ShipName:    "Wonder of the Seas",
		SailingDate: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}
}

func pricingFile(cruiseID int) []byte {
	return []byte(fmt.Sprintf(
		`{"cruiseid": %d, "lineid": 22, "shipid": 4439, "saildate": "2026-03-15", "prices": {"BESTFARE": {"4D": {"101": {"price": 500, "taxes": 50}}}}}`,
		cruiseID))
}

func testDownloader(files map[string][]byte) (*BulkDownloader, *fakeConn, *CircuitBreaker) {
	conn := &fakeConn{files: files}
	pool := NewFTPPool(func(context.Context) (FTPConnection, error) {
		return conn, nil
	}, 2, time.Second)
	breaker := NewCircuitBreaker(3, 10*time.Minute)
	return NewBulkDownloader(pool, breaker), conn, breaker
}

func TestCandidatePaths(t *testing.T) {
	ref := testRef(345235)
	ref.AlternateCode = "987001"
	paths := candidatePaths(ref)
	assert.Equal(t, []string{
		"2026/03/22/4439/345235.json",
		"2026/03/22/wonderoftheseas/345235.json",
		"2026/03/22/4439/987001.json",
		"2026/03/22/wonderoftheseas/987001.json",
	}, paths)
}

func TestDownloadMixedOutcomesBucketSum(t *testing.T) {
	files := map[string][]byte{
		"2026/03/22/4439/100.json": pricingFile(100),
		"2026/03/22/4439/200.json": pricingFile(200),
		// 300 exists nowhere.
	}
	d, _, _ := testDownloader(files)

	refs := []model.CruiseFileReference{testRef(100), testRef(200), testRef(300)}
	result, err := d.DownloadLineUpdates(context.Background(), 22, refs)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalAttempted)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.NotFound)
	assert.Equal(t, 0, result.Corrupted)
	assert.Equal(t, 0, result.ConnectionFailures)
	assert.Equal(t, result.TotalAttempted,
		result.Successful+result.Corrupted+result.NotFound+result.ConnectionFailures)
	assert.Len(t, result.DownloadedData, result.Successful)
	assert.Equal(t, 100, result.DownloadedData[100].CruiseID.Int())
}

func TestDownloadHTMLIsNeverCorrupted(t *testing.T) {
	files := map[string][]byte{
		"2026/03/22/4439/100.json":            []byte("<html><body>404 Not Found</body></html>"),
		"2026/03/22/wonderoftheseas/100.json": []byte("<html><body>404 Not Found</body></html>"),
	}
	d, _, _ := testDownloader(files)

	result, err := d.DownloadLineUpdates(context.Background(), 22, []model.CruiseFileReference{testRef(100)})
	require.NoError(t, err)

	assert.Equal(t, 1, result.NotFound)
	assert.Equal(t, 0, result.Corrupted)
}

func TestDownloadFallsBackToSanitizedShipDir(t *testing.T) {
	files := map[string][]byte{
		"2026/03/22/wonderoftheseas/100.json": pricingFile(100),
	}
	d, _, _ := testDownloader(files)

	result, err := d.DownloadLineUpdates(context.Background(), 22, []model.CruiseFileReference{testRef(100)})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, "2026/03/22/wonderoftheseas/100.json", result.Outcomes[100].Path)
}

func TestDownloadFallsBackToAlternateCode(t *testing.T) {
	files := map[string][]byte{
		"2026/03/22/4439/987001.json": pricingFile(100),
	}
	d, _, _ := testDownloader(files)

	ref := testRef(100)
	ref.AlternateCode = "987001"
	result, err := d.DownloadLineUpdates(context.Background(), 22, []model.CruiseFileReference{ref})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
}

func TestDownloadTruncatedFileRetriedThenCorrupted(t *testing.T) {
	truncated := []byte(`{"cruiseid": 100, "prices": {"BESTFARE": {"4D": {"101": {"price": 500`)
	files := map[string][]byte{
		"2026/03/22/4439/100.json": truncated,
	}
	d, conn, _ := testDownloader(files)

	result, err := d.DownloadLineUpdates(context.Background(), 22, []model.CruiseFileReference{testRef(100)})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Corrupted)
	assert.Equal(t, 0, result.Successful)
	// Three reads of the bad path, then one probe of the fallback path.
	assert.Equal(t, int32(4), conn.calls.Load())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, string(model.OutcomeCorrupted), result.Errors[0].Type)
}

func TestDownloadRepairsConcatenatedObjects(t *testing.T) {
	doubled := append(pricingFile(100), []byte(`{"stray": true}`)...)
	files := map[string][]byte{
		"2026/03/22/4439/100.json": doubled,
	}
	d, _, _ := testDownloader(files)

	result, err := d.DownloadLineUpdates(context.Background(), 22, []model.CruiseFileReference{testRef(100)})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 100, result.DownloadedData[100].CruiseID.Int())
}

func TestDownloadConnectionErrorDiscardsAndReconnects(t *testing.T) {
	bad := &fakeConn{dlErr: fmt.Errorf("read tcp: connection reset by peer")}
	good := &fakeConn{files: map[string][]byte{"2026/03/22/4439/200.json": pricingFile(200)}}
	conns := []FTPConnection{bad, good}
	pool := NewFTPPool(func(context.Context) (FTPConnection, error) {
		conn := conns[0]
		conns = conns[1:]
		return conn, nil
	}, 1, time.Second)
	d := NewBulkDownloader(pool, NewCircuitBreaker(3, 10*time.Minute))

	refs := []model.CruiseFileReference{testRef(100), testRef(200)}
	result, err := d.DownloadLineUpdates(context.Background(), 22, refs)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ConnectionFailures)
	assert.Equal(t, 1, result.Successful)
	assert.True(t, bad.closed.Load())
}

func TestDownloadRefusedWhenBreakerOpen(t *testing.T) {
	d, _, breaker := testDownloader(nil)
	breaker.RecordRun(60, 100)
	breaker.RecordRun(60, 100)
	breaker.RecordRun(60, 100)
	require.True(t, breaker.IsOpen())

	_, err := d.DownloadLineUpdates(context.Background(), 22, []model.CruiseFileReference{testRef(100)})
	require.Error(t, err)
	var open *ErrCircuitOpen
	assert.ErrorAs(t, err, &open)
}

func TestDownloadUnreachableServerIsCallLevelError(t *testing.T) {
	pool := NewFTPPool(func(context.Context) (FTPConnection, error) {
		return nil, fmt.Errorf("dial tcp: connection refused")
	}, 1, time.Second)
	d := NewBulkDownloader(pool, NewCircuitBreaker(3, 10*time.Minute))

	_, err := d.DownloadLineUpdates(context.Background(), 22, []model.CruiseFileReference{testRef(100)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestDownloadCancelledContextMarksRemaining(t *testing.T) {
	files := map[string][]byte{
		"2026/03/22/4439/100.json": pricingFile(100),
	}
	d, _, _ := testDownloader(files)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := d.DownloadLineUpdates(ctx, 22, []model.CruiseFileReference{testRef(100), testRef(200)})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ConnectionFailures)
	assert.Equal(t, 0, result.Successful)
}
