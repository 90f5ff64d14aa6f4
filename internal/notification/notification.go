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

package notification

import (
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heyitswin/zipsea-sub001/config"
	"github.com/heyitswin/zipsea-sub001/internal/request"
)

// Report is one operator-facing notification: a title, a human message and
// a detail map rendered as Slack fields. The pipeline emits these at run
// start, for large batches, at run completion and on fatal errors;
// delivery is best-effort and can never fail the pipeline.
type Report struct {
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type slackBlock struct {
	Type     string        `json:"type"`
	Text     *slackText    `json:"text,omitempty"`
	Fields   []slackText   `json:"fields,omitempty"`
	Elements []slackText   `json:"elements,omitempty"`
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// buildSlackPayload renders a Report as a block-kit message: header,
// message section, divider, detail fields, context timestamp footer.
func buildSlackPayload(report Report) slackPayload {
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: report.Title, Emoji: true},
		},
	}

	if report.Message != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: report.Message},
		})
	}

	if len(report.Details) > 0 {
		blocks = append(blocks, slackBlock{Type: "divider"})

		keys := make([]string, 0, len(report.Details))
		for k := range report.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var fields []slackText
		for _, k := range keys {
			fields = append(fields, slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*%s:*\n%v", strings.ReplaceAll(k, "_", " "), report.Details[k]),
			})
			// Slack caps a section at 10 fields.
			if len(fields) == 10 {
				blocks = append(blocks, slackBlock{Type: "section", Fields: fields})
				fields = nil
			}
		}
		if len(fields) > 0 {
			blocks = append(blocks, slackBlock{Type: "section", Fields: fields})
		}
	}

	blocks = append(blocks, slackBlock{
		Type: "context",
		Elements: []slackText{
			{Type: "mrkdwn", Text: fmt.Sprintf("Sent at %s", time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))},
		},
	})

	return slackPayload{Text: report.Title, Blocks: blocks}
}

// SlackReport sends a report to the configured Slack webhook synchronously.
func SlackReport(report Report) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Slack.WebhookUrl == "" {
		return nil
	}

	payload, err := request.ToJsonReq(buildSlackPayload(report))
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", conf.Notification.Slack.WebhookUrl, payload)
	if err != nil {
		return err
	}

	resp, err := request.Call(req, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NotifyReport delivers a report asynchronously. Failures are logged and
// swallowed; the notification sink must not be able to fail processing.
func NotifyReport(report Report) {
	go func(report Report) {
		if err := SlackReport(report); err != nil {
			logrus.Warnf("slack notification failed: %v", err)
		}
	}(report)
}

// NotifyError sends an error notification through the configured
// notification system. It logs the error locally and reports via Slack.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			log.Println(err)
			return
		}

		if conf.Notification.Slack.WebhookUrl != "" {
			err := SlackReport(Report{
				Title:   "Error From Zipsea 🐞",
				Message: systemError.Error(),
			})
			if err != nil {
				log.Println(err)
			}
		}
	}(systemError)
}
