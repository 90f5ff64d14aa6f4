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

import (
	"github.com/heyitswin/zipsea-sub001/model"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// TraveltekWebhook is the inbound notification body. Only event and
// lineid are meaningful; the supplier sends assorted extra fields that
// are accepted and ignored.
type TraveltekWebhook struct {
	Event     string `json:"event"`
	LineID    int    `json:"lineid"`
	Timestamp string `json:"timestamp"`
}

func (w *TraveltekWebhook) ValidateTraveltekWebhook() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.Event, validation.Required),
		validation.Field(&w.LineID, validation.Required, validation.Min(1)),
	)
}

func (w *TraveltekWebhook) ToWebhookEvent() model.WebhookEvent {
	return model.WebhookEvent{
		Event:     w.Event,
		LineID:    w.LineID,
		Timestamp: w.Timestamp,
	}
}
