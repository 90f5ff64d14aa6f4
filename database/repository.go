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

package database

import (
	"context"
	"time"

	"github.com/heyitswin/zipsea-sub001/model"
)

type cruiseRepository interface {
	GetActiveCruisesByLine(ctx context.Context, lineID int, horizon time.Time) ([]model.Cruise, error)
	GetCruiseByID(ctx context.Context, id int) (*model.Cruise, error)
	GetShipByID(ctx context.Context, id int) (*model.Ship, error)
	GetPortByID(ctx context.Context, id int) (*model.Port, error)
	GetCruiseLineByID(ctx context.Context, id int) (*model.CruiseLine, error)
	UpsertCruise(ctx context.Context, cruise *model.Cruise) (created bool, err error)
}

type pricingRepository interface {
	ReplacePricing(ctx context.Context, cruiseID int, rows []model.PricingRow) (int, error)
	GetCheapestPricing(ctx context.Context, cruiseID int) (*model.CheapestPricing, error)
	UpsertCheapestPricing(ctx context.Context, pricing model.CheapestPricing) error
}

// IDataSource is the persistence sink the ingestion pipeline writes to.
type IDataSource interface {
	cruiseRepository
	pricingRepository
}
