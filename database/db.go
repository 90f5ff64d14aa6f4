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
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/heyitswin/zipsea-sub001/config"
	"github.com/heyitswin/zipsea-sub001/internal/cache"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: nil}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createCruiseLineTable(db)
	if err != nil {
		return nil, err
	}
	err = createShipTable(db)
	if err != nil {
		return nil, err
	}
	err = createPortTable(db)
	if err != nil {
		return nil, err
	}
	err = createCruiseTable(db)
	if err != nil {
		return nil, err
	}
	err = createPricingTable(db)
	if err != nil {
		return nil, err
	}
	err = createCheapestPricingTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func createCruiseLineTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cruise_lines (
			id INT PRIMARY KEY,
			name TEXT NOT NULL,
			code TEXT,
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func createShipTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ships (
			id INT PRIMARY KEY,
			line_id INT NOT NULL REFERENCES cruise_lines(id),
			name TEXT NOT NULL,
			code TEXT,
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func createPortTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ports (
			id INT PRIMARY KEY,
			name TEXT NOT NULL,
			code TEXT,
			is_active BOOLEAN DEFAULT TRUE
		)
	`)
	return err
}

func createCruiseTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cruises (
			id INT PRIMARY KEY,
			line_id INT NOT NULL REFERENCES cruise_lines(id),
			ship_id INT REFERENCES ships(id),
			name TEXT,
			voyage_code TEXT,
			alternate_code TEXT,
			sailing_date DATE NOT NULL,
			return_date DATE,
			nights INT,
			sea_days INT,
			embark_port_id INT,
			disembark_port_id INT,
			port_ids TEXT,
			region_ids TEXT,
			show_cruise BOOLEAN DEFAULT TRUE,
			is_active BOOLEAN DEFAULT TRUE,
			cheapest_price NUMERIC(12,2),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_cruises_line_sailing ON cruises (line_id, sailing_date);
	`)
	return err
}

func createPricingTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cruise_pricing (
			id SERIAL PRIMARY KEY,
			cruise_id INT NOT NULL REFERENCES cruises(id) ON DELETE CASCADE,
			rate_code TEXT NOT NULL,
			cabin_code TEXT NOT NULL,
			occupancy_code TEXT NOT NULL,
			cabin_type TEXT,
			base_price NUMERIC(12,2) NOT NULL,
			adult_price NUMERIC(12,2),
			child_price NUMERIC(12,2),
			taxes NUMERIC(12,2),
			ncf NUMERIC(12,2),
			gratuity NUMERIC(12,2),
			fuel NUMERIC(12,2),
			total_price NUMERIC(12,2) NOT NULL,
			is_available BOOLEAN DEFAULT TRUE,
			inventory INT,
			UNIQUE (cruise_id, rate_code, cabin_code, occupancy_code)
		);
		CREATE INDEX IF NOT EXISTS idx_cruise_pricing_cruise ON cruise_pricing (cruise_id);
	`)
	return err
}

func createCheapestPricingTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cheapest_pricing (
			cruise_id INT PRIMARY KEY REFERENCES cruises(id) ON DELETE CASCADE,
			cheapest_price NUMERIC(12,2) NOT NULL,
			cabin_class TEXT,
			interior_price NUMERIC(12,2),
			oceanview_price NUMERIC(12,2),
			balcony_price NUMERIC(12,2),
			suite_price NUMERIC(12,2),
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}
