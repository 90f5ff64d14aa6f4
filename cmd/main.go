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

package main

import (
	"fmt"
	"log"
	"os"

	zipsea "github.com/heyitswin/zipsea-sub001"
	"github.com/heyitswin/zipsea-sub001/config"
	"github.com/heyitswin/zipsea-sub001/database"
	"github.com/heyitswin/zipsea-sub001/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Zipsea represents the CLI application, encapsulating the root Cobra command.
type Zipsea struct {
	cmd *cobra.Command
}

// zipseaInstance holds the runtime instance and configuration shared by
// the subcommands.
type zipseaInstance struct {
	zipsea *zipsea.Zipsea
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and wires the service before any
// subcommand executes.
func preRun(app *zipseaInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("zipsea.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newZipsea, err := setupZipsea(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.zipsea = newZipsea
		app.cnf = cnf

		return nil
	}
}

func setupZipsea(cfg *config.Configuration) (*zipsea.Zipsea, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newZipsea, err := zipsea.NewZipsea(db)
	if err != nil {
		return nil, fmt.Errorf("error creating zipsea: %v", err)
	}
	return newZipsea, nil
}

// NewCLI creates the command-line interface for the pricing service.
func NewCLI() *Zipsea {
	var configFile string
	z := &zipseaInstance{}

	var rootCmd = &cobra.Command{
		Use:   "zipsea",
		Short: "Cruise pricing ingestion service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./zipsea.json", "Configuration file for the pricing service")

	rootCmd.PersistentPreRunE = preRun(z)

	rootCmd.AddCommand(serverCommands(z))
	rootCmd.AddCommand(workerCommands(z))
	rootCmd.AddCommand(migrateCommands(z))

	return &Zipsea{cmd: rootCmd}
}

func (w Zipsea) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
