/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tomoncle/transact"
	"github.com/tomoncle/transact/database"
	"github.com/tomoncle/transact/transaction"
	"github.com/tomoncle/transact/utils"
	"gopkg.in/yaml.v3"
)

const envPrefix = "TRANSACT"

type operationView struct {
	Name        string               `yaml:"name"`
	NonTransact bool                 `yaml:"non_transact,omitempty"`
	UnitOfWork  *transaction.Options `yaml:"unit_of_work,omitempty"`
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "transactctl",
		Short:         "Inspect unit of work configuration and database contexts",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			utils.ConfigureConsoleLogFormat(v.GetString("log-format"))
			utils.ConfigureLogLevel(v.GetString("log-level"))
			if v.GetString("config") == "" {
				return fmt.Errorf("no config file: use --config or %s_CONFIG", envPrefix)
			}
			v.SetConfigFile(v.GetString("config"))
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file %s: %w", v.GetString("config"), err)
			}
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringP("config", "c", "transact.yaml", "config file path")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "text", "console log format: text or json")
	_ = v.BindPFlags(flags)

	root.AddCommand(newOperationsCommand(v), newResolveCommand(v), newPingCommand(v))
	return root
}

func newOperationsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List configured operations and the default unit of work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !v.IsSet("unit_of_work") {
				return fmt.Errorf("config has no unit_of_work section")
			}
			r, err := transact.LoadOperations(v.ConfigFileUsed())
			if err != nil {
				return err
			}
			defaults := r.Defaults()
			views := []operationView{{Name: "default", UnitOfWork: &defaults}}
			for _, op := range r.Operations() {
				views = append(views, operationView{Name: op.Name, NonTransact: op.NonTransact, UnitOfWork: op.UnitOfWork})
			}
			return writeYAML(cmd.OutOrStdout(), views)
		},
	}
}

func newResolveCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve NAME...",
		Short: "Print the effective unit of work of operations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := transact.LoadOperations(v.ConfigFileUsed())
			if err != nil {
				return err
			}
			views := make([]operationView, 0, len(args))
			for _, name := range args {
				op := r.Resolve(name)
				view := operationView{Name: op.Name, NonTransact: op.NonTransact}
				if !op.NonTransact {
					view.UnitOfWork = op.UnitOfWork
				}
				views = append(views, view)
			}
			return writeYAML(cmd.OutOrStdout(), views)
		},
	}
}

func newPingCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping [LOCATOR...]",
		Short: "Connect to database contexts and report their health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := database.LoadConfig(v.ConfigFileUsed())
			if err != nil {
				return err
			}
			factory, err := database.NewContextFactoryFromConfig(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = factory.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
			defer cancel()

			locators := args
			if len(locators) == 0 {
				locators = factory.Locators()
			}
			var failed []string
			statuses := make([]*database.HealthStatus, 0, len(locators))
			for _, locator := range locators {
				if _, err := factory.DB(ctx, locator); err != nil {
					statuses = append(statuses, &database.HealthStatus{Locator: locator, LastError: err.Error(), LastCheckTime: time.Now()})
					failed = append(failed, locator)
					continue
				}
				m, _ := factory.Manager(locator)
				status := m.HealthCheck(ctx)
				if !status.Healthy {
					failed = append(failed, locator)
				}
				statuses = append(statuses, status)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(statuses); err != nil {
				return err
			}
			if len(failed) > 0 {
				return fmt.Errorf("unhealthy contexts: %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 10*time.Second, "overall ping timeout")
	_ = v.BindPFlag("timeout", cmd.Flags().Lookup("timeout"))
	return cmd
}

func writeYAML(w io.Writer, value interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(value); err != nil {
		return err
	}
	return enc.Close()
}
