package main

import (
	"fmt"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagBindings maps viper keys (= env var names without the ENERGYFLOW_ prefix) to pflag names.
var flagBindings = map[string]string{
	"CONFIG":               "config",
	"MODEL_FACTORS":        "model-factors",
	"METRICS_BIND_ADDRESS": "metrics-bind-address",
	"AUDIT_DB":             "audit-db",
	"STREAMS":              "streams",
	"RUN_FOR":              "run-for",
	"REPORT_EVERY":         "report-every",
	"LOG_LEVEL":            "log-level",
}

type daemonConfig struct {
	configPath  string
	factorsPath string
	metricsAddr string
	auditDB     string
	streams     int
	runFor      time.Duration
	reportEvery int
	logLevel    string
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("energyflowd", flag.ContinueOnError)
	fs.String("config", "", "YAML scheduler configuration; defaults are used when empty")
	fs.String("model-factors", "", "YAML model factor table, reloaded on SIGHUP")
	fs.String("metrics-bind-address", ":9464", "address of the Prometheus /metrics endpoint; empty disables it")
	fs.String("audit-db", "", "SQLite file recording every tick and error event; empty disables auditing")
	fs.Int("streams", 3, "number of synthetic token streams")
	fs.Duration("run-for", 0, "stop after this long; 0 runs until interrupted")
	fs.Int("report-every", 60, "log one tick summary every N ticks")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	return fs
}

// loadDaemonConfig resolves settings with precedence flags > env > defaults.
// flagSet may be nil.
func loadDaemonConfig(flagSet *flag.FlagSet) (daemonConfig, error) {
	v := viper.New()
	v.SetDefault("CONFIG", "")
	v.SetDefault("MODEL_FACTORS", "")
	v.SetDefault("METRICS_BIND_ADDRESS", ":9464")
	v.SetDefault("AUDIT_DB", "")
	v.SetDefault("STREAMS", 3)
	v.SetDefault("RUN_FOR", time.Duration(0))
	v.SetDefault("REPORT_EVERY", 60)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetEnvPrefix("ENERGYFLOW")
	v.AutomaticEnv()

	if flagSet != nil {
		for viperKey, flagName := range flagBindings {
			if f := flagSet.Lookup(flagName); f != nil {
				_ = v.BindPFlag(viperKey, f)
			}
		}
	}

	dc := daemonConfig{
		configPath:  v.GetString("CONFIG"),
		factorsPath: v.GetString("MODEL_FACTORS"),
		metricsAddr: v.GetString("METRICS_BIND_ADDRESS"),
		auditDB:     v.GetString("AUDIT_DB"),
		streams:     v.GetInt("STREAMS"),
		runFor:      v.GetDuration("RUN_FOR"),
		reportEvery: v.GetInt("REPORT_EVERY"),
		logLevel:    v.GetString("LOG_LEVEL"),
	}
	if dc.streams < 1 {
		return dc, fmt.Errorf("streams must be at least 1, got %d", dc.streams)
	}
	if dc.reportEvery < 1 {
		return dc, fmt.Errorf("report-every must be at least 1, got %d", dc.reportEvery)
	}
	if dc.runFor < 0 {
		return dc, fmt.Errorf("run-for must not be negative, got %v", dc.runFor)
	}
	return dc, nil
}
