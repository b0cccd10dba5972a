// Package mainboilerplate contains shared boilerplate of this project's
// programs: combined INI / environment / flag configuration parsing, logging
// setup, and fatal-error handling. It offers narrowly scoped helpers so
// programs need not buy in to an all-or-nothing initialization.
package mainboilerplate

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Version and BuildDate of the program, set at build time via the linker.
var (
	Version   = "development"
	BuildDate = "unknown"
)

// LogConfig configures handling of application log events.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

// InitLog configures the logger.
func InitLog(cfg LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else if cfg.Format == "text" {
		log.SetFormatter(&log.TextFormatter{})
	} else if cfg.Format == "color" {
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	}

	if lvl, err := log.ParseLevel(cfg.Level); err != nil {
		log.WithField("err", err).Fatal("unrecognized log level")
	} else {
		log.SetLevel(lvl)
	}
}

// DiagnosticsConfig configures pull-based application metrics and
// diagnostics.
type DiagnosticsConfig struct {
	Port string `long:"port" env:"PORT" description:"Port for serving metrics and diagnostics. Disabled if empty"`
}

// InitDiagnostics registers a liveness check and Prometheus metrics on the
// default HTTPMux and, if a port is configured, serves them.
func InitDiagnostics(cfg DiagnosticsConfig) {
	http.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	http.Handle("/debug/metrics", promhttp.Handler())

	if cfg.Port != "" {
		go func() {
			if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
				log.WithField("err", err).Error("failed to serve diagnostics")
			}
		}()
	}
}

// Must panics if |err| is non-nil, supplying |msg| and |extra| as
// formatter and fields of the generated panic.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var f = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		f[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(f).Panic(msg)
}
