// Command callbridge inspects C callback headers, prints slot translation
// tables, generates trampoline modules and proxy headers, and probes slots
// against a synthetic native guest.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/callbridge/bridge"
	"github.com/wippyai/callbridge/config"
	"github.com/wippyai/callbridge/layout"
	"github.com/wippyai/callbridge/trampoline"
)

var (
	cfgFile   string
	headers   []string
	namespace string
	slots     []string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:           "callbridge",
	Short:         "Route native callback slots into Go",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "manifest file (YAML)")
	pf.StringSliceVarP(&headers, "header", "H", nil, "C header to parse (repeatable)")
	pf.StringVarP(&namespace, "namespace", "n", "", "trampoline module namespace")
	pf.StringSliceVarP(&slots, "slot", "s", nil, "slot as struct.path, or a struct for all slots (repeatable)")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// env bundles what every command needs.
type env struct {
	cfg     config.Config
	layouts *layout.Set
	log     *zap.Logger
}

// loadEnv merges the manifest, CALLBRIDGE_* variables and flags, then parses
// headers.
func loadEnv(args []string) (*env, error) {
	var (
		cfg config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg = config.Default()
		err = cfg.ApplyEnv(nil)
	}
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		cfg.Headers = append(cfg.Headers, headers...)
	}
	if namespace != "" {
		cfg.Namespace = namespace
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if len(args) > 0 {
		cfg.Slots = args
	} else if len(slots) > 0 {
		cfg.Slots = slots
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Headers) == 0 {
		return nil, fmt.Errorf("no headers: pass --header or set headers in the manifest")
	}

	log, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	bridge.SetLogger(log)

	ls, err := cfg.Layouts()
	if err != nil {
		return nil, err
	}
	log.Debug("parsed headers",
		zap.Strings("headers", cfg.HeaderPaths()),
		zap.Int("structs", len(ls.Structs())))
	return &env{cfg: cfg, layouts: ls, log: log}, nil
}

// buildSet generates trampolines for the selected slots, or for every class
// struct when none are selected.
func (e *env) buildSet() (*trampoline.Set, error) {
	if len(e.cfg.Slots) > 0 {
		return e.cfg.BuildSet(e.layouts)
	}
	set := trampoline.NewSet(e.cfg.Namespace, e.layouts, trampoline.WithReserve(e.cfg.TableReserve))
	for _, st := range e.layouts.Structs() {
		if !st.Class {
			continue
		}
		if _, err := set.AddStruct(st.Name); err != nil {
			e.log.Warn("skipping struct", zap.String("struct", st.Name), zap.Error(err))
		}
	}
	return set, nil
}

func displayName(st *layout.Struct) string {
	if len(st.Aliases) == 0 {
		return st.Name
	}
	return st.Name + " (" + strings.Join(st.Aliases, ", ") + ")"
}
