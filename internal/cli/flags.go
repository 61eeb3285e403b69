package cli

import (
	"flag"

	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
)

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Port       int
	Verbose    bool
}

// ParseServeFlags parses command line flags for the serve command.
func ParseServeFlags() *ServeFlags {
	flags := &ServeFlags{}
	flag.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	flag.IntVar(&flags.Port, "port", 0, "Port to listen on (0 = from config)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	flag.Parse()
	return flags
}

// ReconcileFlags are the flags of the one-shot reconcile command
type ReconcileFlags struct {
	ConfigPath    string
	File          string
	Apply         bool
	CreatePayment bool
	Limit         int
	Verbose       bool
}

// ParseReconcileFlags parses reconcile flags from command line
func ParseReconcileFlags() *ReconcileFlags {
	flags := &ReconcileFlags{}
	flag.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	flag.StringVar(&flags.File, "file", "", "Bank statement to import first (CSV, XLSX or XLS)")
	flag.BoolVar(&flags.Apply, "apply", false, "Apply matches (default is a dry run)")
	flag.BoolVar(&flags.CreatePayment, "payments", true, "Create ERP payments for applied invoice matches")
	flag.IntVar(&flags.Limit, "limit", 0, "Maximum pending transactions to process (0 = all)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	flag.Parse()
	return flags
}

// Options converts the flags to auto-reconcile options
func (f ReconcileFlags) Options() reconcile.Options {
	return reconcile.Options{
		Apply:         f.Apply,
		CreatePayment: f.Apply && f.CreatePayment,
		Limit:         f.Limit,
		ReconciledBy:  "cli",
	}
}
