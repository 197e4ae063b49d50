package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/triage-ai/uplguard/internal/engine"
	"github.com/triage-ai/uplguard/internal/harness"
)

// Exit codes.
const (
	exitNotCompliant = 2
	exitBadInput     = 3
	exitRegression   = 4
)

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

type runFlags struct {
	size        int
	workers     int
	ruleset     string
	report      string
	certificate string
	baseline    string
	logLevel    string
}

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "compliance-harness",
		Short: "Certify a compliance rule table against a synthetic corpus",
		Long: "compliance-harness runs the compliance pipeline over a synthetic corpus of advice-laden and " +
			"informational texts, writes a regression report, and issues a certificate only when every entry passes.",
		SilenceUsage: true,
	}

	var flags runFlags
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the regression corpus and write the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarness(cmd.Context(), flags)
		},
	}

	f := runCmd.Flags()
	f.IntVar(&flags.size, "size", harness.DefaultSize, "Number of corpus entries")
	f.IntVar(&flags.workers, "workers", 0, "Parallel workers (0 = GOMAXPROCS)")
	f.StringVar(&flags.ruleset, "ruleset", os.Getenv("COMPLIANCE_RULESET_PATH"), "Rule table YAML (default: embedded table)")
	f.StringVar(&flags.report, "report", "compliance-report.json", "Path of the JSON report")
	f.StringVar(&flags.certificate, "certificate", "compliance-certificate.txt", "Path of the certificate, written only at 100% compliance")
	f.StringVar(&flags.baseline, "baseline", "", "Earlier report; exit 4 if a certified table now fails")
	f.StringVar(&flags.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	root.AddCommand(runCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			stop()
			os.Exit(ee.code)
		}
		// cobra already printed the error
		stop()
		os.Exit(1)
	}
}

func runHarness(ctx context.Context, flags runFlags) error {
	if flags.size <= 0 {
		return codeError(exitBadInput, "--size must be positive, got %d", flags.size)
	}
	if flags.workers < 0 {
		return codeError(exitBadInput, "--workers must not be negative, got %d", flags.workers)
	}

	logger := mustBuildLogger(flags.logLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	tbl, err := engine.LoadTable(flags.ruleset)
	if err != nil {
		return codeError(exitBadInput, "rule table: %s", err)
	}

	report, err := harness.New(tbl, logger).Run(ctx, harness.Config{Size: flags.size, Workers: flags.workers})
	if err != nil {
		return err
	}

	data, err := report.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(flags.report, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	s := report.Summary
	fmt.Printf("%s (version %s)\n", s.RulesetName, s.RulesetVersion)
	fmt.Printf("  corpus:      %d entries, %d passed\n", s.TotalTests, s.PassedTests)
	fmt.Printf("  violations:  %d before, %d after\n", s.ViolationsBefore, s.ViolationsAfter)
	fmt.Printf("  gate probes: %d/%d redirected\n", s.GateProbesPassed, s.GateProbesTotal)
	fmt.Printf("  compliance:  %.2f%%\n", s.ComplianceRate)
	fmt.Printf("  report:      %s\n", flags.report)

	if flags.baseline != "" {
		baseline, err := harness.LoadReport(flags.baseline)
		if err != nil {
			return codeError(exitBadInput, "baseline: %s", err)
		}
		if err := harness.CheckBaseline(baseline, report); err != nil {
			return codeError(exitRegression, "%s", err)
		}
	}

	if !report.Certified() {
		for i, tr := range report.Failures() {
			if i == 10 {
				fmt.Fprintf(os.Stderr, "... and %d more\n", s.TotalTests-s.PassedTests-10)
				break
			}
			fmt.Fprintf(os.Stderr, "FAIL #%d risk=%s idempotent=%v deterministic=%v\n%s\n",
				tr.Index, tr.RiskLevel, tr.Idempotent, tr.Deterministic, tr.Diff)
		}
		return codeError(exitNotCompliant, "compliance rate %.2f%% is below 100%%; no certificate issued", s.ComplianceRate)
	}

	cert, err := harness.Issue(report, data, []byte(os.Getenv("HARNESS_SIGNING_KEY")))
	if err != nil {
		return err
	}
	if err := os.WriteFile(flags.certificate, []byte(cert.Render()), 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	fmt.Printf("  certificate: %s (%s)\n", flags.certificate, cert.ID)
	return nil
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.WarnLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
