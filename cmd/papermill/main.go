// papermill runs the full problem-to-paper workflow: planning, modeling,
// and writing, against a workspace directory.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"papermill/pkg/agent"
	"papermill/pkg/config"
	"papermill/pkg/eventlog"
	"papermill/pkg/events"
	"papermill/pkg/knowledge"
	"papermill/pkg/metrics"
	"papermill/pkg/orchestrator"
	"papermill/pkg/persistence"
	"papermill/pkg/sandbox"
	"papermill/pkg/service"
	"papermill/pkg/workspace"
)

// Version information - set by goreleaser via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var (
		workspaceDir = flag.String("workspace", ".", "Workspace directory")
		problemFile  = flag.String("problem", "", "Path to the problem statement file")
		title        = flag.String("title", "", "Problem title (defaults to the problem file name)")
		setSecret    = flag.String("set-secret", "", "Store a named secret in the encrypted secrets file and exit")
		metricsAddr  = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
		usageFrom    = flag.String("usage-from", "", "Prometheus base URL to report per-role usage from after the run")
		quiet        = flag.Bool("quiet", false, "Suppress progress output on stdout")
		showVersion  = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("papermill %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	if *setSecret != "" {
		os.Exit(storeSecret(*workspaceDir, *setSecret))
	}

	if *problemFile == "" {
		fmt.Fprintln(os.Stderr, "error: -problem is required")
		flag.Usage()
		os.Exit(2)
	}
	if *title == "" {
		base := filepath.Base(*problemFile)
		*title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	os.Exit(run(*workspaceDir, *problemFile, *title, *usageFrom, *quiet))
}

// serveMetrics exposes the default Prometheus registry for scraping.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "metrics server stopped: %v\n", err)
	}
}

// run wires the workflow and returns an exit code, so defers execute before
// os.Exit.
func run(workspaceDir, problemFile, title, usageFrom string, quiet bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(workspaceDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	profiles, err := config.LoadRoleProfiles(workspaceDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load role profiles: %v\n", err)
		return 1
	}
	cfg = cfg.ApplyRoleProfiles(profiles)

	if config.SecretsFileExists(workspaceDir) {
		if err := unlockSecrets(workspaceDir); err != nil {
			fmt.Fprintf(os.Stderr, "failed to unlock secrets: %v\n", err)
			return 1
		}
	}

	extractor := sandbox.TextExtractor{}
	extraction, err := extractor.Extract(ctx, problemFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read problem: %v\n", err)
		return 1
	}
	meta := workspace.ProblemMeta{
		Title:      title,
		SourcePath: problemFile,
		PageCount:  extraction.PageCount,
		LoadedAt:   extraction.ExtractedAt,
	}

	eventWriter, err := eventlog.NewWriter(filepath.Join(workspaceDir, "logs"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open event log: %v\n", err)
		return 1
	}
	defer eventWriter.Close()

	notifier := events.Notifier(eventWriter)
	if !quiet {
		notifier = events.Fanout(consoleNotifier(), eventWriter)
	}

	stateDir := filepath.Join(workspaceDir, config.ConfigDirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create state directory: %v\n", err)
		return 1
	}

	ledger, err := persistence.Open(filepath.Join(stateDir, "papermill.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open run ledger: %v\n", err)
		return 1
	}
	defer ledger.Close()

	session, err := ledger.BeginSession(workspaceDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to begin session: %v\n", err)
		return 1
	}

	kb, err := knowledge.Open(filepath.Join(stateDir, "knowledge.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open knowledge base: %v\n", err)
		return 1
	}
	defer kb.Close()

	sandboxDir := filepath.Join(workspaceDir, "artifacts")
	orch, err := orchestrator.New(orchestrator.Options{
		Factory:    agent.NewClientFactory(cfg),
		Profiles:   profiles,
		Knowledge:  kb,
		Notifier:   notifier,
		Sandbox:    sandbox.NewPythonSandbox(sandboxDir, cfg.SandboxTimeout),
		Compiler:   sandbox.NewLatexCompiler(),
		Ledger:     ledger,
		SessionID:  session.ID,
		SandboxDir: sandboxDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build orchestrator: %v\n", err)
		return 1
	}

	facade := service.New(orch, cfg.Planning, notifier)

	if err := runWorkflow(ctx, orch, facade, ledger, session.ID, workspaceDir, meta, extraction.Text); err != nil {
		fmt.Fprintf(os.Stderr, "workflow failed: %v\n", err)
		endSession(ledger, session.ID, persistence.SessionStatusFailed)
		return 1
	}

	endSession(ledger, session.ID, persistence.SessionStatusCompleted)
	printUsage(ledger, session.ID)
	if usageFrom != "" {
		printRoleUsage(ctx, usageFrom)
	}
	if !quiet {
		fmt.Printf("✅ Paper written to %s\n", filepath.Join(workspaceDir, "artifacts", orchestrator.PaperArtifactName))
	}
	return 0
}

// runWorkflow drives the three phases through the retrying facade and
// records each phase run in the ledger.
func runWorkflow(ctx context.Context, orch *orchestrator.Orchestrator, facade *service.Facade,
	ledger *persistence.Ledger, sessionID, workspaceDir string, meta workspace.ProblemMeta, problemText string) error {

	if err := orch.InitializeWorkspace(workspaceDir, meta); err != nil {
		return err
	}

	var planning orchestrator.PlanningResult
	err := trackPhase(ledger, sessionID, "planning", func() error {
		var err error
		planning, err = facade.RunPlanning(ctx, problemText)
		return err
	})
	if err != nil {
		return err
	}

	err = trackPhase(ledger, sessionID, "modeling", func() error {
		_, err := facade.RunModeling(ctx, planning.Plan)
		return err
	})
	if err != nil {
		return err
	}

	return trackPhase(ledger, sessionID, "writing", func() error {
		_, err := facade.RunWriting(ctx)
		return err
	})
}

// trackPhase brackets a phase call with ledger begin/end records. Ledger
// write failures are reported but never fail the phase.
func trackPhase(ledger *persistence.Ledger, sessionID, phase string, fn func() error) error {
	runID, err := ledger.BeginPhase(sessionID, phase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not record %s phase start: %v\n", phase, err)
	}

	phaseErr := fn()

	status := persistence.RunStatusSucceeded
	errMsg := ""
	if phaseErr != nil {
		status = persistence.RunStatusFailed
		errMsg = phaseErr.Error()
	}
	if runID != 0 {
		if err := ledger.EndPhase(runID, status, errMsg, 1); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not record %s phase end: %v\n", phase, err)
		}
	}
	return phaseErr
}

func endSession(ledger *persistence.Ledger, sessionID, status string) {
	if err := ledger.EndSession(sessionID, status); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not close session: %v\n", err)
	}
}

func printUsage(ledger *persistence.Ledger, sessionID string) {
	usage, err := ledger.UsageTotals(sessionID)
	if err != nil {
		return
	}
	fmt.Printf("Token usage: %d prompt, %d completion\n", usage.PromptTokens, usage.CompletionTokens)
}

// printRoleUsage reports per-role usage aggregated by the Prometheus server
// scraping this process. Best-effort: a query failure is a warning, not a
// run failure.
func printRoleUsage(ctx context.Context, prometheusURL string) {
	q, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: usage report unavailable: %v\n", err)
		return
	}

	roles := []string{config.RoleMaster, config.RoleResearcher, config.RoleModeler, config.RoleWriter}
	report, err := q.GetWorkflowMetrics(ctx, roles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: usage report unavailable: %v\n", err)
		return
	}

	fmt.Println("Per-role usage:")
	for _, m := range report {
		fmt.Printf("  %-10s %4d requests, %7d prompt, %7d completion tokens\n",
			m.Role, m.Requests, m.PromptTokens, m.CompletionTokens)
	}
}

// consoleNotifier renders notifications as single progress lines on stdout.
func consoleNotifier() events.Notifier {
	icons := map[events.Severity]string{
		events.SeverityInfo:    "•",
		events.SeveritySuccess: "✅",
		events.SeverityWarning: "⚠️",
		events.SeverityError:   "❌",
	}
	return events.NotifierFunc(func(n events.Notification) {
		icon, ok := icons[n.Severity]
		if !ok {
			icon = "•"
		}
		switch n.Kind {
		case events.KindPhaseChange:
			fmt.Printf("\n%s %s\n", icon, n.Message)
		case events.KindLog, events.KindError, events.KindArtifactCreated:
			fmt.Printf("%s %s\n", icon, n.Message)
		default:
			fmt.Printf("%s %s\n", icon, string(n.Kind))
		}
	})
}

// unlockSecrets prompts for the secrets password and loads the decrypted
// secrets into memory.
func unlockSecrets(workspaceDir string) error {
	password, err := promptPassword("Secrets password: ")
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(workspaceDir, password)
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

// storeSecret adds one secret to the encrypted secrets file, creating the
// file on first use. Returns an exit code.
func storeSecret(workspaceDir, name string) int {
	password, err := promptPassword("Secrets password: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	secrets := map[string]string{}
	if config.SecretsFileExists(workspaceDir) {
		secrets, err = config.DecryptSecretsFile(workspaceDir, password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	}

	value, err := promptPassword(fmt.Sprintf("Value for %s: ", name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	secrets[name] = value

	if err := config.EncryptSecretsFile(workspaceDir, password, secrets); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Printf("stored secret %s\n", name)
	return 0
}

// promptPassword reads a line without echo when stdin is a terminal, and
// falls back to a plain line read otherwise (pipelines, tests).
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
