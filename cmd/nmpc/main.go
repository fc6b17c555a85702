package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/automation"
	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/control"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/experiment"
	"github.com/san-kum/nmpc/internal/export"
	"github.com/san-kum/nmpc/internal/logging"
	"github.com/san-kum/nmpc/internal/optim"
	"github.com/san-kum/nmpc/internal/scheduler"
	"github.com/san-kum/nmpc/internal/sim"
	"github.com/san-kum/nmpc/internal/storage"
	"github.com/san-kum/nmpc/internal/transport"
	"github.com/san-kum/nmpc/internal/viz"
)

var (
	dataDir    string
	configFile string
	model      string
	preset     string
	logLevel   string
	// Scenario overrides
	goalX    float64
	goalY    float64
	goalYaw  float64
	duration float64
	latency  time.Duration
	backend  string
	// Transport overrides
	broker string
	codec  string
	// Output
	noSave  bool
	svgPath string
	outPath string
	// Live view
	pace     time.Duration
	saveLive bool
	theme    string
	// Tuning
	tuneParams []string
	objective  string
	workers    int
	// Monte Carlo
	trials  int
	perturb float64
	seed    int64
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "nmpc",
		Short:         "receding-horizon path tracking controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".nmpc", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "unicycle", "robot model")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the controller against the MQTT broker",
		RunE:  runController,
	}
	runCmd.Flags().StringVar(&broker, "broker", "", "broker url")
	runCmd.Flags().StringVar(&codec, "codec", "", "payload codec (json, msgpack)")

	simCmd := &cobra.Command{
		Use:   "sim",
		Short: "run the controller in closed loop against a simulated robot",
		RunE:  runSimulation,
	}
	addScenarioFlags(simCmd)
	simCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a simulation with live visualization",
		RunE:  runLive,
	}
	addScenarioFlags(liveCmd)
	liveCmd.Flags().DurationVar(&pace, "pace", 50*time.Millisecond, "wall time per control cycle")
	liveCmd.Flags().BoolVar(&saveLive, "save", false, "store the run")
	liveCmd.Flags().StringVar(&theme, "theme", viz.ThemeNames()[0], "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "check a configuration",
		RunE:  validateConfig,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&svgPath, "svg", "", "also write the trajectory as svg")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search over cost weights",
		RunE:  tuneWeights,
	}
	addScenarioFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", nil, "weight and candidate values, e.g. r=0.01,0.1,1")
	tuneCmd.Flags().StringVar(&objective, "objective", "time", "time or a metric name")
	tuneCmd.Flags().IntVar(&workers, "workers", 4, "parallel simulations")

	batchCmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "run a scripted batch of scenarios",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	mcCmd := &cobra.Command{
		Use:   "montecarlo",
		Short: "run the scenario from randomly perturbed starts",
		RunE:  runMonteCarlo,
	}
	addScenarioFlags(mcCmd)
	mcCmd.Flags().IntVar(&trials, "trials", 20, "number of runs")
	mcCmd.Flags().Float64Var(&perturb, "perturb", 0.2, "start pose noise half-width")
	mcCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 uses the clock)")
	mcCmd.Flags().IntVar(&workers, "workers", 4, "parallel simulations")

	rootCmd.AddCommand(runCmd, simCmd, liveCmd, validateCmd, presetsCmd, listCmd, plotCmd, exportCSVCmd, exportJSONCmd, tuneCmd, batchCmd, mcCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addScenarioFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&goalX, "goal-x", 0, "goal x")
	cmd.Flags().Float64Var(&goalY, "goal-y", 0, "goal y")
	cmd.Flags().Float64Var(&goalYaw, "goal-yaw", 0, "goal heading")
	cmd.Flags().Float64Var(&duration, "time", 0, "simulated duration")
	cmd.Flags().DurationVar(&latency, "latency", 0, "simulated solve latency")
	cmd.Flags().StringVar(&backend, "backend", "", "solver backend")
}

// loadConfig resolves the configuration from --config, or from --preset
// and --model, then applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	var cfg *config.Config
	name := preset
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, "", err
		}
		cfg = c
	default:
		if name == "" {
			name = "default"
		}
		cfg = config.GetPreset(model, name)
		if cfg == nil {
			return nil, "", fmt.Errorf("%w: unknown preset %s (available: %v)", dynamo.ErrConfigInvalid, name, config.ListPresets(model))
		}
	}

	flags := cmd.Flags()
	if flags.Changed("goal-x") {
		cfg.Sim.Goal.X = goalX
	}
	if flags.Changed("goal-y") {
		cfg.Sim.Goal.Y = goalY
	}
	if flags.Changed("goal-yaw") {
		cfg.Sim.Goal.Theta = goalYaw
	}
	if flags.Changed("time") {
		cfg.Sim.Duration = duration
	}
	if flags.Changed("latency") {
		cfg.Sim.SolveLatency = latency
	}
	if flags.Changed("backend") {
		cfg.Solver.Backend = backend
	}
	if flags.Changed("broker") {
		cfg.Transport.Broker = broker
	}
	if flags.Changed("codec") {
		cfg.Transport.Codec = codec
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, name, nil
}

func newLogger(cfg *config.Config, outputs ...string) (*zap.SugaredLogger, error) {
	return logging.New(cfg.Logging.Level, cfg.Logging.Encoding, outputs...)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runController(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	// The node needs the rig's buffer, and the rig publishes through the
	// node.
	var node *transport.Node
	out := control.ActuatorFunc(func(ctx context.Context, u dynamo.Control) error {
		return node.Publish(ctx, u)
	})
	rig, err := experiment.Build(cfg, nil, experiment.Options{Logger: logger, Actuator: out})
	if err != nil {
		return err
	}
	node, err = transport.NewNode(cfg.Transport, rig.Buffer,
		transport.WithLogger(logger.Named("transport")),
		transport.WithCommandTimeout(cfg.Period-cfg.SolveTimeout),
	)
	if err != nil {
		return err
	}
	if err := node.Connect(ctx); err != nil {
		return err
	}
	defer node.Disconnect()

	sched, err := scheduler.New(cfg.Period, rig.Pipeline.Tick, scheduler.WithLogger(logger.Named("scheduler")))
	if err != nil {
		return err
	}
	err = sched.Run(ctx)

	snap := rig.Counters.Snapshot()
	snap.Skipped = sched.Skipped()
	logger.Infow("controller stopped",
		"cycles", snap.Cycles,
		"solves", snap.Solves(),
		"failures", snap.Failures(),
		"forced_stops", snap.ForcedStops,
		"skipped", snap.Skipped,
		"worst_overrun", sched.WorstOverrun(),
		"transport", node.Stats(),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("running %s simulation...\n", cfg.Model)
	start := time.Now()
	result, err := experiment.New(cfg, nil, logger).Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v\n", elapsed)
	printResult(result)
	if noSave {
		return nil
	}
	return saveRun(cfg, name, result)
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// The dashboard owns the terminal.
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	logger, err := newLogger(cfg, dataDir+"/live.log")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	exp := experiment.New(cfg, nil, logger)
	title := cfg.Model
	if name != "" {
		title += " / " + name
	}
	result, err := viz.Watch(ctx, exp, experiment.Scenario(cfg), title, theme, pace)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	printResult(result)
	if !saveLive {
		return nil
	}
	return saveRun(cfg, name, result)
}

func printResult(result *sim.Result) {
	fmt.Printf("steps: %d\n", len(result.Controls))
	fmt.Printf("reached: %v\n", result.Reached)
	if final := result.Final(); len(final) >= 3 {
		fmt.Printf("final pose: %s\n", final.Pose())
	}
	for _, e := range result.Errors {
		fmt.Printf("error: %v\n", e)
	}

	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(result.Metrics))
	for n := range result.Metrics {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("  %s: %.6f\n", n, result.Metrics[n])
	}

	c := result.Counters
	fmt.Println("\nsolves:")
	fmt.Printf("  optimal: %d\n  suboptimal: %d\n  infeasible: %d\n  solver error: %d\n  timed out: %d\n",
		c.Optimal, c.Suboptimal, c.Infeasible, c.SolverError, c.TimedOut)
	fmt.Printf("  warm starts: %d\n  fallbacks: %d\n  forced stops: %d\n", c.WarmStarts, c.Fallbacks, c.ForcedStops)
}

func saveRun(cfg *config.Config, name string, result *sim.Result) error {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(cfg, name, result)
	if err != nil {
		return err
	}
	fmt.Printf("\nrun id: %s\n", runID)
	return nil
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Printf("ok: %s, horizon %d, dt %gs, period %v, budget %v, backend %s\n",
		cfg.Model, cfg.Horizon, cfg.Dt, cfg.Period, cfg.SolveTimeout, cfg.Solver.Backend)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	models := experiment.NewRegistry().ListModels()
	if len(args) > 0 {
		models = args
	}
	for _, m := range models {
		presets := config.ListPresets(m)
		if len(presets) == 0 {
			fmt.Printf("no presets for model: %s\n", m)
			continue
		}
		fmt.Printf("presets for %s:\n", m)
		for _, p := range presets {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tPRESET\tTIME\tHORIZON\tBACKEND\tREACHED\tTRACKING")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%v\t%.4f\n",
			run.ID,
			run.Model,
			run.Preset,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Horizon,
			run.Backend,
			run.Reached,
			run.Metrics["tracking_rms"],
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	run, err := st.LoadRun(runID)
	if err != nil {
		return err
	}
	if len(run.States) == 0 {
		return fmt.Errorf("no data to plot")
	}

	// The path is rebuilt from the stored configuration.
	var path dynamo.Path
	if cfg, err := st.LoadConfig(runID); err == nil {
		path = experiment.Scenario(cfg).Path
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", len(run.States))

	fmt.Println(viz.Trajectory(run.States, path, meta.Goal, 60, 20))
	fmt.Println(viz.Commands(run.Controls, 70, 8))

	if svgPath == "" {
		return nil
	}
	f, err := os.Create(svgPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := export.WriteTrajectorySVG(f, run.States, path, meta.Goal, 800, 600); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", svgPath)
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	run, err := st.LoadRun(args[0])
	if err != nil {
		return err
	}
	if len(run.States) == 0 {
		return fmt.Errorf("no data to export")
	}

	w := csv.NewWriter(os.Stdout)
	header := []string{"time"}
	for i := range run.States[0] {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	nu := 0
	if len(run.Controls) > 0 {
		nu = len(run.Controls[0])
	}
	for i := 0; i < nu; i++ {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	header = append(header, "outcome", "mode")
	if err := w.Write(header); err != nil {
		return err
	}

	for k, x := range run.States {
		row := []string{strconv.FormatFloat(run.Times[k], 'f', 6, 64)}
		for _, v := range x {
			row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if k < len(run.Controls) {
			for _, v := range run.Controls[k] {
				row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
			}
			row = append(row, run.Outcomes[k], run.Modes[k])
		} else {
			row = append(row, make([]string, nu+2)...)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if outPath != "" {
		if err := st.ExportJSONFile(args[0], outPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outPath)
		return nil
	}
	return st.ExportJSON(args[0], os.Stdout)
}

// parseParam reads "name=v1,v2,...".
func parseParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("%w: param %q, want name=v1,v2", dynamo.ErrConfigInvalid, s)
	}
	var values []float64
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("%w: param %q: %v", dynamo.ErrConfigInvalid, s, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}

func tuneWeights(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(tuneParams) == 0 {
		return fmt.Errorf("%w: at least one --param is required", dynamo.ErrConfigInvalid)
	}
	names := make([]string, len(tuneParams))
	ranges := make([][]float64, len(tuneParams))
	for i, p := range tuneParams {
		if names[i], ranges[i], err = parseParam(p); err != nil {
			return err
		}
	}

	obj := optim.TimeToGoal
	if objective != "time" {
		obj = optim.MetricObjective(objective)
	}

	gs, err := optim.NewGridSearch(names, ranges, workers)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("evaluating %d candidates...\n", gs.Size())
	candidates, err := gs.Search(ctx, func(params map[string]float64) (*experiment.Experiment, error) {
		c, err := optim.Apply(cfg, params)
		if err != nil {
			return nil, err
		}
		return experiment.New(c, nil, nil), nil
	}, obj)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(append(append([]string{}, names...), "SCORE"), "\t"))
	for _, c := range candidates {
		row := make([]string, 0, len(names)+1)
		for _, n := range names {
			row = append(row, strconv.FormatFloat(c.Params[n], 'g', 4, 64))
		}
		score := strconv.FormatFloat(c.Score, 'f', 4, 64)
		if c.Err != nil {
			score = c.Err.Error()
		}
		fmt.Fprintln(w, strings.Join(append(row, score), "\t"))
	}
	return w.Flush()
}

func runBatch(cmd *cobra.Command, args []string) error {
	b, err := automation.LoadBatch(args[0])
	if err != nil {
		return err
	}
	level := logLevel
	if level == "" {
		level = "info"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	results, err := automation.NewRunner(nil, st, logger).Run(ctx, b)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tREACHED\tTRACKING\tFAILURES\tRUN")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%v\t%.4f\t%d\t%s\n",
			r.Name,
			r.Result.Reached,
			r.Result.Metrics["tracking_rms"],
			r.Result.Counters.Failures(),
			r.RunID,
		)
	}
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	return err
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	runner := automation.NewRunner(nil, nil, logger)
	results, err := runner.RunMonteCarlo(ctx, cfg, automation.MonteCarlo{
		Trials:       trials,
		Perturbation: perturb,
		Seed:         seed,
		Workers:      workers,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRIAL\tSTART\tFINAL\tREACHED")
	for _, t := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\n", t.ID, t.Start.Pose(), t.Final.Pose(), t.Reached)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	reached, missed := automation.Summary(results)
	fmt.Printf("\nreached %d of %d (%d missed)\n", reached, len(results), missed)
	return nil
}
