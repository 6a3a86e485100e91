package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lotas/mergewin/internal/applog"
	"github.com/lotas/mergewin/internal/cdp"
	"github.com/lotas/mergewin/internal/config"
	"github.com/lotas/mergewin/internal/consolidate"
	"github.com/lotas/mergewin/internal/export"
	"github.com/lotas/mergewin/internal/firefox"
	"github.com/lotas/mergewin/internal/notify"
	"github.com/lotas/mergewin/internal/server"
	"github.com/lotas/mergewin/internal/tui"
	"github.com/lotas/mergewin/internal/types"
)

// runTimeout bounds one consolidation pass, including the final notification.
const runTimeout = 30 * time.Second

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "merge":
			runMerge(os.Args[2:])
			return
		case "serve":
			runServe(os.Args[2:])
			return
		case "plan":
			runPlan(os.Args[2:])
			return
		case "profiles":
			runProfiles()
			return
		case "help", "--help", "-h":
			printHelp()
			return
		}
	}
	runTUI(os.Args[1:])
}

func printHelp() {
	fmt.Printf(`mergewin - merge browser windows and tidy tabs

Usage:
  mergewin                         Start the popup (default)

  mergewin merge                   Run one consolidation and exit
    --wait <dur>           How long to wait for the browser (default: 10s)

  mergewin serve                   Wait for extension triggers and POST /merge

  mergewin plan                    Print what a merge would do, change nothing
    --live                 Read windows from the extension
    --cdp <url>            Read windows over DevTools
    --profile <name>       Firefox profile whose session file to read (default)
    --md | --json          Output format (default: text)
    --out <file>           Output file path (default: stdout)

  mergewin profiles                List Firefox profiles

Common flags:
  --config <file>          Config file (default: %s)
  --preset <name>          classic or extended (default: classic)
  --port <n>               Extension bridge port (default: %d)
  --cdp <url>              Drive Chromium over DevTools instead of the extension

Environment:
  MERGEWIN_PORT, MERGEWIN_PRESET, MERGEWIN_LOG_DIR, MERGEWIN_NTFY_URL,
  MERGEWIN_CDP_URL, MERGEWIN_PROFILE (a .env file is read too)
`, config.DefaultPath(), config.DefaultPort)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// commonFlags are shared by every subcommand. Flags win over the config file
// and the environment.
type commonFlags struct {
	configPath string
	preset     string
	port       int
	cdpURL     string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.configPath, "config", config.DefaultPath(), "Config file path")
	fs.StringVar(&c.preset, "preset", "", "Preset: classic or extended")
	fs.IntVar(&c.port, "port", 0, "Extension bridge port")
	fs.StringVar(&c.cdpURL, "cdp", "", "Chromium DevTools URL, e.g. http://127.0.0.1:9222")
	return c
}

// load resolves the configuration and starts file logging.
func (c *commonFlags) load() (*config.Config, consolidate.Config) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		fatal(err)
	}
	if c.preset != "" {
		cfg.Preset = c.preset
	}
	if c.port != 0 {
		cfg.Port = c.port
	}
	if c.cdpURL != "" {
		cfg.CDPURL = c.cdpURL
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}
	ccfg, err := cfg.Consolidate()
	if err != nil {
		fatal(err)
	}

	if err := applog.Init(cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
	}
	return cfg, ccfg
}

// browser is a consolidate.Host plus the way to wait for it and the
// notification channel it offers, if any.
type browser struct {
	host     tui.Host
	source   string
	reporter consolidate.Reporter
	close    func()
}

// openBrowser picks the DevTools host when a CDP URL is configured and the
// extension bridge otherwise. The bridge listens until ctx is done.
func openBrowser(ctx context.Context, cfg *config.Config) *browser {
	if cfg.CDPURL != "" {
		h := cdp.New(cfg.CDPURL)
		return &browser{host: h, source: "Chromium " + cfg.CDPURL, close: h.Close}
	}

	srv := server.New(cfg.Port)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error("server.listen", err)
		}
	}()
	bridge := server.NewBridge(srv)
	return &browser{
		host:     bridge,
		source:   fmt.Sprintf("extension on :%d", cfg.Port),
		reporter: bridge,
		close:    func() {},
	}
}

// reporters builds the background notification fan-out: the extension's
// system notification, an optional ntfy push and a line on stderr.
func reporters(cfg *config.Config, b *browser) consolidate.Reporter {
	multi := notify.Multi{notify.Writer{W: os.Stderr}}
	if b.reporter != nil {
		multi = append(multi, b.reporter)
	}
	if cfg.NtfyURL != "" {
		multi = append(multi, notify.Ntfy{Endpoint: cfg.NtfyURL, Client: &http.Client{Timeout: 10 * time.Second}})
	}
	return multi
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runTUI(args []string) {
	fs := flag.NewFlagSet("mergewin", flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Parse(args)
	cfg, ccfg := common.load()
	defer applog.Close()

	ctx, cancel := signalContext()
	defer cancel()

	b := openBrowser(ctx, cfg)
	defer b.close()

	p := tea.NewProgram(tui.NewModel(b.host, ccfg, b.source), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fatal(err)
	}
}

func runMerge(args []string) {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	common := addCommonFlags(fs)
	wait := fs.Duration("wait", 10*time.Second, "How long to wait for the browser")
	fs.Parse(args)
	cfg, ccfg := common.load()
	defer applog.Close()

	ctx, cancel := signalContext()
	defer cancel()

	b := openBrowser(ctx, cfg)
	defer b.close()

	fmt.Fprintf(os.Stderr, "Waiting for %s...\n", b.source)
	waitCtx, waitCancel := context.WithTimeout(ctx, *wait)
	err := b.host.WaitReady(waitCtx)
	waitCancel()
	if err != nil {
		fatal(err)
	}

	runCtx, runCancel := context.WithTimeout(ctx, runTimeout)
	defer runCancel()
	if _, err := consolidate.Run(runCtx, b.host, reporters(cfg, b), ccfg); err != nil {
		// Already reported.
		runCancel()
		b.close()
		applog.Close()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Parse(args)
	cfg, ccfg := common.load()
	defer applog.Close()

	ctx, cancel := signalContext()
	defer cancel()

	srv := server.New(cfg.Port)
	bridge := server.NewBridge(srv)
	b := &browser{host: bridge, reporter: bridge}
	reporter := reporters(cfg, b)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(ctx) }()
	fmt.Fprintf(os.Stderr, "Listening on 127.0.0.1:%d (preset %s)\n", cfg.Port, ccfg.Name)

	// Triggers run one at a time; the channel buffers the rest.
	for {
		select {
		case <-ctx.Done():
			applog.Info("serve.stop")
			return
		case err := <-errc:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatal(err)
			}
			return
		case msg := <-srv.Messages():
			applog.Info("serve.message", "type", msg.Type)
		case t := <-srv.Triggers():
			serveTrigger(ctx, bridge, reporter, ccfg, t)
		}
	}
}

// serveTrigger runs one consolidation for t. Run has already reported a
// failure, so the loop keeps serving either way.
func serveTrigger(ctx context.Context, host consolidate.Host, reporter consolidate.Reporter, ccfg consolidate.Config, t server.Trigger) {
	applog.Info("serve.trigger", "source", t.Source)
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	report, err := consolidate.Run(runCtx, host, reporter, ccfg)
	if err != nil {
		return
	}
	applog.Info("serve.merged", "source", t.Source, "moved", report.Moved, "closed", report.Closed)
}

func runPlan(args []string) {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	common := addCommonFlags(fs)
	live := fs.Bool("live", false, "Read windows from the extension")
	profileName := fs.String("profile", "", "Firefox profile name")
	mdFlag := fs.Bool("md", false, "Output markdown")
	jsonFlag := fs.Bool("json", false, "Output JSON")
	outFile := fs.String("out", "", "Output file path (default: stdout)")
	fs.Parse(args)
	cfg, ccfg := common.load()
	defer applog.Close()

	var windows []*types.Window
	var source string
	var err error
	switch {
	case readsBrowser(*live, cfg):
		windows, source, err = liveWindows(cfg)
	default:
		name := *profileName
		if name == "" {
			name = cfg.Profile
		}
		windows, source, err = sessionWindows(name)
	}
	if err != nil {
		fatal(err)
	}

	plan := consolidate.BuildPlan(windows, ccfg)
	meta := export.Meta{Source: source, Preset: ccfg.Name, At: time.Now()}

	var output string
	switch {
	case *jsonFlag:
		output, err = export.JSON(plan, meta)
		if err != nil {
			fatal(fmt.Errorf("generate JSON: %w", err))
		}
	case *mdFlag:
		output = export.Markdown(plan, meta)
	default:
		output = consolidate.FormatDryRun(plan)
	}

	if *outFile != "" {
		if err := os.WriteFile(*outFile, []byte(output), 0644); err != nil {
			fatal(fmt.Errorf("write file: %w", err))
		}
		return
	}
	fmt.Print(output)
}

// readsBrowser reports whether plan asks the running browser for its windows
// instead of reading a Firefox session file. A CDP URL from any config layer
// counts.
func readsBrowser(live bool, cfg *config.Config) bool {
	return live || cfg.CDPURL != ""
}

func liveWindows(cfg *config.Config) ([]*types.Window, string, error) {
	ctx, cancel := signalContext()
	defer cancel()

	b := openBrowser(ctx, cfg)
	defer b.close()

	fmt.Fprintf(os.Stderr, "Waiting for %s...\n", b.source)
	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
	defer waitCancel()
	if err := b.host.WaitReady(waitCtx); err != nil {
		return nil, "", err
	}

	source := "bridge"
	if cfg.CDPURL != "" {
		source = "cdp"
	}
	windows, err := b.host.Windows(waitCtx)
	return windows, source, err
}

// sessionWindows reads the windows of a Firefox profile's session file. An
// empty name picks the default profile.
func sessionWindows(profileName string) ([]*types.Window, string, error) {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		return nil, "", fmt.Errorf("discover profiles: %w", err)
	}
	profile, err := firefox.SelectProfile(profiles, profileName)
	if err != nil {
		return nil, "", err
	}
	windows, err := firefox.ReadSessionFile(profile.Path)
	if err != nil {
		return nil, "", fmt.Errorf("read session: %w", err)
	}
	return windows, "firefox:" + profile.Name, nil
}

func runProfiles() {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error discovering Firefox profiles: %v\n", err)
		os.Exit(1)
	}
	if len(profiles) == 0 {
		fmt.Fprintln(os.Stderr, "No Firefox profiles found.")
		os.Exit(1)
	}

	for _, p := range profiles {
		suffix := ""
		if p.IsDefault {
			suffix = " [default]"
		}
		fmt.Printf("%s (%s)%s\n", p.Name, p.Path, suffix)
	}
}
