package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huelink/internal/app"
	"github.com/dokzlo13/huelink/internal/config"
	"github.com/dokzlo13/huelink/internal/hue"
)

const usage = `Usage: huectl [-c config.yaml] <command> [flags]

Commands:
  discover [-mdns]                 list bridges on the network
  pair [-username U] [-generate]   register with the bridge (press the link button first)
  lights                           list lights and their state
  set <light> [flags]              change a light by name or id
  history [-n N] [light]           show recorded commits
`

func main() {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	logLevel := flag.String("log-level", "", "Override log.level (debug, info, warn, error)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	setupLogging(cfg.Log.GetLevel(), cfg.Log.UseJSON, cfg.Log.Colors)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := app.SignalContext()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	err = run(ctx, application, args[0], args[1:])
	application.Close()
	if err != nil {
		log.Error().Err(err).Str("command", args[0]).Msg("Command failed")
		os.Exit(1)
	}
}

// loadConfig reads path, falling back to defaults when the file is missing.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func run(ctx context.Context, a *app.App, command string, args []string) error {
	switch command {
	case "discover":
		return runDiscover(ctx, a, args)
	case "pair":
		return runPair(ctx, a, args)
	case "lights":
		return runLights(ctx, a)
	case "set":
		return runSet(ctx, a, args)
	case "history":
		return runHistory(ctx, a, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runDiscover(ctx context.Context, a *app.App, args []string) error {
	fset := flag.NewFlagSet("discover", flag.ContinueOnError)
	useMDNS := fset.Bool("mdns", false, "Browse the local network with mDNS")
	if err := fset.Parse(args); err != nil {
		return err
	}

	var (
		bridges []*hue.Bridge
		err     error
	)
	if *useMDNS {
		bridges, err = a.DiscoverMDNS(ctx)
	} else {
		bridges, err = a.Discover(ctx)
	}
	if err != nil {
		return err
	}

	if len(bridges) == 0 {
		fmt.Println("no bridges found")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tID\tMAC\tNAME")
	for _, b := range bridges {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Address(), b.ID(), b.MACAddress(), b.Name())
	}
	return w.Flush()
}

func runPair(ctx context.Context, a *app.App, args []string) error {
	fset := flag.NewFlagSet("pair", flag.ContinueOnError)
	username := fset.String("username", "", "Username to register (default: hue.username, else issued by the bridge)")
	generate := fset.Bool("generate", false, "Register a freshly generated username")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *generate {
		*username = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	bridge, err := a.Pair(ctx, *username)
	if errors.Is(err, hue.ErrLinkButtonNotPressed) {
		return fmt.Errorf("press the link button on the bridge and run pair again: %w", err)
	}
	if err != nil {
		return err
	}

	fmt.Printf("paired with %s\nusername: %s\n", bridge.Address(), bridge.Username())
	fmt.Println("set hue.username (or the variable it expands from) to this value")
	return nil
}

func runLights(ctx context.Context, a *app.App) error {
	lights, err := a.Lights(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tON\tBRI\tREACHABLE")
	for _, l := range lights {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%d\t%t\n", l.ID(), l.Name(), l.Type(), l.IsOn(), l.Brightness(), l.IsReachable())
	}
	return w.Flush()
}

func runSet(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: set <light> [-on|-off] [-bri N] [-hue N] [-sat N] [-effect E] [-ct N] [-alert A]")
	}
	key := args[0]

	fset := flag.NewFlagSet("set", flag.ContinueOnError)
	on := fset.Bool("on", false, "Turn the light on")
	off := fset.Bool("off", false, "Turn the light off")
	bri := fset.Int("bri", -1, "Brightness 0-255")
	hueValue := fset.Int("hue", -1, "Hue 0-65535")
	sat := fset.Int("sat", -1, "Saturation 0-255")
	ct := fset.Int("ct", -1, "Color temperature in mirek 153-500")
	effect := fset.String("effect", "", "Effect: none or colorloop")
	alert := fset.String("alert", "", "Alert: none, select or lselect")
	if err := fset.Parse(args[1:]); err != nil {
		return err
	}
	if *on && *off {
		return errors.New("-on and -off are mutually exclusive")
	}

	var change app.LightChange
	set := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { set[f.Name] = true })
	switch {
	case *on:
		change.On = on
	case *off:
		change.On = new(bool)
	}
	if set["bri"] {
		change.Brightness = bri
	}
	if set["hue"] {
		change.Hue = hueValue
	}
	if set["sat"] {
		change.Saturation = sat
	}
	if set["ct"] {
		change.ColorTemperature = ct
	}
	if set["effect"] {
		change.Effect = effect
	}
	if set["alert"] {
		change.Alert = alert
	}
	if change.Empty() {
		return errors.New("nothing to set")
	}

	light, ok, err := a.SetLight(ctx, key, change)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("%s: bridge rejected part of the change\n", light)
		return nil
	}
	fmt.Printf("%s: on=%t bri=%d\n", light, light.IsOn(), light.Brightness())
	return nil
}

func runHistory(ctx context.Context, a *app.App, args []string) error {
	fset := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fset.Int("n", 20, "Number of entries")
	if err := fset.Parse(args); err != nil {
		return err
	}

	entries, err := a.History(ctx, fset.Arg(0), *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tLIGHT\tSUCCESS\tCHANGES")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d %s\t%t\t%v\n", e.Timestamp.Local().Format(time.DateTime), e.LightID, e.LightName, e.Success, e.Changes)
		for _, be := range e.Errors {
			fmt.Fprintf(w, "\t\t\t%s\n", be.Description)
		}
	}
	return w.Flush()
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05.000",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
