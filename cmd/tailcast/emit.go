package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

// emitTimeLayout matches the trading engine's log timestamps.
const emitTimeLayout = "2006-01-02 15:04:05,000"

const (
	emitTimeField   = "ts"
	emitLoggerField = "logger"
)

var emitFlags struct {
	file       string
	name       string
	interval   time.Duration
	count      int
	maxSizeMB  int
	maxBackups int
}

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Write synthetic engine log lines to a rotating file",
	Long: `Appends lines in the trading engine's format to the configured source file,
rotating it like the engine does. Useful for exercising tailcastd without the engine.`,
	Args: cobra.NoArgs,
	RunE: runEmit,
}

func init() {
	f := emitCmd.Flags()
	f.StringVar(&emitFlags.file, "file", "", "output file (default: source.path from config)")
	f.StringVar(&emitFlags.name, "name", "trading_system", "logger name written on each line")
	f.DurationVar(&emitFlags.interval, "interval", 250*time.Millisecond, "delay between lines")
	f.IntVar(&emitFlags.count, "count", 0, "number of lines to write (0 = until interrupted)")
	f.IntVar(&emitFlags.maxSizeMB, "max-size", 10, "rotate after this many megabytes")
	f.IntVar(&emitFlags.maxBackups, "max-backups", 5, "rotated files to keep")
}

func runEmit(cmd *cobra.Command, _ []string) error {
	path := emitFlags.file
	if path == "" {
		path = cfg.Source.Path
	}
	if path == "" {
		return fmt.Errorf("no output file: pass --file or set source.path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    emitFlags.maxSizeMB, // megabytes
		MaxBackups: emitFlags.maxBackups,
	}
	defer out.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newEmitLogger(out, emitFlags.name)
	fmt.Fprintf(cmd.ErrOrStderr(), "emitting to %s every %s\n", path, emitFlags.interval)

	ticker := time.NewTicker(emitFlags.interval)
	defer ticker.Stop()
	for n := 0; emitFlags.count == 0 || n < emitFlags.count; n++ {
		level, msg := syntheticLine(n)
		emitLine(logger, time.Now(), level, msg)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// newEmitLogger returns a zerolog logger writing
// "<time> - <name> - <LEVEL> - <message>" lines to w.
func newEmitLogger(w io.Writer, name string) zerolog.Logger {
	cw := zerolog.ConsoleWriter{
		Out:           w,
		NoColor:       true,
		PartsOrder:    []string{emitTimeField, emitLoggerField, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FieldsExclude: []string{emitTimeField, emitLoggerField},
		FormatFieldValue: func(i any) string {
			return fmt.Sprintf("%s -", i)
		},
		FormatLevel: func(i any) string {
			return levelName(i) + " -"
		},
		FormatMessage: func(i any) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("%s", i)
		},
	}
	return zerolog.New(cw).With().Str(emitLoggerField, name).Logger()
}

func emitLine(logger zerolog.Logger, at time.Time, level zerolog.Level, msg string) {
	logger.WithLevel(level).Str(emitTimeField, at.Format(emitTimeLayout)).Msg(msg)
}

// levelName spells zerolog levels the way the engine's logger does.
func levelName(i any) string {
	s, _ := i.(string)
	switch s {
	case zerolog.LevelWarnValue:
		return "WARNING"
	case zerolog.LevelFatalValue, zerolog.LevelPanicValue:
		return "CRITICAL"
	default:
		return strings.ToUpper(s)
	}
}

var (
	symbols    = []string{"AAPL", "MSFT", "NVDA", "SPY", "QQQ", "TSLA", "AMZN"}
	strategies = []string{"momentum", "mean_reversion", "pairs", "breakout"}
)

// syntheticLine picks a level with engine-like frequencies and a message
// for it. n is the line number, used for order ids.
func syntheticLine(n int) (zerolog.Level, string) {
	sym := symbols[rand.IntN(len(symbols))]
	strat := strategies[rand.IntN(len(strategies))]
	price := 50 + rand.Float64()*450
	qty := (1 + rand.IntN(20)) * 10

	switch r := rand.IntN(100); {
	case r < 5:
		return zerolog.ErrorLevel, fmt.Sprintf("Order %d for %s rejected by broker: insufficient buying power", 100000+n, sym)
	case r < 15:
		return zerolog.WarnLevel, fmt.Sprintf("Quote for %s is stale (%dms old), skipping signal from %s", sym, 500+rand.IntN(2500), strat)
	case r < 30:
		return zerolog.DebugLevel, fmt.Sprintf("%s: evaluated %s bid=%.2f ask=%.2f", strat, sym, price, price+0.01)
	case r < 65:
		return zerolog.InfoLevel, fmt.Sprintf("Order %d filled: BUY %d %s @ %.2f (%s)", 100000+n, qty, sym, price, strat)
	default:
		return zerolog.InfoLevel, fmt.Sprintf("Position update: %s qty=%d avg=%.2f unrealized=%.2f", sym, qty, price, (rand.Float64()-0.5)*200)
	}
}
