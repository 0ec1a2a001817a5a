package main

import (
	"fmt"
	"io"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/ntrcconfig"
	"github.com/peterbourgon/ntrc/ntrcinst"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type rootConfig struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPaths []string
	level       string
	logLevel    string
	format      string
	color       bool

	config   ntrcconfig.Config
	logger   *zap.Logger
	recorder *ntrc.Narrative
	tracer   *ntrcinst.Tracer
}

func (cfg *rootConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'c',
		LongName:    "config-path",
		Value:       ffval.NewUniqueList(&cfg.configPaths),
		Usage:       "directory to search for narrativetrace.{yaml,yml,toml} (repeatable, default .)",
		Placeholder: "DIR",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'v',
		LongName:    "level",
		Value:       ffval.NewValue(&cfg.level),
		Usage:       "capture level: off, errors, summary, narrative, detail (overrides config)",
		Placeholder: "LEVEL",
		NoDefault:   true,
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'l',
		LongName:    "log-level",
		Value:       ffval.NewEnum(&cfg.logLevel, "info", "debug", "warn", "error", "none"),
		Usage:       "log level: debug, info, warn, error, none",
		Placeholder: "LEVEL",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'o',
		LongName:    "format",
		Value:       ffval.NewEnum(&cfg.format, "text", "prose", "json", "msgpack"),
		Usage:       "trace output format: text, prose, json, msgpack",
		Placeholder: "FORMAT",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:  "color",
		Value:     ffval.NewValue(&cfg.color),
		Usage:     "colorize text output",
		NoDefault: true,
	})
}

// initialize resolves the config, and builds the logger, recorder, and tracer
// shared by every command.
func (cfg *rootConfig) initialize() error {
	logger, err := newLogger(cfg.stderr, cfg.logLevel)
	if err != nil {
		return err
	}
	cfg.logger = logger

	var opts []ntrcconfig.Option
	if len(cfg.configPaths) > 0 {
		opts = append(opts, ntrcconfig.WithSearchPaths(cfg.configPaths...))
	}
	config, err := ntrcconfig.Resolve(opts...)
	if err != nil {
		return fmt.Errorf("resolve config: %w", err)
	}

	if cfg.level != "" {
		lvl, err := ntrc.ParseLevel(cfg.level)
		if err != nil {
			return fmt.Errorf("--level: %w", err)
		}
		config.Level = lvl
	}
	cfg.config = config

	cfg.logger.Debug("resolved config",
		zap.Stringer("level", config.Level),
		zap.Int("max_string_length", config.Values.MaxStringLength),
		zap.Int("max_collection_items", config.Values.MaxCollectionItems),
		zap.Int("max_object_fields", config.Values.MaxObjectFields),
	)

	cfg.recorder = ntrc.NewNarrative(config.LevelVar())
	cfg.tracer = ntrcinst.NewTracer(ntrc.Decorate(cfg.recorder, ntrc.LogDecorator(cfg.logger.Named("trace"), ntrc.DefaultLogLevels)))
	cfg.tracer.Values = config.Renderer()
	if err := cfg.tracer.Register(shopMethods...); err != nil {
		return fmt.Errorf("register methods: %w", err)
	}

	return nil
}

func newLogger(w io.Writer, level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch level {
	case "none":
		return zap.NewNop(), nil
	case "debug":
		lvl = zapcore.DebugLevel
	case "info", "":
		lvl = zapcore.InfoLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}
