package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ichigozero/taskkeeper/authsvc"
)

// config is read from the environment first; flags override it.
type config struct {
	HTTPAddr    string        `env:"HTTP_ADDR"    envDefault:":5000"`
	DatabaseURL string        `env:"DATABASE_URL"`
	SQLitePath  string        `env:"SQLITE_PATH"  envDefault:"gorm.db"`
	ConsulAddr  string        `env:"CONSUL_ADDR"`
	JWTSecret   string        `env:"JWT_SECRET"`
	JWTLeeway   time.Duration `env:"JWT_LEEWAY"   envDefault:"0s"`
	CORSOrigins []string      `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

func loadConfig(args []string) (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("tasksvc", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "http.addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DatabaseURL, "database.url", cfg.DatabaseURL, "PostgreSQL URL; SQLite is used when empty")
	fs.StringVar(&cfg.SQLitePath, "sqlite.path", cfg.SQLitePath, "SQLite database file")
	fs.StringVar(&cfg.ConsulAddr, "consul.addr", cfg.ConsulAddr, "Consul agent address; registration is skipped when empty")
	fs.DurationVar(&cfg.JWTLeeway, "jwt.leeway", cfg.JWTLeeway, "clock skew tolerated when checking token expiry")
	fs.Usage = usageFor(fs, os.Args[0]+" [flags]")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if cfg.JWTSecret == "" {
		return config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// auth returns the verification settings handed to the resolver.
func (c config) auth() authsvc.Config {
	return authsvc.Config{
		AccessSecret: []byte(c.JWTSecret),
		Leeway:       c.JWTLeeway,
	}
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		w := tabwriter.NewWriter(os.Stderr, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(w, "\t-%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		w.Flush()
		fmt.Fprintf(os.Stderr, "\n")
	}
}
