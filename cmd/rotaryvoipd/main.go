package main

import (
	"flag"
	"os"
	"time"

	"github.com/jacob-meacham/rotary-voip/phonectl"
	"github.com/rs/zerolog"
)

func main() {
	cfgPath := flag.String("config", "/etc/rotary-voip/config.yaml", "path to the configuration document")
	logLevel := flag.String("log-level", "", "log level override (trace, debug, info, warn, error)")
	flag.Parse()

	lev, err := zerolog.ParseLevel(*logLevel)
	if err != nil || lev == zerolog.NoLevel {
		lev = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.StampMicro,
	}).With().Timestamp().Logger().Level(lev)

	os.Exit(phonectl.Run(*cfgPath, log))
}
