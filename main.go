package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Digital-Twin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("twin exited")
		os.Exit(1)
	}
}
