package main

import (
	"flag"
	"fmt"

	"github.com/min9-wan9/Chat/internal/auth"
	"github.com/min9-wan9/Chat/internal/config"
	clog "github.com/min9-wan9/Chat/internal/log"

	"github.com/rs/zerolog/log"
)

// admintoken prints an operator token for the room administration API, signed
// with the same secret the server loads.
func main() {
	subject := flag.String("subject", "admin", "name recorded as the actor of room deletions")
	ttl := flag.Int("ttl", 0, "token lifetime in minutes (default ADMIN_TOKEN_TTL_MINUTES)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	clog.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if *ttl <= 0 {
		*ttl = cfg.AdminTokenTTLMinutes
	}

	token, err := auth.GenerateAdminToken(*subject, cfg.AdminJWTSecret, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("sign token")
	}
	fmt.Println(token)
}
