// Command token issues a signed development token for a participant.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Live/internal/auth"
	"github.com/dkeye/Live/internal/config"
	"github.com/dkeye/Live/internal/domain"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	v := config.New()
	flags := pflag.NewFlagSet("token", pflag.ExitOnError)
	flags.String("sub", "", "participant identity")
	flags.String("role", string(domain.RoleAttendee), "host or attendee")
	flags.String("auth.jwt_secret", "", "signing secret (LIVE_AUTH_JWT_SECRET)")
	flags.String("auth.issuer", "live", "token issuer")
	flags.Duration("auth.token_ttl", 0, "token lifetime")
	_ = flags.Parse(os.Args[1:])
	if err := v.BindPFlags(flags); err != nil {
		log.Fatal().Err(err).Msg("bind flags")
	}

	resolver, err := auth.NewResolver(v.GetString("auth.jwt_secret"), v.GetString("auth.issuer"))
	if err != nil {
		log.Fatal().Err(err).Msg("resolver")
	}
	token, err := resolver.Issue(domain.ParticipantID(v.GetString("sub")), domain.Role(v.GetString("role")), v.GetDuration("auth.token_ttl"))
	if err != nil {
		log.Fatal().Err(err).Msg("issue token")
	}
	fmt.Println(token)
}
