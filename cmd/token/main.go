// Command token mints an officer bearer token for the case API.
//
//	token -name "Jane Wekesa" -role OCS -station "Kilimani Police Station"
//
// The secret comes from JWT_SECRET (or .env), the same as the server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/bailaid/case-ledger/auth"
	"github.com/bailaid/case-ledger/config"
)

func main() {
	name := flag.String("name", "", "officer name")
	role := flag.String("role", auth.RoleDeskOfficer, `role: "Desk Officer", "OCS" or "Admin"`)
	station := flag.String("station", "", "police station")
	id := flag.String("id", "", "officer id (uuid); random when empty")
	flag.Parse()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fail(err)
	}

	officerID := uuid.New()
	if *id != "" {
		if officerID, err = uuid.Parse(*id); err != nil {
			fail(fmt.Errorf("invalid -id: %w", err))
		}
	}
	if *name == "" {
		fail(fmt.Errorf("-name is required"))
	}

	token, err := auth.GenerateJWT(cfg.JWTSecret, auth.Officer{
		ID:      officerID,
		Name:    *name,
		Role:    *role,
		Station: *station,
	}, cfg.JWTExpiration)
	if err != nil {
		fail(err)
	}
	fmt.Println(token)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "token: %v\n", err)
	os.Exit(1)
}
