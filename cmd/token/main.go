// Command token issues bearer tokens scoped to one tenant, for operators
// and service accounts calling the invoicing API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/auth"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/google/uuid"
)

func main() {
	var (
		tenant  string
		subject string
		ttl     time.Duration
	)
	flag.StringVar(&tenant, "tenant", "", "Tenant ID the token grants access to (required)")
	flag.StringVar(&subject, "subject", "cli", "Subject recorded in the token")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime (default: jwt.token_ttl)")
	flag.Parse()

	tenantID, err := uuid.Parse(tenant)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -tenant %q: %v\n", tenant, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	token, expiresAt, err := auth.NewJWTService(cfg.JWT).IssueToken(tenantID, subject, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println(token)
}
