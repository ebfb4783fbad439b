// Command token prints a bearer token for an account, for local testing
// against the gRPC API.
//
//	go run ./cmd/token -account 1 -ttl 2h
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	grpcadapter "github.com/simaogato/fundsflow-backend/internal/adapter/grpc"
	"github.com/simaogato/fundsflow-backend/internal/config"
)

func main() {
	accountID := flag.Int64("account", 0, "account id to use as the token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *accountID <= 0 {
		log.Fatal("-account must be a positive account id")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.JWTSigningKey == "" {
		log.Fatal("JWT_SIGNING_KEY is not set")
	}

	token, err := grpcadapter.IssueToken([]byte(cfg.JWTSigningKey), *accountID, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
