// Command mandatectl is the offline audit tool for delegation chains.
//
//	mandatectl verify <delegation-id>   verify a chain, non-zero exit on tampering
//	mandatectl export <delegation-id>   print a chain's entries as JSON
//	mandatectl head   <delegation-id>   print the chain's current tip hash
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/yesselate/mandate/pkg/config"
	"github.com/yesselate/mandate/pkg/ledger"
	"github.com/yesselate/mandate/pkg/observability"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: mandatectl <verify|export|head> <delegation-id>")
		os.Exit(2)
	}
	command, delegationID := os.Args[1], os.Args[2]

	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel)
	ctx := context.Background()

	telemetry := observability.DefaultConfig()
	telemetry.Enabled = cfg.Telemetry
	telemetry.OTLPEndpoint = cfg.OTLPEndpoint
	provider, err := observability.NewProvider(ctx, telemetry)
	if err != nil {
		logger.Error("init telemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = provider.Shutdown(ctx) }()
	metrics, err := observability.NewMetrics(provider.Meter())
	if err != nil {
		logger.Error("init metrics", "error", err)
		os.Exit(1)
	}

	// lib/pq registers as "postgres", modernc as "sqlite".
	driver := "sqlite"
	if cfg.DatabaseDriver == "postgres" {
		driver = "postgres"
	}
	db, err := sql.Open(driver, cfg.DatabaseURL)
	if err != nil {
		logger.Error("open database", "driver", driver, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	store := ledger.NewSQLStore(db)
	if err := store.Init(ctx); err != nil {
		logger.Error("init schema", "error", err)
		os.Exit(1)
	}
	svc := ledger.NewService(store).WithInstrumentation(metrics)

	switch command {
	case "verify":
		err := svc.Verify(ctx, delegationID)
		var tamper *ledger.TamperError
		switch {
		case err == nil:
			logger.Info("chain verified", "delegation_id", delegationID)
		case errors.As(err, &tamper):
			logger.Error("chain tampered",
				"delegation_id", delegationID,
				"sequence", tamper.Sequence,
				"reason", tamper.Reason)
			os.Exit(1)
		case errors.Is(err, ledger.ErrNotFound):
			logger.Error("no entries for delegation", "delegation_id", delegationID)
			os.Exit(1)
		default:
			logger.Error("verify failed", "error", err)
			os.Exit(1)
		}

	case "export":
		entries, err := svc.Export(ctx, delegationID)
		if err != nil {
			logger.Error("export failed", "delegation_id", delegationID, "error", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			logger.Error("encode entries", "error", err)
			os.Exit(1)
		}

	case "head":
		head, err := svc.Head(ctx, delegationID)
		if err != nil {
			logger.Error("read head", "delegation_id", delegationID, "error", err)
			os.Exit(1)
		}
		if head == "" {
			logger.Error("no entries for delegation", "delegation_id", delegationID)
			os.Exit(1)
		}
		fmt.Println(head)

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		os.Exit(2)
	}
}
