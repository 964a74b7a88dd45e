package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/identity"
	"chatrelay/backend/internal/logging"
	"chatrelay/backend/internal/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  presence               list participants and their online state
  reset-presence         mark every participant offline
  history <room> [page]  print a page of room history, oldest first
  token <username>       mint a credential for username`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	command, args := os.Args[1], os.Args[2:]

	// token needs no database
	if command == "token" {
		if len(args) != 1 {
			fmt.Println("Usage: admin token <username>")
			os.Exit(1)
		}
		if err := printToken(os.Stdout, identity.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), args[0]); err != nil {
			log.Fatalf("Error minting token: %v", err)
		}
		return
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	storageSvc := storage.NewStorageService(db, nil, logging.New(cfg.LogLevel, cfg.LogFormat)) // No redis needed for admin CLI
	ctx := context.Background()

	switch command {
	case "presence":
		if err := printPresence(ctx, os.Stdout, storageSvc); err != nil {
			log.Fatalf("Error listing presence: %v", err)
		}
	case "reset-presence":
		n, err := storageSvc.ResetPresence(ctx, time.Now().UTC())
		if err != nil {
			log.Fatalf("Error resetting presence: %v", err)
		}
		fmt.Printf("%d participant(s) marked offline.\n", n)
	case "history":
		if len(args) < 1 || len(args) > 2 {
			fmt.Println("Usage: admin history <room> [page]")
			os.Exit(1)
		}
		page := 1
		if len(args) == 2 {
			page, err = strconv.Atoi(args[1])
			if err != nil {
				fmt.Println("Invalid page. Please provide an integer.")
				os.Exit(1)
			}
		}
		if err := printHistory(ctx, os.Stdout, storageSvc, args[0], page); err != nil {
			log.Fatalf("Error loading history: %v", err)
		}
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func printPresence(ctx context.Context, w io.Writer, s storage.Storage) error {
	presence, err := s.ListPresence(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tONLINE\tLAST SEEN")
	for _, p := range presence {
		lastSeen := "-"
		if p.LastSeen != nil {
			lastSeen = p.LastSeen.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\n", p.Username, p.Online, lastSeen)
	}
	return tw.Flush()
}

func printHistory(ctx context.Context, w io.Writer, s storage.Storage, room string, page int) error {
	msgs, err := s.FetchPage(ctx, room, page, config.DefaultPageSize)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintf(w, "No messages in %s on page %d.\n", room, page)
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s] %s (%s): %s", m.CreatedAt.UTC().Format(time.RFC3339), m.From, m.Type, m.Content)
		if len(m.Reactions) > 0 {
			fmt.Fprintf(w, "  +%d reaction(s)", len(m.Reactions))
		}
		if len(m.ReadBy) > 0 {
			fmt.Fprintf(w, "  read by %d", len(m.ReadBy))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func printToken(w io.Writer, tokens *identity.TokenIssuer, username string) error {
	token, err := tokens.Issue(username)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
