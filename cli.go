package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"quickchat/server/internal/store"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was
// handled.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("quickchat server %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "rooms":
		return cliRooms(dbPath)
	case "bans":
		return cliBans(args[1:], dbPath)
	case "purge-bans":
		return cliPurgeBans(dbPath)
	default:
		return false
	}
}

func openOrDie(dbPath string) *store.Store {
	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	return st
}

func cliStatus(dbPath string) bool {
	st := openOrDie(dbPath)
	defer st.Close()

	rooms, err := st.ListRooms(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("database: %s\n", dbPath)
	fmt.Printf("rooms:    %d\n", len(rooms))
	return true
}

func cliRooms(dbPath string) bool {
	st := openOrDie(dbPath)
	defer st.Close()

	rooms, err := st.ListRooms(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(rooms) == 0 {
		fmt.Println("no rooms")
		return true
	}
	for _, r := range rooms {
		members, err := st.Members(context.Background(), r.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%-20s %-30s members=%d\n", r.ID, r.Name, len(members))
	}
	return true
}

func cliBans(args []string, dbPath string) bool {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: bans <room-id>")
		os.Exit(1)
	}
	st := openOrDie(dbPath)
	defer st.Close()

	bans, err := st.ListBans(context.Background(), args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(bans) == 0 {
		fmt.Println("no bans")
		return true
	}
	nowMS := time.Now().UnixMilli()
	for _, b := range bans {
		state := "active"
		if b.Until <= nowMS {
			state = "expired"
		}
		fmt.Printf("#%-5d uid=%-20s pseudo_ip=%-15s until=%s [%s] reason=%q\n",
			b.ID, b.UID, b.PseudoIP, time.UnixMilli(b.Until).Format(time.RFC3339), state, b.Reason)
	}
	return true
}

func cliPurgeBans(dbPath string) bool {
	st := openOrDie(dbPath)
	defer st.Close()

	n, err := st.PurgeExpiredBans(context.Background(), time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("purged %d expired ban(s)\n", n)
	return true
}
