package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"filterbot/backend/internal/api/handler"
	"filterbot/backend/internal/commands"
	"filterbot/backend/internal/config"
	"filterbot/backend/internal/models"
	"filterbot/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const usage = `Usage: admin <command> [args]

  rooms                        list rooms that have filters
  list <room>                  list a room's filters
  stop <room> <trigger>        remove one filter (offline only)
  stopall <room>               remove every filter of a room (offline only)
  token [hours]                issue an admin API token (default 24h)

stop and stopall rewrite FILTERS_FILE directly. Stop the bot first: a running bot keeps
its filters in memory and overwrites the file on its next change.`

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func parseRoom(raw string) models.RoomID {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fail("Invalid room id %q. Please provide an integer chat id.", raw)
	}
	return models.RoomID(id)
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fail(usage)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
	path := os.Getenv("FILTERS_FILE")
	if path == "" {
		path = config.DefaultFiltersFile
	}

	command, args := os.Args[1], os.Args[2:]
	if command == "token" {
		issueToken(args)
		return
	}

	store, err := storage.NewFileStore(path, log)
	if err != nil {
		fail("Failed to load %s: %v", path, err)
	}

	switch command {
	case "rooms":
		rooms := store.Rooms()
		sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
		for _, r := range rooms {
			fmt.Printf("%d\t%d filters\n", r, len(store.ListFilters(r)))
		}
	case "list":
		if len(args) != 1 {
			fail("Usage: admin list <room>")
		}
		listFilters(store, parseRoom(args[0]))
	case "stop":
		if len(args) < 2 {
			fail("Usage: admin stop <room> <trigger>")
		}
		room := parseRoom(args[0])
		trigger, err := commands.ParseStopArgs(strings.Join(args[1:], " "))
		if err != nil {
			fail("Invalid trigger: %v", err)
		}
		removed, err := store.RemoveFilter(room, trigger)
		if err != nil {
			fail("Error removing filter: %v", err)
		}
		if !removed {
			fail("No filter %q in room %d.", trigger, room)
		}
		fmt.Printf("Filter %q removed from room %d.\n", trigger, room)
	case "stopall":
		if len(args) != 1 {
			fail("Usage: admin stopall <room>")
		}
		room := parseRoom(args[0])
		removed, err := store.RemoveAllFilters(room)
		if err != nil {
			fail("Error removing filters: %v", err)
		}
		if !removed {
			fmt.Printf("Room %d has no filters.\n", room)
			return
		}
		fmt.Printf("All filters removed from room %d.\n", room)
	default:
		fail("Unknown command\n\n%s", usage)
	}
}

func listFilters(store *storage.FileStore, room models.RoomID) {
	entries := store.ListFilters(room)
	if len(entries) == 0 {
		fmt.Printf("Room %d has no filters.\n", room)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Trigger < entries[j].Trigger })
	for _, e := range entries {
		if e.IsMedia() {
			fmt.Printf("%q\t[%s %s] %q\n", e.Trigger, e.Media.Kind, e.Media.FileID, e.Media.Caption)
			continue
		}
		fmt.Printf("%q\t%q\n", e.Trigger, e.Content)
	}
}

func issueToken(args []string) {
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fail("ADMIN_JWT_SECRET is not set")
	}
	hours := 24
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fail("Invalid duration. Please provide a positive number of hours.")
		}
		hours = n
	}
	tok, err := handler.IssueToken([]byte(secret), "admin-cli", time.Duration(hours)*time.Hour)
	if err != nil {
		fail("Failed to create token: %v", err)
	}
	fmt.Println(tok)
}
