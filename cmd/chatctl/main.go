// chatctl is the operator tool for a stream-chat deployment: inspect
// stored messages, seed stream rows, and mint session tokens for
// manual testing. It opens the same BadgerDB as the server, so the
// server must be stopped first.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"

	"stream-chat/auth"
	"stream-chat/domain"
	"stream-chat/repositories"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "inspect":
		err = runInspect(os.Args[2:])
	case "seed":
		err = runSeed(os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: chatctl <command> [flags]

Commands:
  inspect   List stored chat messages
  seed      Insert a stream metadata row
  token     Mint a session token`)
}

// runInspect dumps message rows as a table, newest last. Deleted rows
// are shown too: the flag is the whole point of soft deletes.
func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dbPath := fs.String("db", "./badger", "Path to badger DB")
	stream := fs.String("stream", "", "Only this stream id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDB(*dbPath)
	if err != nil {
		return fmt.Errorf("error while opening Badger: %w", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Stream", "Time", "User", "Message", "Deleted"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	prefix := []byte("msg:")
	if *stream != "" {
		prefix = []byte(fmt.Sprintf("msg:%s:", *stream))
	}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				msg, err := repositories.DecodeMessage(value)
				if err != nil {
					// A corrupt row should not abort the whole listing.
					fmt.Printf("Error decoding key %s: %v\n", it.Item().Key(), err)
					return nil
				}
				deleted := ""
				if msg.Deleted {
					deleted = "yes"
				}
				table.Append([]string{
					msg.StreamID,
					msg.CreatedAt.Format(time.RFC3339),
					msg.DisplayName,
					msg.Body,
					deleted,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	table.Render()
	return nil
}

func runSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	dbPath := fs.String("db", "./badger", "Path to badger DB")
	id := fs.String("id", "", "Stream id")
	title := fs.String("title", "", "Stream title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("-id is required")
	}

	db, err := openDB(*dbPath)
	if err != nil {
		return fmt.Errorf("error while opening Badger: %w", err)
	}
	defer db.Close()

	streams := repositories.NewStreamRepository(db)
	if err := streams.PutStream(context.Background(), domain.Stream{ID: *id, Title: *title}); err != nil {
		return err
	}
	fmt.Printf("Stream %s seeded\n", *id)
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "Signing secret")
	userID := fs.String("user", "", "User id")
	username := fs.String("name", "", "Display name")
	roles := fs.String("roles", "", "Comma-separated roles")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return fmt.Errorf("-secret or JWT_SECRET is required")
	}
	if *userID == "" || *username == "" {
		return fmt.Errorf("-user and -name are required")
	}

	var roleList []string
	if *roles != "" {
		roleList = strings.Split(*roles, ",")
	}

	token, err := auth.NewVerifier(*secret).GenerateToken(*userID, *username, roleList, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func openDB(path string) (*badger.DB, error) {
	options := badger.DefaultOptions(path).
		WithLoggingLevel(badger.ERROR).
		WithReadOnly(false)
	return badger.Open(options)
}
