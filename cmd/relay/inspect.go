package main

import (
	"chat-relay/infrastructure/storage"
	"chat-relay/internal"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dgraph-io/badger/v4"
)

func runInspect(config internal.Config, args []string) (int, error) {
	flags := flag.NewFlagSet("inspect", flag.ContinueOnError)
	dbPath := flags.String("db", config.BadgerFilepath, "Path to badger DB")
	prefix := flags.String("prefix", "room:", "Prefix to scan")
	if err := flags.Parse(args); err != nil {
		return exitConfig, err
	}
	if config.StorageDriver != internal.DriverBadger {
		return exitConfig, fmt.Errorf("inspect only reads the badger store, driver is %q", config.StorageDriver)
	}

	config.BadgerFilepath = *dbPath
	db, err := badger.Open(buildBadgerOpts(config, nil, context.Background(), true))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer db.Close()

	if err := inspect(os.Stdout, db, *prefix); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}

func inspect(w io.Writer, db *badger.DB, prefix string) error {
	table := newTable(w, []string{"Key", "Type", "Timestamp", "Entity ID", "Namespace", "Detail"})
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				row := storage.InspectRecord(string(item.Key()), v)
				table.Append([]string{row.Key, row.Type, row.Timestamp, row.EntityID, row.Namespace, row.Detail})
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
