// Package main mints API keys. The raw key is printed once and never stored.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/gudang/internal/api/middleware"
	"github.com/kiranshivaraju/gudang/internal/config"
	"github.com/kiranshivaraju/gudang/internal/store"
	"github.com/kiranshivaraju/gudang/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const keyPrefix = "gd_"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	name := flag.String("name", "", "label for the new key")
	flag.Parse()

	if err := run(*name, os.Stdout); err != nil {
		slog.Error("mint api key failed", "error", err)
		os.Exit(1)
	}
}

func run(name string, out io.Writer) error {
	if name == "" {
		return fmt.Errorf("-name is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	raw, key, err := mintKey(rand.Reader, name, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := store.NewPostgresStore(pool).CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("store api key: %w", err)
	}

	slog.Info("api key created", "id", key.ID, "name", key.Name, "key_prefix", key.KeyPrefix)
	fmt.Fprintln(out, raw)
	return nil
}

// mintKey generates a raw key and the record that authenticates it.
func mintKey(random io.Reader, name string, cost int) (string, *models.APIKey, error) {
	buf := make([]byte, 24)
	if _, err := io.ReadFull(random, buf); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	raw := keyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	now := time.Now().UTC()
	return raw, &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:mw.KeyPrefixLen],
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
