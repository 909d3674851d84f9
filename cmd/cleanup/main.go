// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command cleanup runs a single pass of expired-session and spent
// authorization-code removal against the database named by the process
// environment, then exits. It is meant to be invoked from a scheduler
// (cron, a Kubernetes CronJob) as an alternative to the tickers the
// server binary runs in-process.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/opentrusty/opentrusty/internal/config"
	"github.com/opentrusty/opentrusty/internal/session"
	"github.com/opentrusty/opentrusty/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		fmt.Printf("failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	sessionRepo := postgres.NewSessionRepository(db)
	codeRepo := postgres.NewAuthorizationCodeRepository(db)
	sessionService := session.NewService(sessionRepo, cfg.Session.Lifetime, cfg.Session.IdleTimeout)

	exitCode := 0

	if err := sessionService.CleanupExpired(ctx); err != nil {
		fmt.Printf("session cleanup failed: %v\n", err)
		exitCode = 1
	} else {
		fmt.Println("expired sessions removed")
	}

	if err := codeRepo.DeleteExpiredOrUsed(); err != nil {
		fmt.Printf("authorization code cleanup failed: %v\n", err)
		exitCode = 1
	} else {
		fmt.Println("expired and used authorization codes removed")
	}

	os.Exit(exitCode)
}
