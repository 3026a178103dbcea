// Copyright 2025 The ASIMOV Authors
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

// Package main provides a hello world ASIMOV service: a single "greet"
// command that requests a name if none was supplied at invoke time and
// returns a greeting.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asimov-proto/asimov-go/asimov"
	"github.com/asimov-proto/asimov-go/asvc"
	"github.com/asimov-proto/asimov-go/asvc/ctxstore"
	"github.com/asimov-proto/asimov-go/asvc/runner"
	"github.com/asimov-proto/asimov-go/transport"
)

var port = flag.Int("port", 9101, "Port for the greeter service to listen on.")

func greetCommand() *asimov.CommandDefinition {
	cmd := asimov.NewCommandDefinition("greet")
	cmd.Description["en"] = "Greets whoever supplies their name."
	if err := cmd.AddInputType(asimov.TypeDescriptor{
		Name:        "name",
		Description: "The name to greet.",
		Required:    true,
		MinCount:    1,
	}); err != nil {
		log.Fatalf("register input type: %v", err)
	}
	if err := cmd.AddOutputType(asimov.TypeDescriptor{
		Name:        "greeting",
		Description: "The greeting text.",
	}); err != nil {
		log.Fatalf("register output type: %v", err)
	}
	return cmd
}

func greetHandler(ctx context.Context, svcCtx *asvc.Context) error {
	values, err := svcCtx.GetInputs(ctx, "name", 1, 2*time.Minute)
	if err != nil {
		return err
	}
	name, _ := values[0].(string)
	if err := svcCtx.ReturnData("greeting", fmt.Sprintf("hello, %s!", name), ""); err != nil {
		return err
	}
	return svcCtx.Finish(ctx)
}

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("http://127.0.0.1:%d", *port)
	identity := asvc.ServiceIdentity{
		Name:        "Greeter",
		Version:     "1.0.0",
		Description: map[string]string{"en": "Says hello."},
	}

	manager := asvc.NewManager()
	store := ctxstore.NewMemStore()
	logger := slog.Default()
	r := runner.New(manager, store, nil, runner.WithLogger(logger))

	srv := transport.NewServer(
		addr,
		identity,
		nil,
		[]transport.CommandBinding{{Definition: greetCommand(), Handler: greetHandler}},
		manager,
		r,
		store,
		transport.WithLogger(logger),
	)

	log.Printf("Starting the greeter service on %s", addr)
	if err := srv.Run(ctx, fmt.Sprintf(":%d", *port)); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
