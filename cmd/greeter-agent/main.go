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

// Package main provides an agent that invokes the greeter service's
// "greet" command, answering any RequestInput upcall with the -name
// flag and printing whatever the service returns.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/asimov-proto/asimov-go/aclient"
	"github.com/asimov-proto/asimov-go/asimov"
	"github.com/asimov-proto/asimov-go/transport"
)

var (
	serviceURL = flag.String("service-url", "http://127.0.0.1:9101", "Base URL of the greeter service.")
	agentPort  = flag.Int("agent-port", 9102, "Port this agent listens on for its own client channel.")
	name       = flag.String("name", "", "Name to greet with; if empty, waits for the service to ask.")
)

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}

func resolveManifest(serviceURL string) (asimov.ServiceManifest, error) {
	resp, err := http.Get(serviceURL + "/manifest.json")
	if err != nil {
		return asimov.ServiceManifest{}, err
	}
	defer resp.Body.Close()
	var m asimov.ServiceManifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return asimov.ServiceManifest{}, err
	}
	return m, nil
}

func endpointFor(manifest asimov.ServiceManifest, commandName string) (string, bool) {
	for _, c := range manifest.Commands {
		if c.Name == commandName {
			return c.EndpointURI, true
		}
	}
	return "", false
}

func main() {
	flag.Parse()
	ctx := context.Background()

	manifest, err := resolveManifest(*serviceURL)
	if err != nil {
		log.Fatalf("resolve manifest: %v", err)
	}
	endpoint, ok := endpointFor(manifest, "greet")
	if !ok {
		log.Fatalf("service manifest has no %q command", "greet")
	}

	clientChannelID := asimov.NewChannelID()
	clientChannelToken := asimov.NewChannelToken()
	clientChannelURL := fmt.Sprintf("http://127.0.0.1:%d/channel", *agentPort)

	var client *aclient.Client
	mux := http.NewServeMux()
	mux.HandleFunc("POST /channel", func(rw http.ResponseWriter, req *http.Request) {
		if client == nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		token, ok := bearerToken(req.Header.Get("Authorization"))
		if !ok || token != clientChannelToken {
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}
		var env asimov.MessageEnvelope
		if err := json.NewDecoder(req.Body).Decode(&env); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		client.HandleIncomingMessage(env.Message)
		rw.WriteHeader(http.StatusNoContent)
	})

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", *agentPort))
	if err != nil {
		log.Fatalf("bind agent channel port: %v", err)
	}
	go func() {
		if err := http.Serve(listener, mux); err != nil {
			log.Printf("agent channel server stopped: %v", err)
		}
	}()

	var inputs []asimov.InputValue
	if *name != "" {
		inputs = []asimov.InputValue{{InputType: "name", Value: *name}}
	}
	body, err := json.Marshal(asimov.MessageEnvelope{Message: asimov.Invoke{Inputs: inputs}})
	if err != nil {
		log.Fatalf("marshal invoke: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *serviceURL+endpoint, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build invoke request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(transport.HeaderProtocolVersion, asimov.ProtocolVersion)
	req.Header.Set(transport.HeaderClientChannelID, clientChannelID)
	req.Header.Set(transport.HeaderClientChannelURL, clientChannelURL)
	req.Header.Set(transport.HeaderClientChannelToken, clientChannelToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("invoke: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		var wireErr transport.WireError
		_ = json.NewDecoder(resp.Body).Decode(&wireErr)
		log.Fatalf("invoke failed: %d %s", resp.StatusCode, wireErr.Message)
	}

	channel := asimov.Channel{
		ClientChannelID:     clientChannelID,
		ClientChannelURL:    clientChannelURL,
		ClientChannelToken:  clientChannelToken,
		ServiceChannelID:    resp.Header.Get(transport.HeaderServiceChannelID),
		ServiceChannelURL:   resp.Header.Get(transport.HeaderServiceChannelURL),
		ServiceChannelToken: resp.Header.Get(transport.HeaderServiceChannelToken),
		ProtocolVersion:     asimov.ProtocolVersion,
		CommandName:         "greet",
	}

	sender := transport.NewSender()
	sendFunc := func(ctx context.Context, msg asimov.Message) error {
		return sender.Post(ctx, channel.ServiceChannelURL, transport.HeaderClientChannelID, channel.ClientChannelID, channel.ServiceChannelToken, msg)
	}
	client = aclient.New(sendFunc, channel)

	for msg, err := range client.GetMessages(ctx) {
		if err != nil {
			log.Fatalf("receive: %v", err)
		}
		switch m := msg.(type) {
		case asimov.RequestInput:
			if *name == "" {
				log.Fatal("service asked for a name; rerun with -name")
			}
			if err := client.ProvideInputs(ctx, []asimov.InputValue{{InputType: "name", Value: *name}}, nil); err != nil {
				log.Fatalf("provide inputs: %v", err)
			}
		case asimov.Return:
			for _, item := range m.Items {
				switch {
				case item.Output != nil:
					fmt.Printf("%s: %v\n", item.Output.OutputType, item.Output.Data)
				case item.Error != nil:
					fmt.Printf("error %s: %s\n", item.Error.ErrorName, item.Error.Description)
				}
			}
		default:
			log.Printf("unhandled message: %T", m)
		}
	}
}
