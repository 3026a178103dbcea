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

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"

	"github.com/asimov-proto/asimov-go/asimov"
	"github.com/asimov-proto/asimov-go/asvc"
	"github.com/asimov-proto/asimov-go/asvc/ctxstore"
	"github.com/asimov-proto/asimov-go/asvc/runner"
)

// CommandBinding pairs a registered command with the handler function
// the Execution Runner drives against a fresh Service Context whenever
// an Invoke lands on that command's endpoint.
type CommandBinding struct {
	Definition *asimov.CommandDefinition
	Handler    runner.HandlerFunc
	PathName   string // defaults to Definition.Name
}

// Server hosts the manifest, invoke, and channel endpoints for a
// single service (spec §4.I, §6), grounded on the teacher's
// a2asrv.NewRESTHandler mux-of-handlers shape.
type Server struct {
	baseURL     string
	manifest    asimov.ServiceManifest
	profileDefs map[string]*asimov.ConfigProfileDefinition
	bindings    map[string]CommandBinding
	manager     *asvc.Manager
	runner      *runner.Runner
	store       ctxstore.Store
	sender      *Sender
	contextOpts []asvc.Option
	logger      *slog.Logger

	mux *http.ServeMux
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithLogger attaches a logger. If not provided, defaults to
// slog.Default(), matching the teacher's RequestHandlerOption
// convention in a2asrv.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithContextOptions passes through asvc.Options applied to every
// Service Context this server creates (e.g. WithObserver).
func WithContextOptions(opts ...asvc.Option) ServerOption {
	return func(s *Server) { s.contextOpts = opts }
}

// NewServer builds a Server and wires its routes. baseURL is this
// service's own externally reachable base URL (used to construct
// service channel URLs handed back to invoking agents).
func NewServer(
	baseURL string,
	identity asvc.ServiceIdentity,
	profiles []*asimov.ConfigProfileDefinition,
	bindings []CommandBinding,
	manager *asvc.Manager,
	r *runner.Runner,
	store ctxstore.Store,
	opts ...ServerOption,
) *Server {
	profileDefs := make(map[string]*asimov.ConfigProfileDefinition, len(profiles))
	regs := make([]asvc.CommandRegistration, 0, len(bindings))
	bindingsByPath := make(map[string]CommandBinding, len(bindings))
	for _, p := range profiles {
		profileDefs[p.Name] = p
	}
	for _, b := range bindings {
		path := b.PathName
		if path == "" {
			path = b.Definition.Name
		}
		bindingsByPath[path] = b
		regs = append(regs, asvc.CommandRegistration{Command: b.Definition, PathName: path})
	}

	s := &Server{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		manifest:    asvc.BuildManifest(identity, profiles, regs),
		profileDefs: profileDefs,
		bindings:    bindingsByPath,
		manager:     manager,
		runner:      r,
		store:       store,
		sender:      NewSender(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /manifest.json", s.handleManifest)
	s.mux.HandleFunc("POST /invoke/{commandName}", s.handleInvoke)
	s.mux.HandleFunc("POST /channel", s.handleChannel)
	s.mux.HandleFunc("POST /channel/{channelId}", s.handleChannel)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	s.mux.ServeHTTP(rw, req)
}

// Run serves the endpoints on addr until ctx is cancelled, then shuts
// down gracefully. It uses an errgroup to join the listener goroutine
// with the shutdown watcher under first-error-wins semantics, in place
// of the teacher's http.Serve(listener, mux) single-goroutine call:
// unlike a2a's clustermode example (which never shuts down), a service
// hosting suspendable, resumable contexts needs to stop accepting new
// invocations without killing in-flight ones out from under their
// handlers.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return httpServer.Shutdown(context.Background())
	})
	return g.Wait()
}

func (s *Server) handleManifest(rw http.ResponseWriter, req *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(s.manifest)
}

func (s *Server) handleInvoke(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	commandName := req.PathValue("commandName")

	if err := checkProtocolVersion(req.Header.Get(HeaderProtocolVersion)); err != nil {
		WriteError(rw, err, "", "")
		return
	}

	binding, ok := s.bindings[commandName]
	if !ok {
		s.logger.WarnContext(ctx, "invoke for unknown command", slog.String("command", commandName))
		WriteError(rw, asimov.NewError(asimov.ErrCommandNotFound, commandName), "", "")
		return
	}

	var env asimov.MessageEnvelope
	if err := json.NewDecoder(req.Body).Decode(&env); err != nil {
		WriteError(rw, asimov.NewError(asimov.ErrInvalidRequest, "malformed body: "+err.Error()), "", "")
		return
	}
	invoke, ok := env.Message.(asimov.Invoke)
	if !ok {
		WriteError(rw, asimov.NewError(asimov.ErrInvalidRequest, "expected an Invoke message"), "", "")
		return
	}

	clientChannelID := req.Header.Get(HeaderClientChannelID)
	clientChannelURL := req.Header.Get(HeaderClientChannelURL)
	clientChannelToken := req.Header.Get(HeaderClientChannelToken)
	if clientChannelID == "" || clientChannelURL == "" || clientChannelToken == "" {
		WriteError(rw, asimov.NewError(asimov.ErrInvalidRequest, "missing client channel headers"), "", "")
		return
	}

	channel := asimov.Channel{
		ClientChannelID:     clientChannelID,
		ClientChannelURL:    clientChannelURL,
		ClientChannelToken:  clientChannelToken,
		ServiceChannelID:    asimov.NewChannelID(),
		ServiceChannelToken: asimov.NewChannelToken(),
		ProtocolVersion:     asimov.ProtocolVersion,
		CommandName:         commandName,
	}
	channel.ServiceChannelURL = fmt.Sprintf("%s/channel/%s", s.baseURL, channel.ServiceChannelID)

	sendFunc := func(ctx context.Context, msg asimov.Message) error {
		return s.sender.Post(ctx, channel.ClientChannelURL, HeaderServiceChannelID, channel.ServiceChannelID, channel.ClientChannelToken, msg)
	}

	svcCtx := asvc.New(sendFunc, binding.Definition, channel, s.profileDefs, s.contextOpts...)
	if err := svcCtx.HandleIncoming(ctx, invoke); err != nil {
		WriteError(rw, asimov.NewError(asimov.ErrInvalidRequest, err.Error()).WithDetails(detailsOf(err)), channel.ServiceChannelID, channel.ClientChannelID)
		return
	}

	s.manager.Add(svcCtx)
	s.runner.Run(ctx, svcCtx, binding.Handler)
	s.logger.InfoContext(ctx, "invoked command",
		slog.String("command", commandName),
		slog.String("service_channel_id", channel.ServiceChannelID))

	rw.Header().Set(HeaderServiceChannelID, channel.ServiceChannelID)
	rw.Header().Set(HeaderServiceChannelURL, channel.ServiceChannelURL)
	rw.Header().Set(HeaderServiceChannelToken, channel.ServiceChannelToken)
	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChannel(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	channelID := req.PathValue("channelId")
	if channelID == "" {
		channelID = req.Header.Get(HeaderServiceChannelID)
	}
	if channelID == "" {
		WriteError(rw, asimov.NewError(asimov.ErrInvalidRequest, "missing channel id"), "", "")
		return
	}

	var env asimov.MessageEnvelope
	if err := json.NewDecoder(req.Body).Decode(&env); err != nil {
		WriteError(rw, asimov.NewError(asimov.ErrInvalidRequest, "malformed body: "+err.Error()), channelID, "")
		return
	}

	svcCtx, ok := s.manager.Get(channelID)
	if !ok {
		handled, err := s.resume(ctx, channelID, env, req.Header.Get("Authorization"))
		if !handled {
			WriteError(rw, asimov.NewError(asimov.ErrSessionNotFound, channelID), channelID, "")
			return
		}
		if err != nil {
			WriteError(rw, err, channelID, "")
			return
		}
		rw.WriteHeader(http.StatusNoContent)
		return
	}

	token, ok := bearerToken(req.Header.Get("Authorization"))
	if !ok || token != svcCtx.Channel().ServiceChannelToken {
		WriteError(rw, asimov.NewError(asimov.ErrUnauthorized, "invalid or missing bearer token"), channelID, "")
		return
	}

	if err := svcCtx.HandleIncoming(ctx, env.Message); err != nil {
		WriteError(rw, asimov.NewError(asimov.ErrInvalidRequest, err.Error()).WithDetails(detailsOf(err)), channelID, svcCtx.Channel().ClientChannelID)
		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

// resume brings a suspended context back from the store when the
// manager has no live entry for channelID, per spec §3: "on next
// incoming message for that channel, it is restored and the handler is
// re-entered." handled reports whether channelID was found in the
// store at all; when handled is true and err is non-nil, the caller
// should write err as the response instead of falling back to
// SessionNotFound.
func (s *Server) resume(ctx context.Context, channelID string, env asimov.MessageEnvelope, authHeader string) (handled bool, err error) {
	if s.store == nil {
		return false, nil
	}

	rec, found, err := s.store.Get(ctx, channelID)
	if err != nil {
		return true, asimov.NewError(asimov.ErrUnexpectedError, "resume lookup failed: "+err.Error())
	}
	if !found {
		return false, nil
	}

	token, ok := bearerToken(authHeader)
	if !ok || token != rec.Channel.ServiceChannelToken {
		return true, asimov.NewError(asimov.ErrUnauthorized, "invalid or missing bearer token")
	}

	binding, ok := s.bindings[rec.Channel.CommandName]
	if !ok {
		s.logger.ErrorContext(ctx, "resume: no binding for stored command",
			slog.String("command", rec.Channel.CommandName), slog.String("service_channel_id", channelID))
		return true, asimov.NewError(asimov.ErrUnexpectedError, "no handler registered for command "+rec.Channel.CommandName)
	}

	channel := rec.Channel
	sendFunc := func(ctx context.Context, msg asimov.Message) error {
		return s.sender.Post(ctx, channel.ClientChannelURL, HeaderServiceChannelID, channel.ServiceChannelID, channel.ClientChannelToken, msg)
	}

	svcCtx := asvc.Restore(sendFunc, binding.Definition, channel, rec.State, s.profileDefs, s.contextOpts...)
	if err := svcCtx.HandleIncoming(ctx, env.Message); err != nil {
		return true, asimov.NewError(asimov.ErrInvalidRequest, err.Error()).WithDetails(detailsOf(err))
	}

	if err := s.store.Delete(ctx, channelID); err != nil {
		s.logger.ErrorContext(ctx, "resume: failed to clear suspended record",
			slog.String("service_channel_id", channelID), slog.Any("error", err))
	}
	s.manager.Add(svcCtx)
	s.runner.Run(ctx, svcCtx, binding.Handler)
	s.logger.InfoContext(ctx, "resumed suspended context", slog.String("service_channel_id", channelID))

	return true, nil
}

// detailsOf extracts the Details map an *asimov.Error carries, if err
// wraps one, so a transport-layer wrapper can forward it onto the wire
// instead of constructing a detail-less error.
func detailsOf(err error) map[string]any {
	var asimovErr *asimov.Error
	if errors.As(err, &asimovErr) {
		return asimovErr.Details
	}
	return nil
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}

// supportedProtocolVersions is the wire-facing constraint
// checkProtocolVersion enforces (spec §6/§8 Scenario 6): "1.x" only.
var supportedProtocolVersions = []string{"1.x"}

// checkProtocolVersion enforces spec §6's "must satisfy 1.x" using
// golang.org/x/mod/semver, which requires the "v" prefix semver.org
// itself does not.
func checkProtocolVersion(header string) error {
	details := map[string]any{"requestedVersion": header, "supportedVersions": supportedProtocolVersions}
	if header == "" {
		return asimov.NewError(asimov.ErrVersionNotSupported, "missing protocol version header").WithDetails(details)
	}
	v := "v" + header
	if !semver.IsValid(v) {
		return asimov.NewError(asimov.ErrVersionNotSupported, "malformed protocol version: "+header).WithDetails(details)
	}
	if semver.Major(v) != "v1" {
		return asimov.NewError(asimov.ErrVersionNotSupported, "unsupported protocol version: "+header).WithDetails(details)
	}
	return nil
}
