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

// Package runner implements the Execution Runner: it drives a
// command handler function against a Service Context and, on
// termination, applies the finish/store/dispose disposition table
// (spec §4.H), grounded on the teacher's
// internal/taskexec/local_manager.go handleExecution/cleanupExecution.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asimov-proto/asimov-go/asimov"
	"github.com/asimov-proto/asimov-go/asvc"
	"github.com/asimov-proto/asimov-go/asvc/ctxstore"
)

// HandlerFunc is command-author business logic: it drives svcCtx
// through its upcalls and returns when the invocation is done, either
// because it called Finish/Suspend itself or because it is simply
// returning control (in which case the runner calls Finish for it).
type HandlerFunc func(ctx context.Context, svcCtx *asvc.Context) error

// PanicHandlerFn is invoked with the recovered value when a handler
// panics, mirroring the teacher's taskexec.PanicHandlerFn. A nil
// PanicHandlerFn causes the runner to re-panic after cleanup.
type PanicHandlerFn func(recovered any)

// Runner drives handler invocations against a Manager and Store, per
// spec §4.H. It owns no goroutine pool of its own: Run starts exactly
// one goroutine per invocation, following the teacher's "one task per
// context" scheduling model (spec §5).
type Runner struct {
	manager      *asvc.Manager
	store        ctxstore.Store
	panicHandler PanicHandlerFn
	logger       *slog.Logger
}

// Option configures a Runner at construction time, mirroring the
// teacher's RequestHandlerOption/WithLogger convention.
type Option func(*Runner)

// WithLogger attaches a logger. If not provided, defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New constructs a Runner. store may be nil if the handler never
// calls Suspend (a runner that suspends against a nil store fails
// suspension with an error).
func New(manager *asvc.Manager, store ctxstore.Store, panicHandler PanicHandlerFn, opts ...Option) *Runner {
	r := &Runner{manager: manager, store: store, panicHandler: panicHandler, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run launches handler against svcCtx in a detached goroutine and
// returns immediately; svcCtx is already registered with the Manager
// by the caller (typically the transport layer, right after Invoke
// creates it) before Run is called. The context passed to handler is
// detached from ctx's cancellation so an in-flight invocation survives
// the originating HTTP request, matching the teacher's
// context.WithoutCancel(ctx) use in handleExecution.
func (r *Runner) Run(ctx context.Context, svcCtx *asvc.Context, handler HandlerFunc) {
	detached := context.WithoutCancel(ctx)
	go r.handleExecution(detached, svcCtx, handler)
}

func (r *Runner) handleExecution(ctx context.Context, svcCtx *asvc.Context, handler HandlerFunc) {
	logger := r.logger.With(slog.String("service_channel_id", svcCtx.Channel().ServiceChannelID))
	var err error
	defer func() {
		r.cleanup(ctx, svcCtx)
		if err != nil {
			// The handler's error is reported only after disposal.
			svcCtx.NotifyError(err)
		}
	}()

	err = r.runHandler(ctx, svcCtx, handler)
	if err != nil {
		logger.ErrorContext(ctx, "handler returned an error", slog.Any("error", err))
		r.disposeOnError(ctx, svcCtx, err)
		return
	}
	logger.DebugContext(ctx, "handler completed", slog.String("status", string(svcCtx.Status())))
	r.disposeOnCompletion(ctx, svcCtx)
}

// runHandler invokes handler, converting a panic into an error so the
// disposition table's step 3 applies uniformly to panics, returned
// errors, and (in a language with them) exceptions alike.
func (r *Runner) runHandler(ctx context.Context, svcCtx *asvc.Context, handler HandlerFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.panicHandler != nil {
				r.panicHandler(rec)
				err = fmt.Errorf("handler panic: %v", rec)
				return
			}
			panic(rec)
		}
	}()
	return handler(ctx, svcCtx)
}

// disposeOnCompletion implements spec §4.H step 2.
func (r *Runner) disposeOnCompletion(ctx context.Context, svcCtx *asvc.Context) {
	if svcCtx.Status() == asvc.StatusSuspended {
		r.persist(ctx, svcCtx)
		return
	}
	if svcCtx.Status() != asvc.StatusFinished {
		_ = svcCtx.Finish(ctx)
	}
	r.deleteFromStore(ctx, svcCtx)
}

// disposeOnError implements spec §4.H step 3 up to deletion from the
// store; handleExecution disposes the context and then emits onError.
func (r *Runner) disposeOnError(ctx context.Context, svcCtx *asvc.Context, handlerErr error) {
	name, message := asimov.ErrorName(handlerErr), handlerErr.Error()
	svcCtx.ReturnError(name, message, nil)
	if svcCtx.Status() != asvc.StatusFinished {
		_ = svcCtx.Finish(ctx)
	}
	r.deleteFromStore(ctx, svcCtx)
}

func (r *Runner) persist(ctx context.Context, svcCtx *asvc.Context) {
	if r.store == nil {
		svcCtx.NotifyError(fmt.Errorf("suspend requested but no context store is configured"))
		return
	}
	rec := ctxstore.Record{Channel: svcCtx.Channel(), State: svcCtx.Serialize()}
	if err := r.store.Store(ctx, svcCtx.Key(), rec); err != nil {
		r.logger.ErrorContext(ctx, "persist suspended context failed", slog.String("key", svcCtx.Key()), slog.Any("error", err))
		svcCtx.NotifyError(fmt.Errorf("persist suspended context: %w", err))
	}
}

func (r *Runner) deleteFromStore(ctx context.Context, svcCtx *asvc.Context) {
	if r.store == nil {
		return
	}
	if err := r.store.Delete(ctx, svcCtx.Key()); err != nil {
		r.logger.ErrorContext(ctx, "delete finished context failed", slog.String("key", svcCtx.Key()), slog.Any("error", err))
		svcCtx.NotifyError(fmt.Errorf("delete finished context from store: %w", err))
	}
}

func (r *Runner) cleanup(_ context.Context, svcCtx *asvc.Context) {
	r.manager.Remove(svcCtx.Key())
	svcCtx.Dispose()
}
