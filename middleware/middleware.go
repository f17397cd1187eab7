/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package middleware runs HTTP handlers as units of work.
package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tomoncle/transact"
	"github.com/tomoncle/transact/database"
)

// ErrServerStatus is the rollback cause when a handler answers with a 5xx
// status without calling Fail.
var ErrServerStatus = errors.New("middleware: handler responded with a server error")

type failure struct {
	err error
}

type failKey struct{}

// Fail marks the unit of work of r as failed. The handler's response is
// still sent; only the database work is rolled back.
func Fail(r *http.Request, err error) {
	if f, ok := r.Context().Value(failKey{}).(*failure); ok && err != nil {
		f.err = err
	}
}

type Option func(*config)

type config struct {
	name   func(r *http.Request) string
	logger database.Logger
}

// WithOperationName overrides how a request maps to an operation name.
func WithOperationName(fn func(r *http.Request) string) Option {
	return func(c *config) { c.name = fn }
}

func WithLogger(logger database.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// OperationName returns "METHOD /chi/route/{pattern}", or the request path
// when no chi route matched yet.
func OperationName(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return r.Method + " " + pattern
		}
	}
	return r.Method + " " + r.URL.Path
}

// UnitOfWork wraps every request in interceptor.Run. The response is
// buffered so that a failed save or commit can still turn into a 500.
// Mount it with chi's With or inside a Route group so the route pattern is
// known when the operation name is resolved.
func UnitOfWork(interceptor *transact.Interceptor, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{name: OperationName}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = database.GetLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := interceptor.Resolver().Resolve(cfg.name(r))
			buf := newBufferedWriter()
			var handlerErr error

			err := interceptor.Run(r.Context(), op, func(ctx context.Context) error {
				f := &failure{}
				next.ServeHTTP(buf, r.WithContext(context.WithValue(ctx, failKey{}, f)))
				switch {
				case f.err != nil:
					handlerErr = f.err
				case buf.status >= http.StatusInternalServerError:
					handlerErr = fmt.Errorf("%w: %d", ErrServerStatus, buf.status)
				}
				return handlerErr
			})

			if err != nil && err != handlerErr {
				cfg.logger.Error("Unit of work failed", "operation", op.Name, "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			buf.flush(w)
		})
	}
}

type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header)}
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) flush(w http.ResponseWriter) {
	dst := w.Header()
	for k, v := range b.header {
		dst[k] = v
	}
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(b.body.Bytes())
}
