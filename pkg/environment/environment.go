// Package environment abstracts how the engine obtains resolved secrets.
// Credentials are always supplied already resolved by an external vault
// collaborator; the engine only ever sees a name-to-value lookup.
package environment

import (
	"context"
	"os"
)

// Provider resolves a named secret to its value. An empty string means the
// secret is absent.
type Provider interface {
	Get(ctx context.Context, name string) string
}

// OSEnv resolves secrets from the process environment.
type OSEnv struct{}

func NewOSEnv() *OSEnv {
	return &OSEnv{}
}

func (e *OSEnv) Get(_ context.Context, name string) string {
	return os.Getenv(name)
}

// StaticEnv resolves secrets from a fixed map. Used by tests and by callers
// that pre-resolve credentials out of band.
type StaticEnv struct {
	values map[string]string
}

func NewStaticEnv(values map[string]string) *StaticEnv {
	return &StaticEnv{values: values}
}

func (e *StaticEnv) Get(_ context.Context, name string) string {
	return e.values[name]
}
