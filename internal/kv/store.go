// Package kv define el store durable clave-valor sobre el que persisten los
// repositorios, y sus backends (memoria, Redis y Postgres).
//
// El contrato es mínimo: sin transacciones ni índices secundarios. Cada
// colección lógica se guarda como un único blob de texto bajo una clave fija.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indica que la clave no existe.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable envuelve fallos del backend (red, disco, servidor).
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Store es el único primitivo de persistencia disponible.
type Store interface {
	// Get devuelve ErrNotFound si la clave no existe.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Remove no falla si la clave no existe.
	Remove(ctx context.Context, key string) error
}
