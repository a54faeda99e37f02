package services

import (
	"github.com/google/uuid"
)

// UUIDGenerator generates random (version 4) UUIDs for request correlation.
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUID generator
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// Generate creates a unique identifier
func (g *UUIDGenerator) Generate() string {
	return uuid.NewString()
}
