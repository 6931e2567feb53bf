package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStoreLookupMiss(t *testing.T) {
	s := NewMemoryStore()
	_, ok := s.Lookup(context.Background(), "missing")
	assert.False(t, ok)
}

func TestMemoryStoreStoreThenLookupHits(t *testing.T) {
	s := NewMemoryStore()
	s.Store(context.Background(), "k1", []byte("v1"), time.Minute)

	v, ok := s.Lookup(context.Background(), "k1")
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
}

func TestMemoryStoreExpiresAfterTTL(t *testing.T) {
	s := NewMemoryStore()
	s.Store(context.Background(), "k2", []byte("v2"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := s.Lookup(context.Background(), "k2")
	assert.False(t, ok)
}

func TestMemoryStoreOverwritesExistingKey(t *testing.T) {
	s := NewMemoryStore()
	s.Store(context.Background(), "k3", []byte("first"), time.Minute)
	s.Store(context.Background(), "k3", []byte("second"), time.Minute)

	v, ok := s.Lookup(context.Background(), "k3")
	assert.True(t, ok)
	assert.Equal(t, []byte("second"), v)
}
