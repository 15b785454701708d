package domain

import (
	"errors"
	"strings"
	"time"
)

// DefaultNamespace is the checkpoint namespace used when none is configured.
const DefaultNamespace = "default"

// namespaceSeparators delimit key segments in the Redis and lock key layouts.
const namespaceSeparators = ":/"

// ValidateNamespace rejects empty namespaces and those containing a key separator.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return errors.New("namespace must not be empty")
	}
	if strings.ContainsAny(ns, namespaceSeparators) {
		return errors.New("namespace must not contain ':' or '/'")
	}
	return nil
}

// CheckpointKey addresses a checkpoint record.
type CheckpointKey struct {
	ThreadID  string `json:"thread_id"`
	Namespace string `json:"namespace"`
}

// String renders the key as "namespace/thread".
func (k CheckpointKey) String() string {
	return k.Namespace + "/" + k.ThreadID
}

// Checkpoint is the durable snapshot of a thread's transcript at the end of its
// most recent completed execution.
type Checkpoint struct {
	ThreadID  string    `json:"thread_id" msgpack:"thread_id"`
	Namespace string    `json:"namespace" msgpack:"namespace"`
	Messages  []Message `json:"messages" msgpack:"messages"`

	// Version starts at 1 and is incremented by every successful write.
	// Writers pass the version they read to detect concurrent overwrites.
	Version int64 `json:"version" msgpack:"version"`

	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}

// Key returns the address of the checkpoint.
func (c *Checkpoint) Key() CheckpointKey {
	return CheckpointKey{ThreadID: c.ThreadID, Namespace: c.Namespace}
}
