// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"errors"
	"testing"
	"time"
)

// DefaultWait bounds how long channel helpers block before failing.
const DefaultWait = 2 * time.Second

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertErrorIs fails the test unless errors.Is(err, target).
func AssertErrorIs(t testing.TB, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

// Receive returns the next value from ch, failing the test if nothing
// arrives within wait or the channel is closed.
func Receive[T any](t testing.TB, ch <-chan T, wait time.Duration) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return v
	case <-time.After(wait):
		t.Fatalf("nothing received within %v", wait)
	}
	var zero T
	return zero
}

// AssertNoReceive fails the test if ch yields a value within wait. A closed
// channel counts as no value.
func AssertNoReceive[T any](t testing.TB, ch <-chan T, wait time.Duration) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value received: %+v", v)
		}
	case <-time.After(wait):
	}
}

// AssertClosed fails the test unless ch is closed within wait. Buffered
// values are discarded.
func AssertClosed[T any](t testing.TB, ch <-chan T, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("channel not closed within %v", wait)
		}
	}
}
