package log

import "testing"

func TestRecoverPanicRunsCleanup(t *testing.T) {
	Setup("", false)
	if !Initialized() {
		t.Fatal("Setup did not initialize the logger")
	}

	cleaned := false
	func() {
		defer RecoverPanic("worker", func() { cleaned = true })
		panic("boom")
	}()
	if !cleaned {
		t.Error("cleanup was not called")
	}
}

func TestRecoverPanicNoPanic(t *testing.T) {
	cleaned := false
	func() {
		defer RecoverPanic("worker", func() { cleaned = true })
	}()
	if cleaned {
		t.Error("cleanup called without a panic")
	}
}
