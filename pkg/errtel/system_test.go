package errtel

import (
	"os"
	"runtime"
	"testing"
)

func TestCaptureSystemContext_PopulatesFields(t *testing.T) {
	sc, err := CaptureSystemContext("1.4.2")
	if sc == nil {
		t.Fatal("CaptureSystemContext returned nil")
	}
	// Partial failures (e.g. no passwd entry in a container) still return context.
	if err != nil {
		t.Logf("partial capture: %v", err)
	}

	if sc.ProcessID != os.Getpid() {
		t.Errorf("ProcessID = %d, want %d", sc.ProcessID, os.Getpid())
	}
	if sc.RuntimeVersion != runtime.Version() {
		t.Errorf("RuntimeVersion = %q, want %q", sc.RuntimeVersion, runtime.Version())
	}
	if sc.OSVersion != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("OSVersion = %q", sc.OSVersion)
	}
	if sc.AppVersion != "1.4.2" {
		t.Errorf("AppVersion = %q, want 1.4.2", sc.AppVersion)
	}
	if sc.GoroutineID == 0 {
		t.Error("GoroutineID should be parsed from the stack header")
	}
}

func TestCurrentGoroutineID_DiffersAcrossGoroutines(t *testing.T) {
	mine := currentGoroutineID()
	other := make(chan uint64)
	go func() { other <- currentGoroutineID() }()

	if theirs := <-other; theirs == mine || theirs == 0 {
		t.Errorf("goroutine ids: mine=%d theirs=%d", mine, theirs)
	}
}
