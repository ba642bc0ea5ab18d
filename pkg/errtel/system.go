// system.go captures process and host context at ingestion time.

package errtel

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/user"
	"runtime"
	"strconv"
)

// CaptureSystemContext captures host and process facts for a record.
// Every field is collected independently; the returned error joins the
// failures of fields that could not be read, and the context is still
// populated with everything that succeeded.
func CaptureSystemContext(appVersion string) (*SystemContext, error) {
	sc := &SystemContext{
		OSVersion:      runtime.GOOS + "/" + runtime.GOARCH,
		RuntimeVersion: runtime.Version(),
		ProcessID:      os.Getpid(),
		GoroutineID:    currentGoroutineID(),
		AppVersion:     appVersion,
	}

	var errs []error
	if host, err := os.Hostname(); err != nil {
		errs = append(errs, fmt.Errorf("hostname: %w", err))
	} else {
		sc.HostName = host
	}
	if wd, err := os.Getwd(); err != nil {
		errs = append(errs, fmt.Errorf("working directory: %w", err))
	} else {
		sc.WorkingDir = wd
	}
	if u, err := user.Current(); err != nil {
		errs = append(errs, fmt.Errorf("user: %w", err))
	} else {
		sc.User = u.Username
	}
	return sc, errors.Join(errs...)
}

// currentGoroutineID parses the id from the "goroutine N [...]" stack header.
// It identifies the reporting goroutine the way a thread id would.
func currentGoroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
