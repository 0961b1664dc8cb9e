//go:build linux

package server

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/grailbio/base/errors"
)

// daemonizedEnvVar marks a re-exec'd child as already detached, so it runs
// the real server instead of forking again.
const daemonizedEnvVar = "MXG_DAEMONIZED"

// Daemonize implements spec.md §4.8's daemonisation step: session detach,
// redirection of standard streams to cfg.LogFile, and an optional
// exclusive-create PID file. A raw fork(2) is unsafe to call directly from
// a multithreaded Go process — only the calling OS thread survives into
// the child, while the Go runtime's other threads (GC workers, sysmon)
// vanish without notice — so this re-executes the same binary with
// SysProcAttr.Setsid set, which is the safe equivalent: a fresh process,
// its own session, no controlling terminal. The parent writes the child's
// PID file and exits; the child detects daemonizedEnvVar and proceeds to
// run the server directly.
//
// Daemonize returns (true, nil) when called in the parent, meaning the
// caller should exit immediately; (false, nil) in the child, meaning the
// caller should continue starting the acceptor.
func Daemonize(cfg Config) (isParent bool, err error) {
	if os.Getenv(daemonizedEnvVar) == "1" {
		if err := redirectStandardStreams(cfg.LogFile); err != nil {
			return false, err
		}
		return false, nil
	}

	if cfg.PIDFile != "" {
		if _, statErr := os.Stat(cfg.PIDFile); statErr == nil {
			return true, errors.E(errors.Invalid, "PID file already exists", cfg.PIDFile)
		}
	}

	exe, err := os.Executable()
	if err != nil {
		return true, errors.E(err, "resolving executable path for daemonisation")
	}

	child := exec.Command(exe, os.Args[1:]...)
	child.Env = append(os.Environ(), daemonizedEnvVar+"=1")
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return true, errors.E(err, "opening /dev/null")
	}
	defer devNull.Close()
	child.Stdin = devNull
	child.Stdout = devNull
	child.Stderr = devNull

	if err := child.Start(); err != nil {
		return true, errors.E(err, "starting daemonised child")
	}

	if cfg.PIDFile != "" {
		f, err := os.OpenFile(cfg.PIDFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return true, errors.E(err, "creating PID file", cfg.PIDFile)
		}
		defer f.Close()
		if _, err := fmt.Fprintln(f, strconv.Itoa(child.Process.Pid)); err != nil {
			return true, errors.E(err, "writing PID file", cfg.PIDFile)
		}
	}
	return true, nil
}

func redirectStandardStreams(logFile string) error {
	if logFile == "" {
		return nil
	}
	out, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return errors.E(err, "opening log file", logFile)
	}
	defer out.Close()
	if err := syscall.Dup2(int(out.Fd()), int(os.Stdout.Fd())); err != nil {
		return errors.E(err, "redirecting stdout")
	}
	if err := syscall.Dup2(int(out.Fd()), int(os.Stderr.Fd())); err != nil {
		return errors.E(err, "redirecting stderr")
	}
	return nil
}
