// Package process provides the reference process-discovery helper named by
// spec.md §6: given a control port and optional pid-file path, return the
// process id of the router process, or report that none could be found.
//
// This is explicitly a reference implementation, not a mandated one. The
// controller calls it through an unexported package variable of the same
// function type; no exported option replaces it, so using a different
// discovery strategy means changing the controller package.
package process

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// FindPid attempts, in order: PidFile, "pidof tor", "netstat -npl | grep
// 127.0.0.1:<port>", "ps -o pid -C tor". pidof and ps results are
// discarded when they report more than one match, since only netstat can
// disambiguate by control port. Returns ("", false) if no step yields an
// unambiguous numeric pid.
func FindPid(controlPort int, pidFilePath string) (string, bool) {
	if pidFilePath != "" {
		if pid, ok := fromPidFile(pidFilePath); ok {
			return pid, true
		}
	}
	if pid, ok := fromPidof(); ok {
		return pid, true
	}
	if pid, ok := fromNetstat(controlPort); ok {
		return pid, true
	}
	if pid, ok := fromPs(); ok {
		return pid, true
	}
	return "", false
}

func fromPidFile(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", false
	}
	entry := strings.TrimSpace(scanner.Text())
	return asPid(entry)
}

func fromPidof() (string, bool) {
	out, err := exec.Command("pidof", "tor").Output()
	if err != nil {
		return "", false
	}
	lines := nonEmptyLines(out)
	if len(lines) != 1 {
		return "", false
	}
	fields := strings.Fields(lines[0])
	if len(fields) != 1 {
		return "", false
	}
	return asPid(fields[0])
}

func fromNetstat(controlPort int) (string, bool) {
	// "netstat -npl | grep 127.0.0.1:<port>" as a single shell pipeline,
	// matching the original's invocation.
	out, err := exec.Command("sh", "-c", fmt.Sprintf("netstat -npl | grep 127.0.0.1:%d", controlPort)).Output()
	if err != nil {
		return "", false
	}
	lines := nonEmptyLines(out)
	if len(lines) != 1 {
		return "", false
	}
	fields := strings.Fields(lines[0])
	if len(fields) < 7 {
		return "", false
	}
	// process field looks like "7184/tor".
	proc := fields[6]
	idx := strings.Index(proc, "/")
	if idx < 0 {
		return "", false
	}
	return asPid(proc[:idx])
}

func fromPs() (string, bool) {
	out, err := exec.Command("ps", "-o", "pid", "-C", "tor").Output()
	if err != nil {
		return "", false
	}
	lines := nonEmptyLines(out)
	// Header line plus exactly one pid line.
	if len(lines) != 2 {
		return "", false
	}
	return asPid(strings.TrimSpace(lines[1]))
}

func asPid(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	if _, err := strconv.Atoi(s); err != nil {
		return "", false
	}
	return s, true
}

func nonEmptyLines(out []byte) []string {
	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
