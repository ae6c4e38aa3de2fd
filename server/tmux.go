package server

import (
	"net/http"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
)

// tmuxSession is the dev-console session name managed by the three thin
// endpoints.
const tmuxSession = "tes-dev"

// runTmux executes one tmux invocation and returns combined output.
// exec.Command never passes through a shell, so the args need no quoting;
// shellquote only renders the logged command line in copy-pasteable form.
func (s *TESServer) runTmux(args ...string) (string, int, error) {
	cmdline := append([]string{"tmux"}, args...)
	s.logger.Debugw("Running tmux", "command", shellquote.Join(cmdline...))

	cmd := exec.Command(cmdline[0], cmdline[1:]...)
	out, err := cmd.CombinedOutput()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		exitCode = -1
	}
	return strings.TrimSpace(string(out)), exitCode, err
}

// handleTmuxStatus reports whether the dev session exists.
func (s *TESServer) handleTmuxStatus(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()

	out, code, err := s.runTmux("has-session", "-t", tmuxSession)
	running := err == nil && code == 0

	sessions := ""
	if listOut, listCode, listErr := s.runTmux("list-sessions", "-F", "#{session_name}"); listErr == nil && listCode == 0 {
		sessions = listOut
	}

	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"session":  tmuxSession,
		"running":  running,
		"sessions": strings.FieldsFunc(sessions, func(r rune) bool { return r == '\n' }),
		"detail":   out,
	})
}

// handleTmuxStart creates the session if absent.
func (s *TESServer) handleTmuxStart(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()

	if _, code, err := s.runTmux("has-session", "-t", tmuxSession); err == nil && code == 0 {
		s.writeJSON(w, http.StatusOK, start, map[string]any{"session": tmuxSession, "started": false, "reason": "already running"})
		return
	}

	out, code, err := s.runTmux("new-session", "-d", "-s", tmuxSession)
	if err != nil && code != 0 {
		s.logEvent("tmux", "start_failed", "exit_code", code, "output", out)
		s.writeError(w, http.StatusInternalServerError, start, "tmux start failed: "+out)
		return
	}
	s.logEvent("tmux", "session_started", "session", tmuxSession)
	s.writeJSON(w, http.StatusOK, start, map[string]any{"session": tmuxSession, "started": true})
}

// handleTmuxStop kills the session.
func (s *TESServer) handleTmuxStop(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()

	out, code, err := s.runTmux("kill-session", "-t", tmuxSession)
	if err != nil && code != 0 {
		s.writeJSON(w, http.StatusOK, start, map[string]any{"session": tmuxSession, "stopped": false, "reason": out})
		return
	}
	s.logEvent("tmux", "session_stopped", "session", tmuxSession)
	s.writeJSON(w, http.StatusOK, start, map[string]any{"session": tmuxSession, "stopped": true})
}
