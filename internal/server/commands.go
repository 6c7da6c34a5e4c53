// Package server parses @-prefixed protocol lines into commands and routes
// them to handlers, enforcing permissions and the admin binding. Malformed
// commands report a usage error to the sender and never mutate state.
package server

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// dispatchCommand handles one @-prefixed line. It reports whether the
// session should be torn down afterwards.
func (s *Server) dispatchCommand(sess *Session, line string) (exit bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "@login_as_admin":
		s.loginAsAdmin(sess, parts[1:])
	case "@exit":
		return true
	case "@broadcast":
		if sess.Permissions.Broadcast() {
			s.Broadcast(sess, strings.Join(parts[1:], " "))
		} else {
			sess.SendError("You don't have permission to broadcast messages.")
		}
	case "@server-command":
		if s.registry.IsAdmin(sess) {
			s.serverCommand(sess, parts[1:])
		} else {
			sess.SendError("Only admin can execute server commands.")
			log.WithField("session", sess.ID).Info("Rejected server command from non-admin")
		}
	default:
		sess.SendError("Unknown command.")
	}
	return false
}

// loginAsAdmin checks credentials against the configured admin identity and
// on success binds the session as the current admin with all permissions.
func (s *Server) loginAsAdmin(sess *Session, args []string) {
	if len(args) != 2 {
		sess.SendError("Invalid login command. Use: @login_as_admin <username> <password>")
		return
	}

	username, password := args[0], args[1]
	if !s.cfg.checkAdminCredentials(username, password) {
		sess.SendError("Invalid credentials.")
		log.WithFields(log.Fields{
			"session": sess.ID,
			"user":    username,
		}).Info("Failed admin login attempt")
		return
	}

	s.registry.BindAdmin(sess.ID)
	sess.Permissions.Elevate()
	_ = sess.Send("Login successful. You are now the admin.")
	log.WithField("session", sess.ID).Info("Admin logged in")
}

// serverCommand dispatches the admin-only surface. The caller has already
// verified the admin binding.
func (s *Server) serverCommand(sess *Session, args []string) {
	if len(args) == 0 {
		sess.SendError("Unknown server command.")
		return
	}

	switch args[0] {
	case "userls":
		_ = sess.Send("Connected users:")
		for _, name := range s.registry.Names() {
			_ = sess.Send("- " + name)
		}
	case "user":
		s.userCommand(sess, args[1:])
	case "permissions":
		if len(args) < 2 {
			sess.SendError("Invalid permissions command.")
			return
		}
		s.showPermissions(sess, args[1])
	case "update_permissions":
		if len(args) < 3 {
			sess.SendError("Invalid update_permissions command.")
			return
		}
		s.updatePermissions(sess, args[1], args[2:])
	case "server":
		if len(args) < 2 {
			sess.SendError("Invalid server command.")
			return
		}
		switch strings.ToLower(args[1]) {
		case "stats":
			s.showStats(sess)
		case "shutdown":
			// Shutdown tears this session down too; run it off the handler
			// goroutine so the WaitGroup does not wait on itself.
			go s.Shutdown()
		default:
			sess.SendError("Invalid server action.")
		}
	default:
		sess.SendError("Unknown server command.")
	}
}

func (s *Server) userCommand(sess *Session, args []string) {
	if len(args) < 2 {
		sess.SendError("Invalid user command.")
		return
	}

	action, username := strings.ToLower(args[0]), args[1]
	switch action {
	case "ban":
		s.banIdentity(username, "Banned by admin")
		_ = sess.Send(fmt.Sprintf("User %s has been banned.", username))
	case "unban":
		found, err := s.bans.Unban(username)
		if err != nil {
			log.WithError(err).WithField("user", username).Error("Failed to update ban list")
			sess.SendError("Could not update the banned list.")
			return
		}
		if found {
			_ = sess.Send(fmt.Sprintf("User %s has been unbanned.", username))
		} else {
			_ = sess.Send(fmt.Sprintf("User %s was not found in the banned list.", username))
		}
	default:
		sess.SendError("Invalid user action.")
	}
}

func (s *Server) showPermissions(sess *Session, username string) {
	target, ok := s.registry.FindByName(username)
	if !ok {
		sess.SendError(fmt.Sprintf("User %s not found.", username))
		return
	}

	_ = sess.Send(fmt.Sprintf("Permissions for user %s:", username))
	for _, flag := range target.Permissions.List() {
		_ = sess.Send(fmt.Sprintf("%s: %t", flag.Name, flag.Value))
	}
}

// updatePermissions applies flag=value pairs to the named session. Unknown
// flag names are silently ignored, never created.
func (s *Server) updatePermissions(sess *Session, username string, updates []string) {
	target, ok := s.registry.FindByName(username)
	if !ok {
		sess.SendError(fmt.Sprintf("User %s not found.", username))
		return
	}

	for _, update := range updates {
		name, value, ok := strings.Cut(update, "=")
		if !ok || name == "" || value == "" {
			continue
		}
		target.Permissions.Set(name, strings.ToLower(value) == "true")
	}

	_ = sess.Send(fmt.Sprintf("Updated permissions for user %s:", username))
	for _, flag := range target.Permissions.List() {
		_ = sess.Send(fmt.Sprintf("%s: %t", flag.Name, flag.Value))
	}
}

func (s *Server) showStats(sess *Session) {
	_ = sess.Send("Server Statistics:")
	_ = sess.Send(fmt.Sprintf("Total connected users: %d", s.registry.Count()))
	_ = sess.Send(fmt.Sprintf("Total messages received: %d", s.registry.MessageTotal()))
}
