// Package server fans chat messages out to every eligible session.
package server

import (
	log "github.com/sirupsen/logrus"
)

// Broadcast delivers text to every registered session with receive
// permission other than the sender. Recipients are snapshotted under the
// registry lock and delivery happens outside it, so one stalled peer cannot
// stall registration or other handlers. Delivery is best effort: a failed
// write to one recipient does not abort the others and never fails the
// sender. Exactly one transaction record is written per call, recipients or
// not.
func (s *Server) Broadcast(sender *Session, text string) {
	recipients := s.registry.Receivers(sender.ID)
	for _, recipient := range recipients {
		if err := recipient.Send(text); err != nil {
			if !isExpectedCloseError(err) {
				log.WithFields(log.Fields{
					"from": sender.ID,
					"to":   recipient.ID,
					"err":  err,
				}).Warn("Broadcast delivery failed")
			}
		}
	}

	s.logbook.Transaction(sender.ID, "BROADCAST: "+text)
	log.WithFields(log.Fields{
		"from":       sender.ID,
		"recipients": len(recipients),
	}).Debug("Broadcast delivered")
}
