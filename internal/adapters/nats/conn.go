package natsadapter

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	changedStream  = "FACILITIES"
	changedPrefix  = "facilities.changed."
	changedSubject = changedPrefix + ">"
)

// Connect opens a NATS connection that keeps reconnecting in the background.
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

// subjectFor builds the change subject for an import run. Tokens may not
// contain dots or wildcards.
func subjectFor(runID string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, runID)
	if token == "" {
		token = "manual"
	}
	return changedPrefix + token
}
