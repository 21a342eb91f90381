package search

import (
	"encoding/json"
	"fmt"

	"github.com/ahrav/specter/internal/domain/session"
)

const downloadPrefix = "/v1/download/"

type identityMessage struct {
	SearchID string `json:"search_id"`
}

type lineMessage struct {
	Result  string `json:"result"`
	Checked int    `json:"checked"`
	Total   int    `json:"total,omitempty"`
}

type errorMessage struct {
	Error string `json:"error"`
}

// doneMessage always carries download, null when there is no artifact.
type doneMessage struct {
	Message  string  `json:"message"`
	Status   string  `json:"status"`
	Download *string `json:"download"`
	Count    int     `json:"count"`
	Error    string  `json:"error,omitempty"`
}

// encodeEvent renders ev as the JSON payload of one SSE data frame.
func encodeEvent(ev session.Event) ([]byte, error) {
	var msg any
	switch e := ev.(type) {
	case session.IdentityEvent:
		msg = identityMessage{SearchID: e.SessionID}
	case session.LineEvent:
		msg = lineMessage{Result: e.Text, Checked: e.Checked, Total: e.Total}
	case session.ErrorEvent:
		msg = errorMessage{Error: e.Reason}
	case session.DoneEvent:
		done := doneMessage{Message: "done", Status: e.Status.WireName(), Count: e.Count, Error: e.Reason}
		if e.Artifact != "" {
			link := downloadPrefix + e.Artifact
			done.Download = &link
		}
		msg = done
	default:
		return nil, fmt.Errorf("unknown event type %T", ev)
	}

	return json.Marshal(msg)
}
