package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"carevrp/internal/vrp"
)

// problemNS prefixes the type of every problem this service returns.
const problemNS = "urn:carevrp:problem:"

// Problem is an RFC 7807 body. Field and Reason extend it for instance
// validation failures and name the offending document path.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Field    string `json:"field,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeBody(w, status, "application/json", v)
}

func writeBody(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// problemType maps a title such as "Invalid instance" to
// urn:carevrp:problem:invalid-instance.
func problemType(title string) string {
	return problemNS + strings.Join(strings.Fields(strings.ToLower(title)), "-")
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeBody(w, status, "application/problem+json", Problem{
		Type:     problemType(title),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeInvalid reports a rejected instance. Size-limit failures get their
// own type so clients can tell them from malformed documents.
func writeInvalid(w http.ResponseWriter, r *http.Request, err error) {
	p := Problem{Title: "Invalid instance", Status: http.StatusBadRequest, Detail: err.Error(), Instance: r.URL.Path}
	var ve *vrp.ValidationError
	if errors.As(err, &ve) {
		p.Field, p.Reason = ve.Field, ve.Reason
		if ve.TooLarge {
			p.Title = "Instance too large"
		}
	}
	p.Type = problemType(p.Title)
	writeBody(w, p.Status, "application/problem+json", p)
}
