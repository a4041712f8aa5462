package notify

import (
	"bytes"
	"text/template"
)

var supervisorAlert = template.Must(template.New("alert").Parse(`New Help Request

Request: {{.RequestID}}
Question: {{.Question}}
Caller: {{.CallerContact}}
{{- if .Context}}
Context: {{.Context}}
{{- end}}

The assistant needs your help to answer this question.{{if .DashboardURL}} Respond at {{.DashboardURL}}{{else}} Please respond through the supervisor dashboard.{{end}}`))

var callerFollowUp = template.Must(template.New("followup").Parse(`Hi! Thanks for your patience. Here's the answer to your question:

Question: {{.Question}}

Answer: {{.Answer}}

Is there anything else I can help you with? Feel free to call {{.Business}} back at any time!`))

// Alert is the data behind a supervisor alert.
type Alert struct {
	RequestID     string
	Question      string
	CallerContact string
	Context       string
	DashboardURL  string
}

// FollowUp is the data behind a caller follow-up.
type FollowUp struct {
	Business string
	Question string
	Answer   string
}

// SupervisorAlert renders the message sent to a supervisor for a new help request.
func SupervisorAlert(a Alert) string { return render(supervisorAlert, a) }

// CallerFollowUp renders the message sent back to a caller once a supervisor answered.
func CallerFollowUp(f FollowUp) string {
	if f.Business == "" {
		f.Business = "us"
	}
	return render(callerFollowUp, f)
}

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	// templates are fixed and data is plain strings, so Execute cannot fail
	_ = t.Execute(&buf, data)
	return buf.String()
}
