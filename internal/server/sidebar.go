package server

import (
	"html/template"
	"net/http"
)

// sidebarTemplate is the ticket sidebar. It offers the detect button, an
// editable textarea holding the rendered entities, and the redact button.
var sidebarTemplate = template.Must(template.New("sidebar").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>piiscrub</title>
<style>
body { font-family: sans-serif; margin: 0.75rem; }
textarea { width: 100%; min-height: 6rem; }
button { margin-top: 0.5rem; }
#status { margin-top: 0.5rem; color: #555; }
</style>
</head>
<body>
<p>Ticket: <strong id="ticket">{{if .HasTicket}}{{.TicketID}}{{else}}none{{end}}</strong></p>
<button id="detect" type="button">Detect PII</button>
<textarea id="entities" aria-label="Entities to redact">{{.Rendered}}</textarea>
<button id="redact" type="button">Redact</button>
<div id="status">{{if .Running}}A workflow is running.{{end}}</div>
<script>
const status = document.getElementById("status");
const entities = document.getElementById("entities");
async function call(path, body) {
  status.textContent = "Working...";
  const res = await fetch(path, {method: "POST", headers: {"Content-Type": "application/json"}, body: JSON.stringify(body)});
  const data = await res.json();
  if (!res.ok) {
    status.textContent = data.error || ("Failed: " + res.status);
    return null;
  }
  return data;
}
document.getElementById("detect").addEventListener("click", async () => {
  const data = await call("detect", {});
  if (data) {
    entities.value = data.rendered || "";
    status.textContent = (data.entities || []).length + " entities found";
  }
});
document.getElementById("redact").addEventListener("click", async () => {
  const data = await call("redact", {entities: entities.value});
  if (data) {
    const done = (data.results || []).filter(r => r.outcome === "redacted").length;
    status.textContent = "Redaction done: " + done + " redacted";
  }
});
</script>
</body>
</html>
`))

type sidebarData struct {
	TicketID  int64
	HasTicket bool
	Rendered  string
	Running   bool
}

// handleSidebar renders the ticket sidebar.
func (s *Server) handleSidebar(w http.ResponseWriter, _ *http.Request) {
	data := sidebarData{Running: s.runner.Running()}
	data.TicketID, data.HasTicket = s.store.Get()
	if last := s.currentReport(); last != nil {
		data.Rendered = last.Rendered
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := sidebarTemplate.Execute(w, data); err != nil {
		s.logger.Error("render sidebar", "error", err)
	}
}
