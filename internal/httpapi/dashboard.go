package httpapi

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/storefrontops/layoutsvc/internal/layout"
)

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Layout Control Surface</title>
  <style>
    :root {
      --ink: #102223;
      --paper: #f8f4ea;
      --card: #fffdf9;
      --line: #d7cbb3;
      --accent: #1f9d88;
      --muted: #6f7d7d;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      font-family: "Space Grotesk", "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background: linear-gradient(140deg, #fff9ef 0%, #f1f8f7 45%, #fffdf9 100%);
      min-height: 100vh;
      padding: 20px;
    }
    .shell { max-width: 900px; margin: 0 auto; display: grid; gap: 14px; }
    .bar, .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 14px;
      padding: 16px;
    }
    h1 { margin: 0; font-size: 1.4rem; }
    .muted { color: var(--muted); font-size: 0.85rem; }
    select, button {
      font: inherit;
      padding: 6px 10px;
      border: 1px solid var(--line);
      border-radius: 8px;
      background: var(--paper);
    }
    table { width: 100%; border-collapse: collapse; }
    th, td { text-align: left; padding: 8px 6px; border-bottom: 1px solid var(--line); }
    .hidden-widget { color: var(--muted); text-decoration: line-through; }
    .kind-chip {
      display: inline-block;
      padding: 2px 8px;
      border-radius: 999px;
      background: var(--paper);
      border: 1px solid var(--line);
      font-size: 0.8rem;
    }
  </style>
</head>
<body>
  <div class="shell">
    <div class="bar">
      <h1>Market layout</h1>
      <p class="muted">Pick a target, paste a bearer token, and load the live slot.</p>
      <label>Target
        <select id="target">
          <option value="shared">shared</option>
          <option value="platform-A">platform-A</option>
          <option value="platform-B">platform-B</option>
        </select>
      </label>
      <label>Token <input id="token" type="password" size="40" /></label>
      <button id="load">Load</button>
      <span id="status" class="muted"></span>
    </div>
    <div class="card">
      <table>
        <thead><tr><th>#</th><th>Widget</th><th>Kind</th><th>Visible</th></tr></thead>
        <tbody id="rows"></tbody>
      </table>
    </div>
    <div class="card">
      <h1 style="font-size:1.05rem">Widget kinds</h1>
      <p class="muted">Registered catalog entries and their default slots.</p>
      {{range .Kinds}}<span class="kind-chip">{{.Icon}} {{.Label}}</span> {{end}}
    </div>
  </div>
  <script>
    const statusEl = document.getElementById("status");
    document.getElementById("load").addEventListener("click", async () => {
      const target = document.getElementById("target").value;
      const token = document.getElementById("token").value;
      statusEl.textContent = "loading…";
      try {
        const resp = await fetch("/v1/layouts/" + target, {
          headers: { "Authorization": "Bearer " + token },
        });
        const data = await resp.json();
        if (!resp.ok) {
          statusEl.textContent = data.message || resp.statusText;
          return;
        }
        const rows = document.getElementById("rows");
        rows.innerHTML = "";
        for (const w of data.widgets) {
          const tr = document.createElement("tr");
          if (!w.isVisible) tr.className = "hidden-widget";
          tr.innerHTML = "<td>" + w.order + "</td><td>" + w.name +
            "</td><td>" + w.kind + "</td><td>" + w.isVisible + "</td>";
          rows.appendChild(tr);
        }
        statusEl.textContent = "updated by " + (data.updatedBy || "n/a");
      } catch (err) {
        statusEl.textContent = String(err);
      }
    });
  </script>
</body>
</html>`

var dashboardTemplate = template.Must(template.New("dashboard").Parse(dashboardHTML))

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	type kindChip struct {
		Label string
		Icon  string
	}
	defaults := layout.DefaultWidgets()
	chips := make([]kindChip, 0, len(defaults))
	for _, widget := range defaults {
		info := layout.DisplayFor(widget)
		chips = append(chips, kindChip{Label: info.Label, Icon: info.Icon})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, map[string]any{"Kinds": chips}); err != nil {
		fmt.Fprint(w, "dashboard render failed")
	}
}
