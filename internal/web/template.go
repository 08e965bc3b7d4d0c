package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/grow-controller/internal/schedule"
	"github.com/sweeney/grow-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"brightness": func(l status.LightStatus) string {
		if !l.Known {
			return "UNKNOWN"
		}
		return fmt.Sprintf("%d%%", l.BrightnessPct)
	},
	"describe": describeRule,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Grow Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.held { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.error { color: red; }
</style>
</head>
<body>
<h1>Grow Controller</h1>

<h2>Actuators</h2>
<table>
<tr><th>Light</th><td id="light-state" class="{{if not .Light.Known}}unknown{{else if eq .Light.BrightnessPct 0}}off{{else}}on{{end}}">{{brightness .Light}}{{if .Light.Held}} <span class="held">(paused)</span>{{end}}</td></tr>
<tr><th>Pump</th><td id="pump-state" class="{{if eq .Pump.PumpState "ON"}}on{{else if eq .Pump.PumpState "OFF"}}off{{else}}unknown{{end}}">{{.Pump.PumpState}}{{if .Pump.Manual}} (manual){{end}}{{if .Pump.Held}} <span class="held">(paused)</span>{{end}}</td></tr>
<tr><th>Engine</th><td>{{.EngineState}}</td></tr>
<tr><th>Last tick</th><td>{{if .LastTick.IsZero}}never{{else}}{{.LastTick.UTC.Format "2006-01-02T15:04:05Z"}}{{end}}</td></tr>
{{if .LastError}}<tr><th>Last error</th><td class="error">{{.LastError}}</td></tr>{{end}}
</table>

<h2>Open Windows</h2>
{{if .Windows}}<table>
{{range .Windows}}<tr><th>{{.RuleID}}</th><td>{{.ActivatesAt}} - {{.DeactivatesAt}}</td></tr>
{{end}}</table>{{else}}<p>none</p>{{end}}

<h2>Rules ({{.Rules}}{{if .Skipped}}, {{.Skipped}} skipped{{end}})</h2>
{{if .RuleList}}<table>
{{range .RuleList}}<tr><th>{{.ID}}</th><td>{{describe .}}</td></tr>
{{end}}</table>{{else}}<p>none</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Ticks</th><td>{{.Counts.Ticks}}</td></tr>
<tr><th>Light commands</th><td>{{.Counts.LightCommands}}</td></tr>
<tr><th>Pump commands</th><td>{{.Counts.PumpCommands}}</td></tr>
<tr><th>Failures</th><td>{{.Counts.Failures}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Time zone</th><td>{{.Config.TimeZone}}</td></tr>
<tr><th>Rules backend</th><td>{{.Config.RulesBackend}}</td></tr>
<tr><th>Hardware</th><td>{{.Config.Hardware}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/api/schedules">Rules</a> | <a href="/api/history">History</a></p>
</body>
</html>
`

// describeRule renders a one-line summary of a rule.
func describeRule(r schedule.Rule) string {
	var s string
	switch {
	case r.Check() != nil:
		return "invalid: " + r.Check().Error()
	case r.Light != nil && r.Light.End != nil:
		s = fmt.Sprintf("light %d%% %s-%s", r.Light.BrightnessPct, r.Light.Start, *r.Light.End)
	case r.Light != nil:
		s = fmt.Sprintf("light %d%% from %s", r.Light.BrightnessPct, r.Light.Start)
	case r.Pump != nil:
		s = fmt.Sprintf("pump %s for %dm", r.Pump.At, r.Pump.DurationMinutes)
	}
	if !r.Enabled {
		s += " (disabled)"
	} else if r.Paused {
		s += " (paused)"
	}
	return s
}

func renderHTML(w io.Writer, snap status.Snapshot, rules []schedule.Rule) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		RuleList []schedule.Rule
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		RuleList: rules,
	}
	return indexTmpl.Execute(w, data)
}
