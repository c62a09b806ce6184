package renderer

import (
	"bytes"
	"html/template"
)

var markupTemplate = template.Must(template.New("section").Parse(`<div id="` + SectionID + `">
  <div class="updater-panel tone-{{.Tone}}" data-status="{{.Status}}">
    {{- if .Icon}}
    <span><img src="../res/{{.Icon}}.svg" class="updater-icon" alt=""></span>
    {{- end}}
    {{- if eq .Indicator "progress"}}
    <div id="update-download-progress">
      <div id="` + ProgressTextID + `" class="disabled">{{.Title}}</div>
      <div id="` + ProgressBarID + `" class="determinate-progress" style="--determinate-progress-value: {{.Percent}}%"></div>
    </div>
    {{- else}}
    <span class="updater-title">{{.Title}}{{if .Highlight}} <span class="updater-highlight">{{.Highlight}}</span>{{end}}</span>
    {{- end}}
    {{- if eq .Indicator "spinner"}}
    <div class="loader"></div>
    {{- end}}
    {{- range .Actions}}
    {{- if .Link}}
    <span id="{{.ID}}" class="hyperlink" data-command="{{.Command}}">{{.Label}}</span>
    {{- else}}
    <label id="{{.ID}}" class="button setting-item-button" data-command="{{.Command}}">{{.Label}}</label>
    {{- end}}
    {{- end}}
  </div>
</div>
`))

// Markup renders a panel as an HTML fragment for web surfaces. Buttons
// carry the command they trigger in a data-command attribute.
func Markup(p Panel) (string, error) {
	var buf bytes.Buffer
	if err := markupTemplate.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}
