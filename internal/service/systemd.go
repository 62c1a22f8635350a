package service

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"text/template"
)

const unitTemplate = `[Unit]
Description=dotsync directory sync daemon ({{ .Label }})
After=network-online.target

[Service]
Type=simple
ExecStart={{ quote .Executable }}{{ range .Args }} {{ quote . }}{{ end }}
{{- if .WorkingDir }}
WorkingDirectory={{ .WorkingDir }}
{{- end }}
{{- range .EnvPairs }}
Environment={{ quote (printf "%s=%s" (index . 0) (index . 1)) }}
{{- end }}
Restart=always
RestartSec=10
{{- if .StdoutPath }}
StandardOutput=append:{{ .StdoutPath }}
{{- end }}
{{- if .StderrPath }}
StandardError=append:{{ .StderrPath }}
{{- end }}

[Install]
WantedBy=default.target
`

var unit = template.Must(template.New("unit").Funcs(template.FuncMap{
	"quote": systemdQuote,
}).Parse(unitTemplate))

// systemdQuote quotes s when it contains characters systemd would split on.
func systemdQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\$%") {
		return s
	}
	return strconv.Quote(strings.ReplaceAll(s, "%", "%%"))
}

type systemd struct{}

func (systemd) path(home string, _ Definition) string {
	return unitPath(home)
}

func (systemd) render(def Definition) ([]byte, error) {
	var buf bytes.Buffer
	if err := unit.Execute(&buf, def); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (systemd) install(ctx context.Context, r Runner, _ string) error {
	if err := r.Run(ctx, "systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	return r.Run(ctx, "systemctl", "--user", "enable", "--now", unitName)
}

func (systemd) uninstall(ctx context.Context, r Runner, _ string) error {
	return r.Run(ctx, "systemctl", "--user", "disable", "--now", unitName)
}

func (systemd) removed(ctx context.Context, r Runner) error {
	return r.Run(ctx, "systemctl", "--user", "daemon-reload")
}
