package service

import (
	"bytes"
	"context"
	"path/filepath"
	"text/template"
)

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{ .Label | html }}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{ .Executable | html }}</string>
{{- range .Args }}
        <string>{{ . | html }}</string>
{{- end }}
    </array>
{{- if .WorkingDir }}
    <key>WorkingDirectory</key>
    <string>{{ .WorkingDir | html }}</string>
{{- end }}
{{- with .EnvPairs }}
    <key>EnvironmentVariables</key>
    <dict>
{{- range . }}
        <key>{{ index . 0 | html }}</key>
        <string>{{ index . 1 | html }}</string>
{{- end }}
    </dict>
{{- end }}
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
{{- if .StdoutPath }}
    <key>StandardOutPath</key>
    <string>{{ .StdoutPath | html }}</string>
{{- end }}
{{- if .StderrPath }}
    <key>StandardErrorPath</key>
    <string>{{ .StderrPath | html }}</string>
{{- end }}
</dict>
</plist>
`

var plist = template.Must(template.New("plist").Parse(plistTemplate))

type launchd struct{}

func (launchd) path(home string, def Definition) string {
	return filepath.Join(home, "Library", "LaunchAgents", def.Label+".plist")
}

func (launchd) render(def Definition) ([]byte, error) {
	var buf bytes.Buffer
	if err := plist.Execute(&buf, def); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (launchd) install(ctx context.Context, r Runner, path string) error {
	// reinstalling over a loaded agent
	_ = r.Run(ctx, "launchctl", "unload", path)
	return r.Run(ctx, "launchctl", "load", "-w", path)
}

func (launchd) uninstall(ctx context.Context, r Runner, path string) error {
	return r.Run(ctx, "launchctl", "unload", "-w", path)
}
