package service

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/template"

	"go.uber.org/multierr"
)

// Format 为服务描述文件格式。
type Format string

const (
	FormatLaunchd Format = "launchd"
	FormatSystemd Format = "systemd"
)

// DefaultLabel 为 launchd 标签与 systemd 单元名。
const DefaultLabel = "com.kraken.dca"

// Options 描述服务运行方式。
type Options struct {
	Label      string
	Executable string
	WorkingDir string
	Configs    []string
	EnvFile    string
	LogDir     string
	User       string
}

// ParseFormat 解析格式名称。
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatLaunchd, "plist":
		return FormatLaunchd, nil
	case FormatSystemd, "unit":
		return FormatSystemd, nil
	default:
		return "", fmt.Errorf("service: 不支持的格式 %q，可选 launchd 或 systemd", s)
	}
}

// FileName 返回该格式的默认文件名。
func FileName(format Format, label string) string {
	if label == "" {
		label = DefaultLabel
	}
	if format == FormatSystemd {
		return strings.ReplaceAll(label, ".", "-") + ".service"
	}
	return label + ".plist"
}

func (o Options) validate() error {
	var err error
	if o.Executable == "" {
		err = multierr.Append(err, errors.New("可执行文件路径不能为空"))
	}
	if o.WorkingDir == "" {
		err = multierr.Append(err, errors.New("工作目录不能为空"))
	}
	if len(o.Configs) == 0 {
		err = multierr.Append(err, errors.New("至少需要一个策略文件"))
	}
	if err != nil {
		return fmt.Errorf("service: 参数无效: %w", err)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Label == "" {
		o.Label = DefaultLabel
	}
	if o.LogDir == "" {
		o.LogDir = filepath.Join(o.WorkingDir, "logs")
	}
	return o
}

// Args 返回服务启动参数，不含可执行文件本身。
func (o Options) Args() []string {
	args := []string{"run"}
	if o.EnvFile != "" {
		args = append(args, "--env-file", o.EnvFile)
	}
	return append(args, o.Configs...)
}

// Render 按格式渲染服务描述文件。
func Render(w io.Writer, format Format, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	opts = opts.withDefaults()

	var tmpl *template.Template
	switch format {
	case FormatLaunchd:
		tmpl = launchdTemplate
	case FormatSystemd:
		tmpl = systemdTemplate
	default:
		return fmt.Errorf("service: 不支持的格式 %q", format)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, opts); err != nil {
		return fmt.Errorf("service: 渲染 %s 失败: %w", format, err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("service: 写入失败: %w", err)
	}
	return nil
}

var funcs = template.FuncMap{
	"xml":   xmlEscape,
	"shell": shellQuote,
	"join":  filepath.Join,
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// shellQuote 为 systemd ExecStart 参数加引号。
func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\$%") {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, `%`, `%%`)
	return `"` + s + `"`
}

var launchdTemplate = template.Must(template.New("launchd").Funcs(funcs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{xml .Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{xml .Executable}}</string>
{{- range .Args}}
        <string>{{xml .}}</string>
{{- end}}
    </array>

    <key>WorkingDirectory</key>
    <string>{{xml .WorkingDir}}</string>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <true/>

    <key>StandardOutPath</key>
    <string>{{xml (join .LogDir "dca.log")}}</string>

    <key>StandardErrorPath</key>
    <string>{{xml (join .LogDir "dca-error.log")}}</string>

    <key>EnvironmentVariables</key>
    <dict>
        <key>PATH</key>
        <string>/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin</string>
    </dict>

    <key>ProcessType</key>
    <string>Background</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>
`))

var systemdTemplate = template.Must(template.New("systemd").Funcs(funcs).Parse(`[Unit]
Description=Kraken DCA ({{.Label}})
Wants=network-online.target
After=network-online.target

[Service]
Type=simple
{{- if .User}}
User={{.User}}
{{- end}}
WorkingDirectory={{shell .WorkingDir}}
ExecStart={{shell .Executable}}{{range .Args}} {{shell .}}{{end}}
Restart=always
RestartSec=10
KillSignal=SIGTERM
TimeoutStopSec=60

[Install]
WantedBy=multi-user.target
`))
