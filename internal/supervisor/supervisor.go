// Package supervisor renders systemd unit files and drives them through
// systemctl, implementing the install/enable/start/stop/disable/remove
// contract spec section 6 requires of any process supervisor.
package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"text/template"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
)

// Supervisor is the abstract capability set spec section 6 names. A
// systemd-backed implementation is provided by Systemd below; any
// concrete implementation offering these verbs is acceptable.
type Supervisor interface {
	InstallUnitFile(ctx context.Context, unitName, contents string) error
	DaemonReload(ctx context.Context) error
	Enable(ctx context.Context, unitName string) error
	Start(ctx context.Context, unitName string) error
	Stop(ctx context.Context, unitName string) error
	Disable(ctx context.Context, unitName string) error
	RemoveUnitFile(ctx context.Context, unitName string) error
}

// UnitSpec holds the fields the unit-file template expands.
type UnitSpec struct {
	ServiceName    string
	User           string
	WorkDir        string
	StorePath      string
	Port           int
	Env            map[string]string
	SecretsPath    string
}

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Kennel service: {{.ServiceName}}
After=network.target

[Service]
Type=simple
User={{.User}}
WorkingDirectory={{.WorkDir}}
ExecStart={{.StorePath}}/bin/{{.ServiceName}}
Restart=on-failure
RestartSec=5s
Environment="PORT={{.Port}}"
{{- range .EnvLines}}
Environment="{{.}}"
{{- end}}
EnvironmentFile={{.SecretsPath}}

[Install]
WantedBy=multi-user.target
`))

type unitTemplateData struct {
	UnitSpec
	EnvLines []string
}

// RenderUnit produces the unit-file text for a deployed service, in the
// exact format spec section 6 names.
func RenderUnit(spec UnitSpec) (string, error) {
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s=%s", k, spec.Env[k])
	}

	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, unitTemplateData{UnitSpec: spec, EnvLines: lines}); err != nil {
		return "", fmt.Errorf("failed to render unit template: %w", err)
	}
	return buf.String(), nil
}

// Systemd shells out to systemctl. It is the default Supervisor
// implementation; the unit directory is injected so tests can point it at
// a scratch directory instead of /etc/systemd/system.
type Systemd struct {
	UnitDir string
}

func NewSystemd(unitDir string) *Systemd {
	return &Systemd{UnitDir: unitDir}
}

func (s *Systemd) unitPath(unitName string) string {
	return filepath.Join(s.UnitDir, unitName+".service")
}

func (s *Systemd) InstallUnitFile(ctx context.Context, unitName, contents string) error {
	if err := os.WriteFile(s.unitPath(unitName), []byte(contents), 0644); err != nil {
		return apperrors.Wrap(apperrors.ErrTypeIo, "failed to write unit file", err)
	}
	return nil
}

func (s *Systemd) DaemonReload(ctx context.Context) error {
	return s.run(ctx, "daemon-reload")
}

func (s *Systemd) Enable(ctx context.Context, unitName string) error {
	return s.run(ctx, "enable", unitName+".service")
}

func (s *Systemd) Start(ctx context.Context, unitName string) error {
	return s.run(ctx, "start", unitName+".service")
}

func (s *Systemd) Stop(ctx context.Context, unitName string) error {
	return s.run(ctx, "stop", unitName+".service")
}

func (s *Systemd) Disable(ctx context.Context, unitName string) error {
	return s.run(ctx, "disable", unitName+".service")
}

func (s *Systemd) RemoveUnitFile(ctx context.Context, unitName string) error {
	if err := os.Remove(s.unitPath(unitName)); err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(apperrors.ErrTypeIo, "failed to remove unit file", err)
	}
	return nil
}

func (s *Systemd) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "systemctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrTypeSupervisor, fmt.Sprintf("systemctl %v failed: %s", args, string(out)), err)
	}
	return nil
}
