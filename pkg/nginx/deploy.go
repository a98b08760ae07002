package nginx

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/certmate/certmate/pkg/errdefs"
	"github.com/certmate/certmate/pkg/gateway"
	"github.com/certmate/certmate/pkg/sshx"
)

// Actions a deployment can report.
const (
	ActionCreated     = "created"
	ActionTransformed = "transformed"
	ActionSkipped     = "skipped"
	ActionRolledBack  = "rolled-back"
)

// ReasonAlreadyTLS marks the skip of a config that already terminates TLS.
const ReasonAlreadyTLS = "already-has-tls"

const backupTimeLayout = "20060102-150405"

// Outcome describes what one deploy did to the config file.
type Outcome struct {
	ConfigPath string
	Action     string
	Reason     string
}

// Options tunes one deployment.
type Options struct {
	SkipBackup bool
	SkipReload bool

	// RetainBackups keeps only the newest N backups for the config after a
	// successful transform. Zero keeps all.
	RetainBackups int
}

// Engine deploys virtual-host configuration through an execution gateway.
// The same engine serves local and remote hosts; only the gateway differs.
type Engine struct {
	GW        gateway.Gateway
	ConfDir   string
	TestCmd   string // defaults to "nginx -t"
	ReloadCmd string // defaults to "nginx -s reload"
	Log       *zap.Logger

	now func() time.Time // test hook
}

// ConfigPath returns the deterministic config location for a domain
func (e *Engine) ConfigPath(domain string) string {
	return path.Join(e.ConfDir, domain+".conf")
}

// Deploy brings the domain's virtual host in line with the plan. Existing
// TLS configs are never touched; plaintext configs are backed up and
// transformed; missing configs are generated whole. Every written config is
// self-tested before reload, and a failed self-test restores the backup.
func (e *Engine) Deploy(ctx context.Context, plan Plan, opts Options) (*Outcome, error) {
	cfgPath := e.ConfigPath(plan.Domain)

	exists, err := e.GW.Exists(ctx, cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", cfgPath, err)
	}

	if !exists {
		return e.create(ctx, cfgPath, plan, opts)
	}

	existing, err := e.GW.ReadFile(ctx, cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cfgPath, err)
	}

	if Classify(existing) == StateTLS {
		e.Log.Info("config already terminates TLS, leaving untouched",
			zap.String("path", cfgPath))
		return &Outcome{ConfigPath: cfgPath, Action: ActionSkipped, Reason: ReasonAlreadyTLS}, nil
	}

	return e.transform(ctx, cfgPath, string(existing), plan, opts)
}

func (e *Engine) create(ctx context.Context, cfgPath string, plan Plan, opts Options) (*Outcome, error) {
	if err := e.GW.EnsureDir(ctx, e.ConfDir); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := e.GW.WriteFile(ctx, cfgPath, []byte(Generate(plan)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", cfgPath, err)
	}

	if err := e.selfTest(ctx); err != nil {
		// Nothing to restore; the file did not exist before.
		return nil, fmt.Errorf("%w: %v", errdefs.ErrConfigValidationFailed, err)
	}
	if err := e.reload(ctx, opts); err != nil {
		return nil, err
	}

	return &Outcome{ConfigPath: cfgPath, Action: ActionCreated}, nil
}

func (e *Engine) transform(ctx context.Context, cfgPath, existing string, plan Plan, opts Options) (*Outcome, error) {
	if !opts.SkipBackup {
		backupPath := fmt.Sprintf("%s.backup.%s", cfgPath, e.timestamp())
		if err := e.GW.WriteFile(ctx, backupPath, []byte(existing), 0644); err != nil {
			return nil, fmt.Errorf("failed to back up %s: %w", cfgPath, err)
		}
		e.Log.Info("backed up config", zap.String("backup", backupPath))
	}

	combined, err := Transform(existing, plan)
	if err != nil {
		return nil, fmt.Errorf("failed to transform %s: %w", cfgPath, err)
	}
	if err := e.GW.WriteFile(ctx, cfgPath, []byte(combined), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", cfgPath, err)
	}

	if err := e.selfTest(ctx); err != nil {
		if opts.SkipBackup {
			return nil, fmt.Errorf("%w: %v", errdefs.ErrConfigValidationFailed, err)
		}

		// The backup just taken sorts newest; restore whatever is on disk
		// rather than trusting in-memory state.
		restorePath, lookupErr := e.LatestBackup(ctx, cfgPath)
		if lookupErr != nil || restorePath == "" {
			e.Log.Error("no backup found to restore", zap.Error(lookupErr))
		} else if restoreErr := e.restore(ctx, cfgPath, restorePath); restoreErr != nil {
			e.Log.Error("rollback failed", zap.Error(restoreErr))
		} else {
			e.Log.Warn("config test failed, restored backup",
				zap.String("backup", restorePath))
		}
		return &Outcome{ConfigPath: cfgPath, Action: ActionRolledBack, Reason: "config-test-failed"},
			fmt.Errorf("%w: %v", errdefs.ErrConfigValidationFailed, err)
	}

	if err := e.reload(ctx, opts); err != nil {
		// The config on disk passed the self-test, so it stays.
		return nil, err
	}

	if opts.RetainBackups > 0 {
		e.sweepBackups(ctx, cfgPath, opts.RetainBackups)
	}

	return &Outcome{ConfigPath: cfgPath, Action: ActionTransformed}, nil
}

func (e *Engine) selfTest(ctx context.Context) error {
	cmd := e.TestCmd
	if cmd == "" {
		cmd = "nginx -t"
	}

	res, err := e.GW.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to run config test: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("config test failed: %s", strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (e *Engine) reload(ctx context.Context, opts Options) error {
	if opts.SkipReload {
		return nil
	}

	cmd := e.ReloadCmd
	if cmd == "" {
		cmd = "nginx -s reload"
	}

	res, err := e.GW.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to reload proxy: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to reload proxy: %s", strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (e *Engine) restore(ctx context.Context, cfgPath, backupPath string) error {
	content, err := e.GW.ReadFile(ctx, backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup %s: %w", backupPath, err)
	}
	if err := e.GW.WriteFile(ctx, cfgPath, content, 0644); err != nil {
		return fmt.Errorf("failed to restore %s: %w", cfgPath, err)
	}
	return nil
}

// LatestBackup returns the most recent backup taken for a config path, or
// empty when none exists. The timestamp suffix sorts lexically, so the last
// name is the newest.
func (e *Engine) LatestBackup(ctx context.Context, cfgPath string) (string, error) {
	backups, err := e.listBackups(ctx, cfgPath)
	if err != nil || len(backups) == 0 {
		return "", err
	}
	return backups[len(backups)-1], nil
}

// sweepBackups removes all but the newest keep backups. Sweep failures are
// logged and swallowed; stale backups are harmless.
func (e *Engine) sweepBackups(ctx context.Context, cfgPath string, keep int) {
	backups, err := e.listBackups(ctx, cfgPath)
	if err != nil {
		e.Log.Debug("backup sweep skipped", zap.Error(err))
		return
	}
	if len(backups) <= keep {
		return
	}

	for _, stale := range backups[:len(backups)-keep] {
		if res, err := e.GW.Run(ctx, "rm -f "+sshx.Quote(stale)); err != nil || res.ExitCode != 0 {
			e.Log.Debug("failed to remove stale backup", zap.String("path", stale))
		}
	}
}

func (e *Engine) listBackups(ctx context.Context, cfgPath string) ([]string, error) {
	res, err := e.GW.Run(ctx, fmt.Sprintf("ls -1 %s.backup.* 2>/dev/null", sshx.Quote(cfgPath)))
	if err != nil {
		return nil, err
	}

	var backups []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			backups = append(backups, line)
		}
	}
	sort.Strings(backups)
	return backups, nil
}

func (e *Engine) timestamp() string {
	if e.now != nil {
		return e.now().Format(backupTimeLayout)
	}
	return time.Now().Format(backupTimeLayout)
}
