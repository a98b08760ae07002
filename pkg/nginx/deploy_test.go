package nginx

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/certmate/certmate/pkg/errdefs"
	"github.com/certmate/certmate/pkg/sshx"
)

// fakeGW is an in-memory gateway recording every command it runs.
type fakeGW struct {
	files map[string][]byte
	modes map[string]os.FileMode
	cmds  []string
	runFn func(cmd string) (sshx.Result, error)
}

func newFakeGW() *fakeGW {
	return &fakeGW{
		files: make(map[string][]byte),
		modes: make(map[string]os.FileMode),
	}
}

func (f *fakeGW) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, errdefs.ErrNotFound
	}
	return data, nil
}

func (f *fakeGW) WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	f.files[path] = append([]byte(nil), data...)
	f.modes[path] = mode
	return nil
}

func (f *fakeGW) EnsureDir(ctx context.Context, path string) error { return nil }

func (f *fakeGW) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := f.files[path]
	return ok, nil
}

func (f *fakeGW) Run(ctx context.Context, cmd string) (sshx.Result, error) {
	f.cmds = append(f.cmds, cmd)

	// File commands the engine issues are emulated against the in-memory
	// tree; everything else goes through runFn.
	switch {
	case strings.HasPrefix(cmd, "ls -1 "):
		return f.list(cmd), nil
	case strings.HasPrefix(cmd, "rm -f "):
		delete(f.files, strings.Trim(strings.TrimPrefix(cmd, "rm -f "), "'"))
		return sshx.Result{ExitCode: 0}, nil
	}

	if f.runFn != nil {
		return f.runFn(cmd)
	}
	return sshx.Result{ExitCode: 0}, nil
}

func (f *fakeGW) list(cmd string) sshx.Result {
	pattern := strings.TrimSuffix(strings.TrimPrefix(cmd, "ls -1 "), " 2>/dev/null")
	prefix := strings.Trim(strings.TrimSuffix(pattern, ".backup.*"), "'") + ".backup."

	var names []string
	for p := range f.files {
		if strings.HasPrefix(p, prefix) {
			names = append(names, p)
		}
	}
	if len(names) == 0 {
		return sshx.Result{ExitCode: 2, Stderr: "No such file or directory"}
	}
	sort.Strings(names)
	return sshx.Result{ExitCode: 0, Stdout: strings.Join(names, "\n") + "\n"}
}

func (f *fakeGW) Close() error { return nil }

func testEngine(gw *fakeGW) *Engine {
	return &Engine{
		GW:      gw,
		ConfDir: "/etc/nginx/conf.d",
		Log:     zap.NewNop(),
		now:     func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestDeployCreatesConfigAndReloads(t *testing.T) {
	gw := newFakeGW()
	engine := testEngine(gw)

	outcome, err := engine.Deploy(context.Background(), testPlan, Options{})
	require.NoError(t, err)

	assert.Equal(t, ActionCreated, outcome.Action)
	assert.Equal(t, "/etc/nginx/conf.d/example.com.conf", outcome.ConfigPath)

	written := string(gw.files[outcome.ConfigPath])
	assert.Contains(t, written, "listen 80;")
	assert.Contains(t, written, "listen 443 ssl http2;")
	assert.Equal(t, 2, strings.Count(written, "server_name example.com;"))

	// Self-test runs before reload.
	require.Len(t, gw.cmds, 2)
	assert.Equal(t, "nginx -t", gw.cmds[0])
	assert.Equal(t, "nginx -s reload", gw.cmds[1])
}

func TestDeploySkipsExistingTLSConfig(t *testing.T) {
	gw := newFakeGW()
	engine := testEngine(gw)

	original := []byte("server {\n    listen 443 ssl;\n    ssl_certificate /etc/ssl/own.pem;\n}\n")
	cfgPath := engine.ConfigPath("example.com")
	gw.files[cfgPath] = original

	outcome, err := engine.Deploy(context.Background(), testPlan, Options{})
	require.NoError(t, err)

	assert.Equal(t, ActionSkipped, outcome.Action)
	assert.Equal(t, ReasonAlreadyTLS, outcome.Reason)
	assert.Equal(t, original, gw.files[cfgPath], "skip must never mutate the file")
	assert.Empty(t, gw.cmds, "skip runs neither self-test nor reload")
}

func TestDeployTransformsPlainConfig(t *testing.T) {
	gw := newFakeGW()
	engine := testEngine(gw)

	cfgPath := engine.ConfigPath("example.com")
	gw.files[cfgPath] = []byte(`server {
    listen 80;
    server_name example.com;

    location / {
        proxy_pass http://localhost:3000;
    }
}`)

	outcome, err := engine.Deploy(context.Background(), testPlan, Options{})
	require.NoError(t, err)

	assert.Equal(t, ActionTransformed, outcome.Action)

	backupPath := cfgPath + ".backup.20250601-120000"
	assert.Contains(t, gw.files, backupPath)

	written := string(gw.files[cfgPath])
	assert.Contains(t, written, "listen 443 ssl http2;")
	assert.Contains(t, written, "location /.well-known/acme-challenge/")
}

func TestDeployRollsBackOnFailedSelfTest(t *testing.T) {
	gw := newFakeGW()
	engine := testEngine(gw)

	original := []byte(`server {
    listen 80;
    server_name example.com;

    location / {
        proxy_pass http://localhost:3000;
    }
}`)
	cfgPath := engine.ConfigPath("example.com")
	gw.files[cfgPath] = append([]byte(nil), original...)

	gw.runFn = func(cmd string) (sshx.Result, error) {
		if strings.Contains(cmd, "nginx -t") {
			return sshx.Result{ExitCode: 1, Stderr: "unknown directive"}, nil
		}
		return sshx.Result{ExitCode: 0}, nil
	}

	outcome, err := engine.Deploy(context.Background(), testPlan, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrConfigValidationFailed))

	require.NotNil(t, outcome)
	assert.Equal(t, ActionRolledBack, outcome.Action)
	assert.Equal(t, original, gw.files[cfgPath],
		"file must be byte-identical to the pre-deploy content")

	// The restore resolved the backup from disk, not from memory.
	assert.Contains(t, strings.Join(gw.cmds, "\n"), "ls -1")
}

func TestLatestBackupReturnsNewest(t *testing.T) {
	gw := newFakeGW()
	engine := testEngine(gw)

	cfgPath := engine.ConfigPath("example.com")
	gw.files[cfgPath+".backup.20250101-000000"] = []byte("old")
	gw.files[cfgPath+".backup.20250601-120000"] = []byte("new")

	latest, err := engine.LatestBackup(context.Background(), cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfgPath+".backup.20250601-120000", latest)
}

func TestLatestBackupEmptyWhenNoneExist(t *testing.T) {
	gw := newFakeGW()
	engine := testEngine(gw)

	latest, err := engine.LatestBackup(context.Background(), engine.ConfigPath("example.com"))
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func TestDeploySweepsOldBackups(t *testing.T) {
	gw := newFakeGW()
	engine := testEngine(gw)

	cfgPath := engine.ConfigPath("example.com")
	gw.files[cfgPath+".backup.20250101-000000"] = []byte("old")
	gw.files[cfgPath+".backup.20250301-000000"] = []byte("older")
	gw.files[cfgPath] = []byte(`server {
    listen 80;
    server_name example.com;

    location / {
        proxy_pass http://localhost:3000;
    }
}`)

	_, err := engine.Deploy(context.Background(), testPlan, Options{RetainBackups: 1})
	require.NoError(t, err)

	assert.NotContains(t, gw.files, cfgPath+".backup.20250101-000000")
	assert.NotContains(t, gw.files, cfgPath+".backup.20250301-000000")
	assert.Contains(t, gw.files, cfgPath+".backup.20250601-120000",
		"the backup from this run is the one kept")
}

func TestDeployReloadFailureIsFatalWithoutRollback(t *testing.T) {
	gw := newFakeGW()
	engine := testEngine(gw)

	cfgPath := engine.ConfigPath("example.com")
	gw.files[cfgPath] = []byte(`server {
    listen 80;
    server_name example.com;

    location / {
        proxy_pass http://localhost:3000;
    }
}`)

	gw.runFn = func(cmd string) (sshx.Result, error) {
		if strings.Contains(cmd, "reload") {
			return sshx.Result{ExitCode: 1, Stderr: "signal process started"}, nil
		}
		return sshx.Result{ExitCode: 0}, nil
	}

	_, err := engine.Deploy(context.Background(), testPlan, Options{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, errdefs.ErrConfigValidationFailed))

	// The transformed config passed the self-test; it stays on disk.
	assert.Contains(t, string(gw.files[cfgPath]), "listen 443 ssl http2;")
}

func TestDeploySkipBackup(t *testing.T) {
	gw := newFakeGW()
	engine := testEngine(gw)

	cfgPath := engine.ConfigPath("example.com")
	gw.files[cfgPath] = []byte(`server {
    listen 80;
    server_name example.com;

    location / {
        proxy_pass http://localhost:3000;
    }
}`)

	_, err := engine.Deploy(context.Background(), testPlan, Options{SkipBackup: true})
	require.NoError(t, err)

	for path := range gw.files {
		assert.NotContains(t, path, ".backup.")
	}
}
