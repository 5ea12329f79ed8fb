package shell

import (
	"context"
	"testing"
	"time"

	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/action/actiontest"
	"github.com/tombee/chord/pkg/errors"
)

func runShell(t *testing.T, cfg Config, config map[string]interface{}, row map[string]interface{}) (map[string]interface{}, error) {
	t.Helper()
	a, err := NewFactory(cfg).Create(context.Background(), actiontest.NewCreateArg(Kind, config, nil))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	out, err := a.Run(context.Background(), actiontest.NewRunArg(config, nil, row))
	if err != nil {
		return nil, err
	}
	return out.(map[string]interface{}), nil
}

func TestRun_StringCommand(t *testing.T) {
	res, err := runShell(t, Config{}, map[string]interface{}{"command": "echo hello {{case.name}}"}, map[string]interface{}{"name": "bob"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res["stdout"] != "hello bob" {
		t.Errorf("Expected 'hello bob', got %q", res["stdout"])
	}
	if res["exit_code"] != int64(0) {
		t.Errorf("Expected exit code 0, got %v", res["exit_code"])
	}
}

func TestRun_ArrayCommand(t *testing.T) {
	res, err := runShell(t, Config{}, map[string]interface{}{"command": []interface{}{"echo", "hello world"}}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res["stdout"] != "hello world" {
		t.Errorf("Expected 'hello world', got %q", res["stdout"])
	}
}

func TestRun_NonZeroExitIsResult(t *testing.T) {
	res, err := runShell(t, Config{}, map[string]interface{}{"command": "echo oops >&2; exit 3"}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res["exit_code"] != int64(3) {
		t.Errorf("Expected exit code 3, got %v", res["exit_code"])
	}
	if res["stderr"] != "oops" {
		t.Errorf("Expected stderr 'oops', got %q", res["stderr"])
	}
}

func TestRun_EnvAndDir(t *testing.T) {
	dir := t.TempDir()
	res, err := runShell(t, Config{WorkingDir: dir}, map[string]interface{}{
		"command": "echo $GREETING; pwd",
		"env":     map[string]interface{}{"GREETING": "hi"},
	}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res["stdout"] != "hi\n"+dir {
		t.Errorf("unexpected stdout %q", res["stdout"])
	}
}

func TestRun_AllowedCommands(t *testing.T) {
	_, err := runShell(t, Config{AllowedCommands: []string{"echo"}}, map[string]interface{}{"command": []interface{}{"ls"}}, nil)
	var aerr *errors.ActionError
	if !errors.As(err, &aerr) || aerr.Code != CodeCommand {
		t.Errorf("Expected CodeCommand error, got %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	config := map[string]interface{}{"command": "sleep 5"}
	a, err := NewFactory(Config{}).Create(context.Background(), actiontest.NewCreateArg(Kind, config, nil))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = a.Run(ctx, actiontest.NewRunArg(config, nil, nil))
	var aerr *errors.ActionError
	if !errors.As(err, &aerr) || aerr.Code != CodeStart {
		t.Errorf("Expected CodeStart error, got %v", err)
	}
}

func TestCreate_RequiresCommand(t *testing.T) {
	_, err := NewFactory(Config{}).Create(context.Background(), actiontest.NewCreateArg(Kind, map[string]interface{}{}, nil))
	if err == nil {
		t.Error("Expected error for missing command")
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(action.Config{"dir": "/tmp", "allowed_commands": []interface{}{"echo", "curl"}})
	if cfg.WorkingDir != "/tmp" || len(cfg.AllowedCommands) != 2 {
		t.Errorf("unexpected config %+v", cfg)
	}
}
