package updater

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/smazurov/plexwatch/internal/version"
)

type fakeSource struct {
	release *selfupdate.Release
	found   bool
	err     error
	applied bool
}

func (f *fakeSource) DetectLatest(context.Context, selfupdate.Repository) (*selfupdate.Release, bool, error) {
	return f.release, f.found, f.err
}

func (f *fakeSource) UpdateTo(context.Context, *selfupdate.Release, string) error {
	f.applied = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestUpdater(t *testing.T, source releaseSource) *Updater {
	t.Helper()
	u, err := newUpdater(Options{Repository: "smazurov/plexwatch", BackupDir: t.TempDir()}, source)
	if err != nil {
		t.Fatalf("newUpdater() error = %v", err)
	}
	return u
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("error %v is not an *Error", err)
	}
	return uerr.Code
}

func TestCheckForUpdateErrors(t *testing.T) {
	tests := []struct {
		name   string
		source *fakeSource
		want   string
	}{
		{"source error", &fakeSource{err: errors.New("rate limited")}, ErrCodeCheckFailed},
		{"no releases", &fakeSource{found: false}, ErrCodeNotFound},
		{"found without release", &fakeSource{found: true}, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newTestUpdater(t, tt.source)
			info, err := u.CheckForUpdate(context.Background())
			if info != nil {
				t.Errorf("info = %+v, want nil", info)
			}
			if got := errorCode(t, err); got != tt.want {
				t.Errorf("code = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestApplyDoesNothingWhenCheckFails(t *testing.T) {
	source := &fakeSource{err: errors.New("offline")}
	u := newTestUpdater(t, source)
	u.execPath = func() (string, error) {
		t.Fatal("executable path should not be resolved")
		return "", nil
	}

	if _, err := u.Apply(context.Background()); errorCode(t, err) != ErrCodeCheckFailed {
		t.Errorf("Apply() = %v", err)
	}
	if source.applied {
		t.Error("UpdateTo called after a failed check")
	}
	if u.backups.hasBackup() {
		t.Error("backup created after a failed check")
	}
}

func TestRollbackWithoutBackup(t *testing.T) {
	u := newTestUpdater(t, &fakeSource{})
	if _, err := u.Rollback(); errorCode(t, err) != ErrCodeNoBackup {
		t.Errorf("Rollback() = %v", err)
	}
}

func TestBackupAndRollback(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "plexwatch")
	if err := os.WriteFile(exe, []byte("old binary"), 0o755); err != nil {
		t.Fatal(err)
	}

	u := newTestUpdater(t, &fakeSource{})
	if err := u.backups.createBackup(exe); err != nil {
		t.Fatalf("createBackup() error = %v", err)
	}

	if err := os.WriteFile(exe, []byte("new binary"), 0o755); err != nil {
		t.Fatal(err)
	}

	restored, err := u.Rollback()
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if restored != version.Version {
		t.Errorf("restored version = %q, want %q", restored, version.Version)
	}

	data, err := os.ReadFile(exe)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "old binary" {
		t.Errorf("executable = %q after rollback", data)
	}
}

func TestBackupInfoReloaded(t *testing.T) {
	backupDir := t.TempDir()
	exe := filepath.Join(t.TempDir(), "plexwatch")
	if err := os.WriteFile(exe, []byte("binary"), 0o755); err != nil {
		t.Fatal(err)
	}

	first, err := newBackupManager(backupDir, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if first.hasBackup() {
		t.Fatal("fresh directory should have no backup")
	}
	if err := first.createBackup(exe); err != nil {
		t.Fatal(err)
	}

	second, err := newBackupManager(backupDir, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if !second.hasBackup() || second.backupVersion() != version.Version {
		t.Errorf("backup not reloaded: has=%v version=%q", second.hasBackup(), second.backupVersion())
	}

	if err := os.Remove(filepath.Join(backupDir, backupFilename)); err != nil {
		t.Fatal(err)
	}
	third, err := newBackupManager(backupDir, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if third.hasBackup() {
		t.Error("backup info without a backup file should be ignored")
	}
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := newError(ErrCodeApplyFailed, "failed to apply update", cause)

	if got := err.Error(); got != "APPLY_FAILED: failed to apply update: boom" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
	if got := newError(ErrCodeNoBackup, "none", nil).Error(); got != "NO_BACKUP: none" {
		t.Errorf("Error() = %q", got)
	}
}
