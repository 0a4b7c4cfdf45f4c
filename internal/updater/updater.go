// Package updater replaces the plexwatch binary with the latest GitHub release.
package updater

import (
	"context"
	"log/slog"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/smazurov/plexwatch/internal/logging"
	"github.com/smazurov/plexwatch/internal/version"
)

// DefaultRepository is the GitHub slug releases are fetched from.
const DefaultRepository = "smazurov/plexwatch"

// Options contains configuration for the updater.
type Options struct {
	Repository string // GitHub repo slug (e.g., "smazurov/plexwatch")
	Prerelease bool   // Whether to include prereleases
	BackupDir  string // defaults to ~/.cache/plexwatch/backup
}

// UpdateInfo describes the latest release relative to the running binary.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes"`
	ReleaseURL      string    `json:"release_url"`
	PublishedAt     time.Time `json:"published_at"`
	AssetSize       int       `json:"asset_size"`
	UpdateAvailable bool      `json:"update_available"`
}

// releaseSource is satisfied by *selfupdate.Updater.
type releaseSource interface {
	DetectLatest(ctx context.Context, repository selfupdate.Repository) (*selfupdate.Release, bool, error)
	UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error
}

// Updater checks for and applies releases. Applying keeps a backup of the
// running binary and restores it when the replacement fails.
type Updater struct {
	repository selfupdate.Repository
	source     releaseSource
	backups    *backupManager
	execPath   func() (string, error)
	logger     *slog.Logger
}

// New creates an updater backed by GitHub releases.
func New(opts Options) (*Updater, error) {
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, newError(ErrCodeCheckFailed, "failed to create GitHub source", err)
	}

	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, newError(ErrCodeCheckFailed, "failed to create updater", err)
	}

	return newUpdater(opts, updater)
}

func newUpdater(opts Options, source releaseSource) (*Updater, error) {
	logger := logging.GetLogger("updater")

	backupDir := opts.BackupDir
	if backupDir == "" {
		dir, err := defaultBackupDir()
		if err != nil {
			return nil, newError(ErrCodeBackupFailed, "no backup directory", err)
		}
		backupDir = dir
	}

	backups, err := newBackupManager(backupDir, logger)
	if err != nil {
		return nil, newError(ErrCodeBackupFailed, "failed to prepare backup directory", err)
	}

	return &Updater{
		repository: selfupdate.ParseSlug(opts.Repository),
		source:     source,
		backups:    backups,
		execPath:   selfupdate.ExecutablePath,
		logger:     logger,
	}, nil
}

// CheckForUpdate queries the latest release without downloading it.
func (u *Updater) CheckForUpdate(ctx context.Context) (*UpdateInfo, error) {
	info, _, err := u.check(ctx)
	return info, err
}

func (u *Updater) check(ctx context.Context) (*UpdateInfo, *selfupdate.Release, error) {
	current := version.Version

	release, found, err := u.source.DetectLatest(ctx, u.repository)
	if err != nil {
		return nil, nil, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	}
	if !found || release == nil {
		return nil, nil, newError(ErrCodeNotFound, "repository not found or has no releases", nil)
	}

	// dev builds are always outdated
	if current != "dev" && !release.GreaterThan(current) {
		return &UpdateInfo{
			CurrentVersion: current,
			LatestVersion:  release.Version(),
		}, release, nil
	}

	return &UpdateInfo{
		CurrentVersion:  current,
		LatestVersion:   release.Version(),
		ReleaseNotes:    release.ReleaseNotes,
		ReleaseURL:      release.URL,
		PublishedAt:     release.PublishedAt,
		AssetSize:       release.AssetByteSize,
		UpdateAvailable: true,
	}, release, nil
}

// Apply downloads the latest release over the running binary. The caller is
// responsible for restarting the service afterwards.
func (u *Updater) Apply(ctx context.Context) (*UpdateInfo, error) {
	info, release, err := u.check(ctx)
	if err != nil {
		return nil, err
	}
	if !info.UpdateAvailable {
		return info, newError(ErrCodeNoUpdate, "already running "+info.CurrentVersion, nil)
	}

	exe, err := u.execPath()
	if err != nil {
		return nil, newError(ErrCodeApplyFailed, "failed to get executable path", err)
	}

	if err := u.backups.createBackup(exe); err != nil {
		return nil, newError(ErrCodeBackupFailed, "failed to create backup", err)
	}

	u.logger.Info("Applying update", "from", info.CurrentVersion, "to", info.LatestVersion)
	if err := u.source.UpdateTo(ctx, release, exe); err != nil {
		if restoreErr := u.backups.restore(); restoreErr != nil {
			u.logger.Error("Failed to restore backup", "error", restoreErr)
		}
		return nil, newError(ErrCodeApplyFailed, "failed to apply update", err)
	}

	u.logger.Info("Update applied", "version", info.LatestVersion)
	return info, nil
}

// Rollback restores the binary saved by the last Apply.
func (u *Updater) Rollback() (string, error) {
	if !u.backups.hasBackup() {
		return "", newError(ErrCodeNoBackup, "no backup available for rollback", nil)
	}
	if err := u.backups.restore(); err != nil {
		return "", newError(ErrCodeRollbackFailed, "failed to restore backup", err)
	}
	return u.backups.backupVersion(), nil
}
