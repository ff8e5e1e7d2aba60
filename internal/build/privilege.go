package build

import (
	"context"
	"os"
	"os/user"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/exec"
)

// useraddExists is useradd's exit status for "user already exists".
const useraddExists = 9

// Account is the unprivileged identity build commands run under.
type Account struct {
	Name string
	Home string
	UID  uint32
	GID  uint32
	// Groups holds supplementary groups, e.g. the container socket's gid.
	Groups []uint32
}

// Credential returns the process credential for the account.
func (a *Account) Credential() *syscall.Credential {
	if a == nil {
		return nil
	}
	return &syscall.Credential{Uid: a.UID, Gid: a.GID, Groups: a.Groups}
}

// Env returns the environment identifying the account to child processes.
func (a *Account) Env() map[string]string {
	if a == nil {
		return nil
	}
	return map[string]string{"HOME": a.Home, "USER": a.Name, "LOGNAME": a.Name}
}

// Deescalator creates the build account and hands it the build tree.
// Filesystem and identity lookups are injectable for tests. The tree is
// walked on FS; Chown changes the owner of each path found.
type Deescalator struct {
	FS           afero.Fs
	Runner       exec.CommandRunner
	Logger       *zap.Logger
	IsRoot       func() bool
	LookupUser   func(name string) (*user.User, error)
	Chown        func(path string, uid, gid int) error
	SocketGroup  func(path string) (uint32, bool)
	DockerSocket string
}

// NewDeescalator returns a Deescalator backed by the host. Ownership changes
// use Lchown so symlinks inside a checked-out tree are never followed.
func NewDeescalator(fsys afero.Fs, runner exec.CommandRunner, dockerSocket string, logger *zap.Logger) *Deescalator {
	return &Deescalator{
		FS:           fsys,
		Runner:       runner,
		Logger:       logger,
		IsRoot:       func() bool { return unix.Geteuid() == 0 },
		LookupUser:   user.Lookup,
		Chown:        os.Lchown,
		SocketGroup:  socketGroup,
		DockerSocket: dockerSocket,
	}
}

// Prepare returns nil when the process is not superuser: commands then run
// as the current user. Otherwise it creates (idempotently) the named account,
// transfers ownership of every path in owned to it, and grants access to the
// container socket by adding the socket's group to the account credential.
func (d *Deescalator) Prepare(ctx context.Context, name string, owned []string) (*Account, error) {
	if d.IsRoot == nil || !d.IsRoot() {
		return nil, nil
	}
	details := map[string]string{"user": name}

	res, err := d.Runner.Run(ctx, "useradd", []string{"--create-home", "--shell", "/bin/bash", name}, exec.RunOpts{})
	if err != nil {
		return nil, errors.WrapWithDetails(errors.EPrivilegeSetupFailed, "failed to run useradd", err, details)
	}
	if res.ExitCode != 0 && res.ExitCode != useraddExists && !strings.Contains(res.Stderr, "already exists") {
		details["exit_code"] = strconv.Itoa(res.ExitCode)
		details["stderr"] = strings.TrimSpace(res.Stderr)
		return nil, errors.NewWithDetails(errors.EPrivilegeSetupFailed, "failed to create build user", details)
	}

	u, err := d.LookupUser(name)
	if err != nil {
		return nil, errors.WrapWithDetails(errors.EPrivilegeSetupFailed, "build user not found after creation", err, details)
	}
	uid, errU := strconv.ParseUint(u.Uid, 10, 32)
	gid, errG := strconv.ParseUint(u.Gid, 10, 32)
	if errU != nil || errG != nil {
		return nil, errors.NewWithDetails(errors.EPrivilegeSetupFailed, "build user has non-numeric ids", details)
	}
	acct := &Account{Name: name, Home: u.HomeDir, UID: uint32(uid), GID: uint32(gid)}

	for _, root := range owned {
		if err := d.chownTree(root, int(uid), int(gid)); err != nil {
			details["path"] = root
			return nil, errors.WrapWithDetails(errors.EPrivilegeSetupFailed, "failed to transfer ownership", err, details)
		}
	}

	if d.DockerSocket != "" && d.SocketGroup != nil {
		if sgid, ok := d.SocketGroup(d.DockerSocket); ok && sgid != acct.GID {
			acct.Groups = append(acct.Groups, sgid)
			d.logger().Debug("granted container socket access",
				zap.String("socket", d.DockerSocket), zap.Uint32("gid", sgid))
		}
	}

	d.logger().Info("build account ready",
		zap.String("user", name), zap.Uint32("uid", acct.UID), zap.Uint32("gid", acct.GID))
	return acct, nil
}

func (d *Deescalator) chownTree(root string, uid, gid int) error {
	fsys := d.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return err
	}
	return afero.Walk(fsys, root, func(path string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return d.Chown(path, uid, gid)
	})
}

func (d *Deescalator) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func socketGroup(path string) (uint32, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, false
	}
	return st.Gid, true
}
