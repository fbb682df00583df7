package fsops

import "fmt"

// NewChmod builds the chmod+ls chained command: mutate, then re-read the
// path's metadata in the same remote shell pipeline so the response
// reflects post-state.
func NewChmod(path, mode string) Command {
	return Chained{First: chmodOnly{path: path, mode: mode}, Second: newLsSingle(path)}
}

type chmodOnly struct{ path, mode string }

func (c chmodOnly) Render() string {
	return withTimeout(fmt.Sprintf("chmod -v %s -- %s", quote(c.mode), quote(c.path)))
}

func (c chmodOnly) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	return nil, nil
}

// NewChown builds the chown+ls chained command.
func NewChown(path, owner, group string) Command {
	ownerGroup := owner
	if group != "" {
		ownerGroup = owner + ":" + group
	}
	return Chained{First: chownOnly{path: path, ownerGroup: ownerGroup}, Second: newLsSingle(path)}
}

type chownOnly struct{ path, ownerGroup string }

func (c chownOnly) Render() string {
	return withTimeout(fmt.Sprintf("chown -v %s -- %s", quote(c.ownerGroup), quote(c.path)))
}

func (c chownOnly) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	return nil, nil
}

// NewMkdir builds the mkdir+ls chained command. When parent is true, `-p`
// creates intermediate directories.
func NewMkdir(path string, parent bool) Command {
	return Chained{First: mkdirOnly{path: path, parent: parent}, Second: newLsSingle(path)}
}

type mkdirOnly struct {
	path   string
	parent bool
}

func (c mkdirOnly) Render() string {
	flag := ""
	if c.parent {
		flag = "-p "
	}
	return withTimeout(fmt.Sprintf("mkdir -v %s-- %s", flag, quote(c.path)))
}

func (c mkdirOnly) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	return nil, nil
}

// NewSymlink builds the symlink+ls(link_path) chained command.
func NewSymlink(target, linkPath string) Command {
	return Chained{First: symlinkOnly{target: target, linkPath: linkPath}, Second: newLsSingle(linkPath)}
}

type symlinkOnly struct{ target, linkPath string }

func (c symlinkOnly) Render() string {
	return withTimeout(fmt.Sprintf("ln -sv -- %s %s", quote(c.target), quote(c.linkPath)))
}

func (c symlinkOnly) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	return nil, nil
}

// NewRm builds the `rm` command; it has no output on success.
func NewRm(path string) Command {
	return rmCommand{path: path}
}

type rmCommand struct{ path string }

func (c rmCommand) Render() string {
	return withTimeout(fmt.Sprintf("rm -rv -- %s", quote(c.path)))
}

func (c rmCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	return nil, nil
}
