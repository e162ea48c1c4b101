// Package main implements an interactive shell to share files between
// principals.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"go.dedis.ch/sharefs"
	"go.dedis.ch/sharefs/controller"
	"go.dedis.ch/sharefs/vfs"
	"golang.org/x/xerrors"
)

// EnvAddr is the name of the environment variable that overrides the address
// of the remote bucket.
const EnvAddr = "SHAREFS_ADDR"

type command interface {
	run(ctx *context, inputs ...string) error
	getName() string
	getDesc() string
}

type context struct {
	env    controller.Env
	fs     *vfs.FS
	out    io.Writer
	cmdMap map[string]command
	names  []string
}

func main() {
	config := controller.Config{}

	flags := pflag.NewFlagSet("sharectl", pflag.ExitOnError)
	flags.StringVar(&config.ID, "id", "", "identifier of the principal")
	flags.StringVar(&config.Passphrase, "passphrase", "", "passphrase to derive the keys from")
	flags.StringVar(&config.KeyFile, "keyfile", "", "file storing the keys, created if it does not exist")
	flags.StringVar(&config.KDF, "kdf", "legacy", "key derivation: legacy, pbkdf2 or argon2id")
	flags.StringVar(&config.Salt, "salt", "", "salt of the key derivation, the identifier by default")
	flags.StringVar(&config.StoreDir, "store", "", "directory of a disk bucket")
	flags.StringVar(&config.Remote, "remote", "", "address of a remote bucket, overridden by "+EnvAddr)
	flags.StringVar(&config.SQLConfig, "sqlconfig", "", "configuration file of a MySQL bucket")
	flags.StringVar(&config.Format, "format", "JSON", "format of the tables: JSON or GOB")

	flags.Parse(os.Args[1:])

	addr := os.Getenv(EnvAddr)
	if addr != "" {
		config.Remote = addr
	}

	ctx, err := newContext(config, os.Stdout)
	if err != nil {
		sharefs.Logger.Fatal().Err(err).Msg("failed to start")
	}

	repl(ctx, os.Stdin)
}

func newContext(config controller.Config, out io.Writer) (*context, error) {
	env, err := config.Open()
	if err != nil {
		return nil, err
	}

	ctx := &context{
		env: env,
		out: out,
	}

	// The filesystem view is only available when the files are local.
	if config.Remote == "" && config.SQLConfig == "" {
		ctx.fs, err = vfs.New(env.Sharer, config.StoreDir)
		if err != nil {
			return nil, err
		}
	}

	commands := []command{
		NewCommand("share", "share <path> <recipient>: share a file", share),
		NewCommand("revoke", "revoke <path> <recipient>: revoke the access to a file", revoke),
		NewCommand("list", "list the files shared by us", list),
		NewCommand("listwith", "list the files shared with us", listWith),
		NewCommand("put", "put <path> <text>: write a file", put),
		NewCommand("cat", "cat <path>: print a file", cat),
		NewCommand("ls", "ls [dir]: list a directory of the filesystem", ls),
		NewCommand("help", "print help", help),
	}

	ctx.cmdMap = make(map[string]command)
	for _, cmd := range commands {
		ctx.cmdMap[cmd.getName()] = cmd
		ctx.names = append(ctx.names, cmd.getName())
	}

	return ctx, nil
}

func repl(ctx *context, in io.Reader) {
	reader := bufio.NewReader(in)

	for {
		fmt.Fprintf(ctx.out, "%s> ", ctx.env.Sharer.ID())

		input, err := reader.ReadString('\n')
		if err == io.EOF && input == "" {
			fmt.Fprintln(ctx.out, "bye!")
			return
		}
		if err != nil && err != io.EOF {
			fmt.Fprintln(os.Stderr, err)
			return
		}

		args := strings.Fields(input)
		if len(args) == 0 {
			args = append(args, "help")
		}

		if args[0] == "exit" {
			fmt.Fprintln(ctx.out, "bye!")
			return
		}

		cmd := ctx.cmdMap[args[0]]
		if cmd == nil {
			cmd = ctx.cmdMap["help"]
		}

		err = cmd.run(ctx, args[1:]...)
		if err != nil {
			fmt.Fprintf(ctx.out, "failed to run: %v\n", err)
		}
	}
}

// NewCommand creates a new command
func NewCommand(name, description string, run func(c *context, inputs ...string) error) command {
	return genericCMD{
		name: name,
		desc: description,
		f:    run,
	}
}

// genericCMD provides a generic command
//
// - implements command
type genericCMD struct {
	name string
	desc string
	f    func(c *context, inputs ...string) error
}

// run implements command.
func (cmd genericCMD) run(ctx *context, inputs ...string) error {
	return cmd.f(ctx, inputs...)
}

// getName implements command.
func (cmd genericCMD) getName() string {
	return cmd.name
}

// getDesc implements command.
func (cmd genericCMD) getDesc() string {
	return cmd.desc
}

func share(ctx *context, inputs ...string) error {
	if len(inputs) != 2 {
		return xerrors.New("usage: share <path> <recipient>")
	}

	pub, err := ctx.env.Directory.GetKey(inputs[1])
	if err != nil {
		return xerrors.Errorf("failed to get key: %v", err)
	}

	outcome, err := ctx.env.Sharer.ShareFile(inputs[0], inputs[1], pub)
	if err != nil {
		return xerrors.Errorf("failed to share: %v", err)
	}

	fmt.Fprintln(ctx.out, outcome)

	return nil
}

func revoke(ctx *context, inputs ...string) error {
	if len(inputs) != 2 {
		return xerrors.New("usage: revoke <path> <recipient>")
	}

	shared, err := ctx.env.Sharer.IsShared(inputs[0], inputs[1])
	if err != nil {
		return err
	}

	if !shared {
		return xerrors.Errorf("'%s' is not shared with '%s'", inputs[0], inputs[1])
	}

	reuploaded, err := ctx.env.Sharer.RevokeSharedFile(inputs[0], inputs[1], ctx.env.Directory.GetKey)
	if err != nil {
		return xerrors.Errorf("failed to revoke: %v", err)
	}

	fmt.Fprintf(ctx.out, "revoked (file encrypted again: %t)\n", reuploaded)

	return nil
}

func list(ctx *context, inputs ...string) error {
	others, err := ctx.env.Sharer.ListSharedByUs()
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(others))
	for id := range others {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		fmt.Fprintf(ctx.out, "%s: %s\n", id, strings.Join(others[id], " "))
	}

	return nil
}

func listWith(ctx *context, inputs ...string) error {
	paths, err := ctx.env.Sharer.ListFilesSharedWithUs()
	if err != nil {
		return err
	}

	for _, path := range paths {
		fmt.Fprintln(ctx.out, path)
	}

	return nil
}

func put(ctx *context, inputs ...string) error {
	if len(inputs) < 1 {
		return xerrors.New("usage: put <path> <text>")
	}

	err := ctx.env.Sharer.UploadFile(inputs[0], []byte(strings.Join(inputs[1:], " ")))
	if err != nil {
		return xerrors.Errorf("failed to upload: %v", err)
	}

	return nil
}

func cat(ctx *context, inputs ...string) error {
	if len(inputs) != 1 {
		return xerrors.New("usage: cat <path>")
	}

	data, found, err := ctx.env.Sharer.LoadFile(inputs[0])
	if err != nil {
		return xerrors.Errorf("failed to load: %v", err)
	}

	if !found {
		return xerrors.Errorf("file '%s' not found", inputs[0])
	}

	fmt.Fprintln(ctx.out, string(data))

	return nil
}

func ls(ctx *context, inputs ...string) error {
	if ctx.fs == nil {
		return xerrors.New("filesystem needs a local store")
	}

	dir := "/"
	if len(inputs) > 0 {
		dir = inputs[0]
	}

	entries, err := ctx.fs.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		fmt.Fprintln(ctx.out, entry)
	}

	return nil
}

func help(ctx *context, inputs ...string) error {
	fmt.Fprintln(ctx.out, "available commands:")

	for _, name := range ctx.names {
		fmt.Fprintf(ctx.out, "- %s: %s\n", name, ctx.cmdMap[name].getDesc())
	}

	fmt.Fprintln(ctx.out, "- exit: quit the shell")

	return nil
}
