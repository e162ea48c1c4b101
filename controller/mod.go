// Package controller implements the dela CLI commands to share and revoke
// files, and to serve a bucket through the dela proxy.
package controller

import (
	"io"
	"os"

	"go.dedis.ch/dela/cli"
	"go.dedis.ch/dela/cli/node"
)

// NewController returns a new controller initializer.
func NewController() node.Initializer {
	return controller{
		out: os.Stdout,
	}
}

// controller is an initializer with the sharing commands.
//
// - implements node.Initializer
type controller struct {
	out io.Writer
}

// SetCommands implements node.Initializer.
func (m controller) SetCommands(builder node.Builder) {
	cb := builder.SetCommand("sharing")
	cb.SetDescription("Set of commands to share encrypted files")

	sub := cb.SetSubCommand("share")
	sub.SetDescription("shares a file with a recipient")
	sub.SetAction(builder.MakeAction(shareAction{out: m.out}))
	sub.SetFlags(append(principalFlags(),
		cli.StringFlag{
			Name:     "path",
			Usage:    "the path of the file, starting with the identifier of the owner",
			Required: true,
		},
		cli.StringFlag{
			Name:     "recipient",
			Usage:    "the identifier of the recipient",
			Required: true,
		},
	)...)

	sub = cb.SetSubCommand("revoke")
	sub.SetDescription("revokes the access of a recipient to a file")
	sub.SetAction(builder.MakeAction(revokeAction{out: m.out}))
	sub.SetFlags(append(principalFlags(),
		cli.StringFlag{
			Name:     "path",
			Usage:    "the path of the file, starting with the identifier of the owner",
			Required: true,
		},
		cli.StringFlag{
			Name:     "recipient",
			Usage:    "the identifier of the recipient",
			Required: true,
		},
	)...)

	sub = cb.SetSubCommand("list")
	sub.SetDescription("lists the files shared by and with the principal")
	sub.SetAction(builder.MakeAction(listAction{out: m.out}))
	sub.SetFlags(principalFlags()...)

	sub = cb.SetSubCommand("register")
	sub.SetDescription("registers the handlers of a disk bucket to the dela proxy")
	sub.SetAction(builder.MakeAction(registerAction{}))
	sub.SetFlags(
		cli.StringFlag{
			Name:     "store",
			Usage:    "the directory of the bucket",
			Required: true,
		},
	)
}

// OnStart implements node.Initializer.
func (m controller) OnStart(ctx cli.Flags, inj node.Injector) error {
	return nil
}

// OnStop implements node.Initializer.
func (m controller) OnStop(node.Injector) error {
	return nil
}

func principalFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:     "id",
			Usage:    "the identifier of the principal",
			Required: true,
		},
		cli.StringFlag{
			Name:  "passphrase",
			Usage: "the passphrase to derive the keys from",
		},
		cli.StringFlag{
			Name:  "keyfile",
			Usage: "the file storing the keys, created if it does not exist",
		},
		cli.StringFlag{
			Name:  "kdf",
			Usage: "the key derivation: legacy, pbkdf2 or argon2id",
			Value: "legacy",
		},
		cli.StringFlag{
			Name:  "salt",
			Usage: "the salt of the key derivation, the identifier by default",
		},
		cli.StringFlag{
			Name:  "store",
			Usage: "the directory of a disk bucket",
		},
		cli.StringFlag{
			Name:  "remote",
			Usage: "the address of a remote bucket",
		},
		cli.StringFlag{
			Name:  "sqlconfig",
			Usage: "the configuration file of a MySQL bucket",
		},
		cli.StringFlag{
			Name:  "format",
			Usage: "the format of the tables: JSON or GOB",
			Value: "JSON",
		},
	}
}

func configFromFlags(flags cli.Flags) Config {
	return Config{
		ID:         flags.String("id"),
		Passphrase: flags.String("passphrase"),
		KeyFile:    flags.String("keyfile"),
		KDF:        flags.String("kdf"),
		Salt:       flags.String("salt"),
		StoreDir:   flags.String("store"),
		Remote:     flags.String("remote"),
		SQLConfig:  flags.String("sqlconfig"),
		Format:     flags.String("format"),
	}
}
