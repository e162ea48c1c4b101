package controller

import (
	"encoding/json"
	"fmt"
	"io"

	"go.dedis.ch/dela/cli/node"
	"go.dedis.ch/dela/mino/proxy"
	"go.dedis.ch/sharefs/sharing"
	"go.dedis.ch/sharefs/store/disk"
	"go.dedis.ch/sharefs/store/remote"
	"golang.org/x/xerrors"
)

// shareAction is an action to share a file with a recipient.
//
// - implements node.ActionTemplate
type shareAction struct {
	out io.Writer
}

// Execute implements node.ActionTemplate.
func (a shareAction) Execute(ctx node.Context) error {
	env, err := configFromFlags(ctx.Flags).Open()
	if err != nil {
		return xerrors.Errorf("failed to open environment: %v", err)
	}

	recipient := ctx.Flags.String("recipient")

	pub, err := env.Directory.GetKey(recipient)
	if err != nil {
		return xerrors.Errorf("failed to get key of recipient: %v", err)
	}

	outcome, err := env.Sharer.ShareFile(ctx.Flags.String("path"), recipient, pub)
	if err != nil {
		return xerrors.Errorf("failed to share: %v", err)
	}

	if outcome == sharing.FileNotFound {
		return xerrors.Errorf("file '%s' not found", ctx.Flags.String("path"))
	}

	fmt.Fprintln(a.out, outcome)

	return nil
}

// revokeAction is an action to revoke the access of a recipient to a file.
//
// - implements node.ActionTemplate
type revokeAction struct {
	out io.Writer
}

// Execute implements node.ActionTemplate.
func (a revokeAction) Execute(ctx node.Context) error {
	env, err := configFromFlags(ctx.Flags).Open()
	if err != nil {
		return xerrors.Errorf("failed to open environment: %v", err)
	}

	path := ctx.Flags.String("path")
	recipient := ctx.Flags.String("recipient")

	shared, err := env.Sharer.IsShared(path, recipient)
	if err != nil {
		return xerrors.Errorf("failed to read tables: %v", err)
	}

	if !shared {
		return xerrors.Errorf("'%s' is not shared with '%s'", path, recipient)
	}

	reuploaded, err := env.Sharer.RevokeSharedFile(path, recipient, env.Directory.GetKey)
	if err != nil {
		return xerrors.Errorf("failed to revoke: %v", err)
	}

	fmt.Fprintf(a.out, "revoked (file encrypted again: %t)\n", reuploaded)

	return nil
}

// listing is the output of the list action.
type listing struct {
	SharedByUs   sharing.Others `json:"sharedByUs"`
	SharedWithUs []string       `json:"sharedWithUs"`
}

// listAction is an action to list the files shared by and with the
// principal.
//
// - implements node.ActionTemplate
type listAction struct {
	out io.Writer
}

// Execute implements node.ActionTemplate.
func (a listAction) Execute(ctx node.Context) error {
	env, err := configFromFlags(ctx.Flags).Open()
	if err != nil {
		return xerrors.Errorf("failed to open environment: %v", err)
	}

	byUs, err := env.Sharer.ListSharedByUs()
	if err != nil {
		return xerrors.Errorf("failed to list files shared by us: %v", err)
	}

	withUs, err := env.Sharer.ListFilesSharedWithUs()
	if err != nil {
		return xerrors.Errorf("failed to list files shared with us: %v", err)
	}

	js, err := json.MarshalIndent(listing{SharedByUs: byUs, SharedWithUs: withUs}, "", "\t")
	if err != nil {
		return xerrors.Errorf("failed to marshal listing: %v", err)
	}

	fmt.Fprintln(a.out, string(js))

	return nil
}

// registerAction is an action that registers the handlers of a disk bucket
// to the dela proxy.
//
// - implements node.ActionTemplate
type registerAction struct{}

// Execute implements node.ActionTemplate.
func (a registerAction) Execute(ctx node.Context) error {
	bucket, err := disk.NewBucket(ctx.Flags.String("store"))
	if err != nil {
		return xerrors.Errorf("failed to open bucket: %v", err)
	}

	var proxy proxy.Proxy
	err = ctx.Injector.Resolve(&proxy)
	if err != nil {
		return xerrors.Errorf("failed to resolve proxy: %v", err)
	}

	ctrl := remote.NewCtrl(bucket)

	for path, handler := range ctrl.Routes() {
		proxy.RegisterHandler(path, handler)
	}

	return nil
}
