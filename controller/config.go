package controller

import (
	"go.dedis.ch/dela/serde"
	"go.dedis.ch/sharefs/keystore"
	"go.dedis.ch/sharefs/pki"
	"go.dedis.ch/sharefs/sharing"
	"go.dedis.ch/sharefs/store"
	"go.dedis.ch/sharefs/store/disk"
	"go.dedis.ch/sharefs/store/remote"
	"go.dedis.ch/sharefs/store/sql"
	"golang.org/x/xerrors"

	// Registers the formats of the tables.
	_ "go.dedis.ch/sharefs/store/gob"
	_ "go.dedis.ch/sharefs/store/json"
)

// Config describes how to build the protocol of a principal.
type Config struct {
	// ID is the identifier of the principal.
	ID string
	// Passphrase derives the keys of the principal. Random keys are generated
	// when it is empty.
	Passphrase string
	// KeyFile is the file where the keys are stored. An existing file takes
	// precedence over the passphrase.
	KeyFile string
	// KDF is the name of the key derivation strategy.
	KDF string
	// Salt is the salt of the key derivation. The identifier is used when it
	// is empty.
	Salt string

	// StoreDir is the directory of a disk bucket.
	StoreDir string
	// Remote is the address of a remote bucket.
	Remote string
	// SQLConfig is the configuration file of a SQL bucket.
	SQLConfig string
	// Format is the format of the tables.
	Format string
}

// Env is the environment of a principal.
type Env struct {
	Sharer    *sharing.Sharer
	Directory pki.BucketDirectory
	Bucket    store.Bucket
}

// Open builds the environment described by the configuration. The public key
// of the principal is published in the directory of the bucket.
func (c Config) Open() (Env, error) {
	err := sharing.ValidateID(c.ID)
	if err != nil {
		return Env{}, xerrors.Errorf("bad identifier: %w", err)
	}

	bucket, err := c.bucket()
	if err != nil {
		return Env{}, xerrors.Errorf("failed to open bucket: %v", err)
	}

	identity, err := c.identity()
	if err != nil {
		return Env{}, xerrors.Errorf("failed to get identity: %v", err)
	}

	format := serde.FormatJSON
	if c.Format != "" {
		format = serde.Format(c.Format)
	}

	if store.GetFormat(format) == nil {
		return Env{}, xerrors.Errorf("unknown format '%s'", format)
	}

	sharer, err := sharing.NewSharer(c.ID, identity, store.New(bucket, store.WithFormat(format)))
	if err != nil {
		return Env{}, err
	}

	dir := pki.NewBucketDirectory(bucket)

	err = dir.Publish(c.ID, identity.Pub)
	if err != nil {
		return Env{}, xerrors.Errorf("failed to publish key: %v", err)
	}

	env := Env{
		Sharer:    sharer,
		Directory: dir,
		Bucket:    bucket,
	}

	return env, nil
}

func (c Config) bucket() (store.Bucket, error) {
	switch {
	case c.Remote != "":
		return remote.NewBucket(c.Remote), nil
	case c.SQLConfig != "":
		return sql.OpenFromFile(c.SQLConfig)
	case c.StoreDir != "":
		return disk.NewBucket(c.StoreDir)
	default:
		return nil, xerrors.New("no storage given")
	}
}

func (c Config) identity() (keystore.Identity, error) {
	salt := c.Salt
	if salt == "" {
		salt = c.ID
	}

	strategy, err := keystore.StrategyFromName(c.KDF, []byte(salt))
	if err != nil {
		return keystore.Identity{}, err
	}

	gen := func() (keystore.Identity, error) {
		if c.Passphrase == "" {
			return keystore.NewRandom()
		}

		return keystore.Generate(c.Passphrase, strategy)
	}

	if c.KeyFile == "" {
		return gen()
	}

	return keystore.LoadOrCreate(c.KeyFile, gen)
}
