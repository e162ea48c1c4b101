// Package main serves a bucket over HTTP so that principals on other machines
// can share it with the remote bucket.
package main

import (
	"flag"
	"os"
	"os/signal"

	"go.dedis.ch/dela/mino/proxy"
	delahttp "go.dedis.ch/dela/mino/proxy/http"
	"go.dedis.ch/sharefs"
	"go.dedis.ch/sharefs/store"
	"go.dedis.ch/sharefs/store/disk"
	"go.dedis.ch/sharefs/store/remote"
	"go.dedis.ch/sharefs/store/sql"
	"golang.org/x/xerrors"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "address to listen on")
	dir := flag.String("store", "", "directory of the bucket")
	sqlConfig := flag.String("sqlconfig", "", "configuration file of a MySQL "+
		"bucket, used instead of the directory")

	flag.Parse()

	bucket, err := openBucket(*dir, *sqlConfig)
	if err != nil {
		sharefs.Logger.Fatal().Err(err).Msg("failed to open bucket")
	}

	srv := delahttp.NewHTTP(*addr)

	register(srv, bucket)

	go srv.Listen()

	sharefs.Logger.Info().Str("addr", *addr).Msg("bucket served")

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt)

	<-done

	srv.Stop()

	if closer, ok := bucket.(*sql.Bucket); ok {
		closer.Close()
	}
}

func openBucket(dir, sqlConfig string) (store.Bucket, error) {
	if sqlConfig != "" {
		return sql.OpenFromFile(sqlConfig)
	}

	if dir == "" {
		return nil, xerrors.New("no storage given")
	}

	return disk.NewBucket(dir)
}

func register(srv proxy.Proxy, bucket store.Bucket) {
	ctrl := remote.NewCtrl(bucket)

	for path, handler := range ctrl.Routes() {
		srv.RegisterHandler(path, handler)
	}
}
