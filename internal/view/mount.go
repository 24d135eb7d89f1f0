//go:build linux
// +build linux

package view

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Mount serves entries as a read-only FUSE filesystem at mountPoint,
// blocking until the process receives SIGINT/SIGTERM or the server
// exits on its own.
func Mount(mountPoint string, entries []Entry, allowOther bool) error {
	root := NewRoot(entries)

	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Debug:      false,
			AllowOther: allowOther,
			Name:       "music-commander-view",
			FsName:     "music-commander-view",
		},
	}
	server, err := fs.Mount(mountPoint, root, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		log.Println("unmounting view...")
		_ = server.Unmount()
	}()

	server.Wait()
	stop()
	return nil
}

// MountBackground mounts entries at mountPoint and returns immediately
// with an unmount function, instead of blocking on server.Wait.
func MountBackground(mountPoint string, entries []Entry, allowOther bool) (func() error, error) {
	root := NewRoot(entries)
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{AllowOther: allowOther, Name: "music-commander-view", FsName: "music-commander-view"},
	}
	server, err := fs.Mount(mountPoint, root, opts)
	if err != nil {
		return nil, err
	}
	return server.Unmount, nil
}
