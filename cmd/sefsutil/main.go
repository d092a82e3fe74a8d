// Command sefsutil is a standalone SerenaFS diagnostic tool: format a
// fresh image, list a directory, or print one inode's metadata,
// without booting a kernel instance. Flag/subcommand style follows
// cmd/collector-test/main.go's standalone-tool pattern.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/serena-os/kernel/internal/kernel/vfs"
	"github.com/serena-os/kernel/internal/kernel/vfs/sefs"
)

var (
	blockCount = flag.Uint("blocks", 4096, "block count for format")
	blockSize  = flag.Uint("block-size", 512, "block size in bytes for format")
	label      = flag.String("label", "serena", "volume label for format")
	uid        = flag.Uint("uid", 0, "root directory owner uid for format")
	gid        = flag.Uint("gid", 0, "root directory owner gid for format")
	perms      = flag.Uint("perms", 0o755, "root directory permissions for format")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: sefsutil <command> <image-path> [path]\n\ncommands:\n  format           create and format a new image at <image-path>\n  ls               list <path> (default \"/\") in the image at <image-path>\n  stat             print <path>'s Info as JSON\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, imagePath := args[0], args[1]
	var err error
	switch cmd {
	case "format":
		err = runFormat(imagePath)
	case "ls":
		path := "/"
		if len(args) > 2 {
			path = args[2]
		}
		err = runLs(imagePath, path)
	case "stat":
		path := "/"
		if len(args) > 2 {
			path = args[2]
		}
		err = runStat(imagePath, path)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sefsutil: %v\n", err)
		os.Exit(1)
	}
}

func runFormat(imagePath string) error {
	c, err := sefs.OpenHostFileContainer(imagePath, uint32(*blockCount), uint32(*blockSize))
	if err != nil {
		return err
	}
	defer c.Close()
	return sefs.Format(c, *label, uint32(*uid), uint32(*gid), uint32(*perms))
}

func openReadOnly(imagePath string) (*sefs.FileSystem, func() error, error) {
	c, err := sefs.OpenHostFileContainer(imagePath, uint32(*blockCount), uint32(*blockSize))
	if err != nil {
		return nil, nil, err
	}
	fs, err := sefs.Mount(1, c, true)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return fs, c.Close, nil
}

func resolve(fs *sefs.FileSystem, path string) (vfs.Inode, error) {
	h := vfs.NewFileHierarchy()
	if err := h.Mount("/", fs); err != nil {
		return nil, err
	}
	target, _, err := h.Resolve("/", path)
	if err != nil {
		return nil, err
	}
	return target, nil
}

func runLs(imagePath, path string) error {
	fs, closeFn, err := openReadOnly(imagePath)
	if err != nil {
		return err
	}
	defer closeFn()

	target, err := resolve(fs, path)
	if err != nil {
		return err
	}
	dir, ok := target.(interface {
		ReadDir() ([]sefs.DirentRecord, error)
	})
	if !ok {
		return fmt.Errorf("%s is not a directory", path)
	}
	entries, err := dir.ReadDir()
	if err != nil {
		return err
	}
	for i := range entries {
		fmt.Println(entries[i].NameString())
	}
	return nil
}

func runStat(imagePath, path string) error {
	fs, closeFn, err := openReadOnly(imagePath)
	if err != nil {
		return err
	}
	defer closeFn()

	target, err := resolve(fs, path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(target.GetInfo())
}
