// Command typeutil is the AmigaDOS Type command's diagnostic
// equivalent: it mounts a SerenaFS image read-only and dumps one
// file's contents to stdout, standalone-tool style like
// cmd/collector-test/main.go.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/serena-os/kernel/internal/kernel/vfs"
	"github.com/serena-os/kernel/internal/kernel/vfs/sefs"
)

var (
	blockCount = flag.Uint("blocks", 4096, "block count the image was formatted with")
	blockSize  = flag.Uint("block-size", 512, "block size in bytes the image was formatted with")
	readSize   = flag.Uint("chunk", 4096, "bytes read per chunk while streaming the file to stdout")
)

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: typeutil <image-path> <file-path>\n")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(args[0], args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "typeutil: %v\n", err)
		os.Exit(1)
	}
}

func run(imagePath, filePath string) error {
	c, err := sefs.OpenHostFileContainer(imagePath, uint32(*blockCount), uint32(*blockSize))
	if err != nil {
		return fmt.Errorf("open %q: %w", imagePath, err)
	}
	defer c.Close()

	fs, err := sefs.Mount(1, c, true)
	if err != nil {
		return fmt.Errorf("mount %q: %w", imagePath, err)
	}

	h := vfs.NewFileHierarchy()
	if err := h.Mount("/", fs); err != nil {
		return err
	}
	target, _, err := h.Resolve("/", filePath)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", filePath, err)
	}
	if target.GetInfo().Type != vfs.TypeRegular {
		return fmt.Errorf("%s is not a regular file", filePath)
	}

	buf := make([]byte, *readSize)
	var offset int64
	for {
		n, err := target.Read(offset, buf)
		if n > 0 {
			if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
				return werr
			}
			offset += int64(n)
		}
		if err != nil {
			if n == 0 {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}
