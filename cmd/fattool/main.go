// Command fattool inspects and manipulates FAT16/FAT32 volume images.
//
//	fattool mkfs disk.img --sectors 20000
//	fattool ls disk.img /
//	fattool write disk.img /HELLO.TXT < hello.txt
//	fattool cat disk.img /HELLO.TXT
//	fattool rm disk.img /HELLO.TXT
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/tinydisk/fat"
)

var (
	verbose  = pflag.BoolP("verbose", "v", false, "log driver diagnostics to stderr")
	sectors  = pflag.Uint32("sectors", 20480, "volume size in sectors for mkfs")
	useFAT32 = pflag.Bool("fat32", false, "format as FAT32 regardless of volume size")
	label    = pflag.String("label", "", "volume label for mkfs")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: fattool <command> <image> [path]\n\ncommands: mkfs, info, ls, cat, write, rm\n\n")
	pflag.PrintDefaults()
}

func main() {
	pflag.Usage = usage
	pflag.Parse()

	args := pflag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}

	if err := run(args[0], args[1], args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "fattool:", err)
		os.Exit(1)
	}
}

func run(command, image string, args []string) error {
	if command == "mkfs" {
		return mkfs(image)
	}

	file, err := os.OpenFile(image, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer file.Close()

	opts := []fat.Option{}
	if *verbose {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts = append(opts, fat.WithLogger(logger))
	}
	fs, err := fat.New(fat.NewImageDevice(file), opts...)
	if err != nil {
		return err
	}
	defer fs.Unmount()

	path := "/"
	if len(args) > 0 {
		path = args[0]
	}

	switch command {
	case "info":
		return info(fs)
	case "ls":
		return ls(fs, path)
	case "cat":
		return cat(fs, path)
	case "write":
		return write(fs, path)
	case "rm":
		return fs.Remove(path)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func mkfs(image string) error {
	file, err := os.OpenFile(image, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := file.Truncate(int64(*sectors) * fat.SectorSize); err != nil {
		return err
	}

	cfg := fat.FormatConfig{Label: *label}
	if *useFAT32 {
		cfg.Type = fat.FAT32
	}
	return fat.Format(fat.NewImageDevice(file), *sectors, cfg)
}

func info(fs *fat.Fs) error {
	i := fs.Info()
	typeName := "FAT16"
	if i.Type == fat.FAT32 {
		typeName = "FAT32"
	}
	fmt.Printf("type:             %s\n", typeName)
	fmt.Printf("bytes/sector:     %d\n", i.BytesPerSector)
	fmt.Printf("sectors/cluster:  %d\n", i.SectorsPerCluster)
	fmt.Printf("reserved sectors: %d\n", i.ReservedSectors)
	fmt.Printf("FATs:             %d\n", i.NumFATs)
	fmt.Printf("FAT size:         %d sectors\n", i.FATSize)
	fmt.Printf("total sectors:    %d\n", i.TotalSectors)
	fmt.Printf("first data sector: %d\n", i.FirstDataSector)
	return nil
}

func ls(fs *fat.Fs, path string) error {
	dir, err := fs.OpenDir(path)
	if err != nil {
		return err
	}
	defer fs.CloseDir(dir)

	for {
		entry, err := fs.ReadDir(dir)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %8d %s %s\n",
			entry.Mode(), entry.Size(), entry.ModTime().Format("2006-01-02 15:04"), entry.Name())
	}
}

func cat(fs *fat.Fs, path string) error {
	fd, err := fs.Open(path, fat.FlagRead)
	if err != nil {
		return err
	}
	defer fs.Close(fd)

	buf := make([]byte, 4096)
	for {
		n, err := fs.Read(fd, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := os.Stdout.Write(buf[:n]); err != nil {
			return err
		}
	}
}

func write(fs *fat.Fs, path string) error {
	afs := fat.NewAferoFs(fs)
	f, err := afs.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, os.Stdin); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
